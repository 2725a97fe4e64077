package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finchly/expenseflow/internal/audit"
	"github.com/finchly/expenseflow/internal/models"
	"github.com/finchly/expenseflow/internal/policy"
	"github.com/finchly/expenseflow/internal/repository"
	"github.com/finchly/expenseflow/pkg/database"
)

// testEnv wires the full service stack against an in-memory database with
// the seed policy rows (meal per-diem $75, lodging per-item $300, broad
// default $1000, mileage 67c/mile from 2024).
type testEnv struct {
	db        *database.DB
	reports   *repository.ReportRepository
	batches   *repository.BatchRepository
	auditRepo *repository.AuditRepository
	recorder  *audit.Recorder
	expenses  *ExpenseService
	approvals *ApprovalService
	finance   *FinanceService
}

var (
	employeeActor = Actor{EmployeeID: "emp-1", Role: models.RoleEmployee, IPAddress: "10.0.0.4", UserAgent: "test"}
	managerActor  = Actor{EmployeeID: "mgr-1", Role: models.RoleManager, IPAddress: "10.0.0.5", UserAgent: "test"}
	financeActor  = Actor{EmployeeID: "fin-1", Role: models.RoleFinance, IPAddress: "10.0.0.6", UserAgent: "test"}
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.New(database.Config{
		Path:            ":memory:",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrator := database.NewMigrator(db, zap.NewNop())
	require.NoError(t, migrator.RunMigrations("../../migrations"))

	logger := zap.NewNop()
	reports := repository.NewReportRepository(db.DB, logger)
	approvalRepo := repository.NewApprovalRepository(db.DB, logger)
	employees := repository.NewEmployeeRepository(db.DB, logger)
	policies := repository.NewPolicyRepository(db.DB, logger)
	batches := repository.NewBatchRepository(db.DB, logger)
	auditRepo := repository.NewAuditRepository(db.DB, logger)
	recorder := audit.NewRecorder(auditRepo, logger)
	engine := policy.NewEngine(policy.DefaultRules())

	env := &testEnv{
		db:        db,
		reports:   reports,
		batches:   batches,
		auditRepo: auditRepo,
		recorder:  recorder,
		expenses:  NewExpenseService(db, reports, approvalRepo, policies, recorder, engine, logger),
		approvals: NewApprovalService(db, reports, approvalRepo, employees, recorder, logger),
		finance:   NewFinanceService(db, reports, batches, employees, recorder, logger),
	}

	mgrID := "mgr-1"
	for _, emp := range []*models.Employee{
		{ID: "mgr-1", HRIdentifier: "hr-mgr-1", Role: models.RoleManager, Department: "Engineering"},
		{ID: "emp-1", HRIdentifier: "hr-emp-1", ManagerID: &mgrID, Role: models.RoleEmployee, Department: "Engineering"},
		{ID: "emp-2", HRIdentifier: "hr-emp-2", Role: models.RoleEmployee, Department: "Sales"},
		{ID: "fin-1", HRIdentifier: "hr-fin-1", Role: models.RoleFinance, Department: "Finance"},
	} {
		emp.CreatedAt = time.Now().UTC()
		require.NoError(t, employees.Create(emp))
	}

	return env
}

// mealItem is a compliant $42 meal with a receipt
func mealItem(date string) ItemInput {
	return ItemInput{
		ExpenseDate:  mustDate(date),
		Category:     models.CategoryMeal,
		Description:  "Team lunch",
		AmountCents:  4200,
		Reimbursable: true,
		Receipts: []ReceiptInput{{
			FileKey:   "receipts/" + date + ".pdf",
			FileName:  "lunch.pdf",
			MimeType:  "application/pdf",
			SizeBytes: 80_000,
		}},
	}
}

func mustDate(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func createInput(items ...ItemInput) CreateReportInput {
	return CreateReportInput{
		PeriodStart: mustDate("2024-03-01"),
		PeriodEnd:   mustDate("2024-03-31"),
		Currency:    "USD",
		Items:       items,
	}
}

// createSubmitted drives a fresh report through creation and submission
func (env *testEnv) createSubmitted(t *testing.T, items ...ItemInput) *ReportView {
	t.Helper()
	ctx := context.Background()
	created, err := env.expenses.CreateReport(ctx, employeeActor, createInput(items...))
	require.NoError(t, err)
	submitted, err := env.expenses.Submit(ctx, employeeActor, created.Report.ID, created.Report.Version)
	require.NoError(t, err)
	return submitted
}

// createApproved drives a report to manager_approved
func (env *testEnv) createApproved(t *testing.T, items ...ItemInput) *ReportView {
	t.Helper()
	submitted := env.createSubmitted(t, items...)
	view, err := env.approvals.Decide(context.Background(), managerActor, submitted.Report.ID, DecisionInput{
		Decision:              models.DecisionApproved,
		OverrideJustification: "reviewed against policy",
		ExpectedVersion:       submitted.Report.Version,
	})
	require.NoError(t, err)
	return view
}

func kindOf(t *testing.T, err error) Kind {
	t.Helper()
	require.Error(t, err)
	return KindOf(err)
}
