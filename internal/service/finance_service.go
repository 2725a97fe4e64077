package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finchly/expenseflow/internal/audit"
	"github.com/finchly/expenseflow/internal/domain/workflow"
	"github.com/finchly/expenseflow/internal/models"
	"github.com/finchly/expenseflow/internal/repository"
	"github.com/finchly/expenseflow/pkg/database"
)

// ExportKicker wakes the export worker so a freshly finalized batch is
// picked up without waiting for the next poll cycle.
type ExportKicker interface {
	Kick()
}

// noopKicker stands in until a worker is attached
type noopKicker struct{}

func (noopKicker) Kick() {}

// FinalizeInput names the manager-approved reports to group into one batch.
// Each report carries the version the caller last observed.
type FinalizeInput struct {
	Reports []FinalizeReportRef `json:"reports"`
}

// FinalizeReportRef is one report selected for finalization
type FinalizeReportRef struct {
	ReportID        string `json:"report_id"`
	ExpectedVersion int64  `json:"expected_version"`
}

// BatchView is the full read model of an export batch
type BatchView struct {
	Batch     *models.NetsuiteBatch `json:"batch"`
	ReportIDs []string              `json:"report_ids"`
	Lines     []*models.JournalLine `json:"journal_lines"`
}

// defaultGLAccounts maps categories without an explicit GL override to the
// chart of accounts used for journal lines.
var defaultGLAccounts = map[models.ExpenseCategory]string{
	models.CategoryAirfare:         "6001",
	models.CategoryLodging:         "6002",
	models.CategoryMeal:            "6003",
	models.CategoryGroundTransport: "6004",
	models.CategoryMileage:         "6005",
	models.CategorySupplies:        "6006",
	models.CategoryOther:           "6099",
}

// FinanceService finalizes manager-approved reports into export batches.
// Finalization is all or nothing: every selected report transitions and
// every journal line is written in one transaction, or none are.
type FinanceService struct {
	db        *database.DB
	reports   *repository.ReportRepository
	batches   *repository.BatchRepository
	employees *repository.EmployeeRepository
	recorder  *audit.Recorder
	machine   *workflow.Machine
	kicker    ExportKicker
	logger    *zap.Logger
	now       func() time.Time
}

// NewFinanceService creates a new finance service
func NewFinanceService(
	db *database.DB,
	reports *repository.ReportRepository,
	batches *repository.BatchRepository,
	employees *repository.EmployeeRepository,
	recorder *audit.Recorder,
	logger *zap.Logger,
) *FinanceService {
	return &FinanceService{
		db:        db,
		reports:   reports,
		batches:   batches,
		employees: employees,
		recorder:  recorder,
		machine:   workflow.NewMachine(),
		kicker:    noopKicker{},
		logger:    logger,
		now:       time.Now,
	}
}

// AttachKicker wires the export worker once it exists. Called during
// startup before the HTTP server accepts traffic.
func (s *FinanceService) AttachKicker(kicker ExportKicker) {
	s.kicker = kicker
}

// Finalize moves the selected reports to finance_finalized, groups them
// into a new pending batch with deterministic journal lines, and wakes the
// exporter. Any stale version or ineligible report aborts the whole call.
func (s *FinanceService) Finalize(ctx context.Context, actor Actor, input FinalizeInput) (*BatchView, error) {
	if !actor.CanActAsFinance() {
		return nil, ForbiddenError("only finance may finalize reports")
	}
	if len(input.Reports) == 0 {
		details := decisionDetails("reports", "at least one report is required")
		return nil, ValidationError("finalization failed validation", details)
	}

	now := s.now().UTC()
	batch := &models.NetsuiteBatch{
		ID:             uuid.NewString(),
		BatchReference: batchReference(now),
		FinalizedBy:    actor.EmployeeID,
		FinalizedAt:    now,
		Status:         models.BatchPending,
	}

	var view *BatchView
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.batches.Create(tx, batch); err != nil {
			return err
		}
		if err := s.recorder.Record(tx, &models.AuditLogEntry{
			EntityType:  models.EntityBatch,
			EntityID:    batch.ID,
			EventType:   models.EventBatchCreated,
			NewValue:    fmt.Sprintf(`{"batch_reference":%q,"report_count":%d}`, batch.BatchReference, len(input.Reports)),
			PerformedBy: actor.EmployeeID,
			IPAddress:   actor.IPAddress,
			UserAgent:   actor.UserAgent,
		}); err != nil {
			return err
		}

		lineNumber := 0
		var lines []*models.JournalLine
		var reportIDs []string
		for _, ref := range input.Reports {
			report, err := s.reports.GetByID(tx, ref.ReportID)
			if err != nil {
				return err
			}
			next, err := s.machine.Next(report.Status, workflow.TriggerFinanceFinalize)
			if err != nil {
				return InvalidTransitionError(fmt.Sprintf(
					"report %s is in status %s and cannot be finalized", report.ID, report.Status))
			}
			if err := s.reports.UpdateStatus(tx, report.ID, ref.ExpectedVersion, next, now); err != nil {
				return err
			}
			if err := s.batches.AddReport(tx, batch.ID, report.ID); err != nil {
				return err
			}
			reportIDs = append(reportIDs, report.ID)

			owner, err := s.employees.GetByID(tx, report.EmployeeID)
			if err != nil {
				return err
			}
			items, err := s.reports.ItemsByReport(tx, report.ID)
			if err != nil {
				return err
			}
			for _, item := range items {
				if !item.Reimbursable {
					continue
				}
				lineNumber++
				lines = append(lines, buildJournalLine(batch.ID, report.ID, lineNumber, owner, item))
			}

			if err := s.recorder.Record(tx, &models.AuditLogEntry{
				EntityType:  models.EntityReport,
				EntityID:    report.ID,
				EventType:   models.EventStatusChanged,
				OldValue:    statusSnapshot(report.Status, report.Version),
				NewValue:    fmt.Sprintf(`{"status":%q,"version":%d,"batch_id":%q}`, next, report.Version+1, batch.ID),
				PerformedBy: actor.EmployeeID,
				IPAddress:   actor.IPAddress,
				UserAgent:   actor.UserAgent,
			}); err != nil {
				return err
			}
		}

		for _, line := range lines {
			if err := s.batches.CreateLine(tx, line); err != nil {
				return err
			}
		}

		view = &BatchView{Batch: batch, ReportIDs: reportIDs, Lines: lines}
		return nil
	})
	if err != nil {
		if svcErr, ok := err.(*Error); ok {
			return nil, svcErr
		}
		return nil, mapRepoErr(err)
	}

	s.logger.Info("Batch finalized",
		zap.String("batch_id", batch.ID),
		zap.String("batch_reference", batch.BatchReference),
		zap.Int("reports", len(view.ReportIDs)),
		zap.Int("journal_lines", len(view.Lines)))

	s.kicker.Kick()
	return view, nil
}

// ListBatches returns recent batches for the finance dashboard
func (s *FinanceService) ListBatches(ctx context.Context, actor Actor, limit int) ([]*models.BatchSummary, error) {
	if !actor.CanActAsFinance() {
		return nil, ForbiddenError("only finance may list batches")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	summaries, err := s.batches.Summaries(limit)
	if err != nil {
		return nil, InternalError(err)
	}
	return summaries, nil
}

// GetBatch returns one batch with its reports and journal lines
func (s *FinanceService) GetBatch(ctx context.Context, actor Actor, batchID string) (*BatchView, error) {
	if !actor.CanActAsFinance() {
		return nil, ForbiddenError("only finance may view batches")
	}
	batch, err := s.batches.GetByID(batchID)
	if err != nil {
		if KindOf(mapRepoErr(err)) == KindNotFound {
			return nil, NotFoundError("batch not found")
		}
		return nil, InternalError(err)
	}
	reportIDs, err := s.batches.ReportIDs(batchID)
	if err != nil {
		return nil, InternalError(err)
	}
	lines, err := s.batches.LinesByBatch(batchID)
	if err != nil {
		return nil, InternalError(err)
	}
	return &BatchView{Batch: batch, ReportIDs: reportIDs, Lines: lines}, nil
}

func buildJournalLine(batchID, reportID string, lineNumber int, owner *models.Employee, item *models.ExpenseItem) *models.JournalLine {
	glAccount := defaultGLAccounts[item.Category]
	if item.GLAccountID != nil && *item.GLAccountID != "" {
		glAccount = *item.GLAccountID
	}
	memo := item.Description
	if memo == "" {
		memo = fmt.Sprintf("%s expense %s", item.Category, item.ExpenseDate.Format("2006-01-02"))
	}
	return &models.JournalLine{
		ID:          uuid.NewString(),
		BatchID:     batchID,
		ReportID:    reportID,
		LineNumber:  lineNumber,
		GLAccount:   glAccount,
		AmountCents: item.AmountCents,
		Department:  owner.Department,
		Memo:        memo,
	}
}

// batchReference derives a human-readable reference from the finalization
// time plus a short random suffix to keep same-day batches unique.
func batchReference(now time.Time) string {
	return fmt.Sprintf("EXP-%s-%s", now.Format("20060102"), uuid.NewString()[:8])
}
