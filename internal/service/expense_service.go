package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finchly/expenseflow/internal/audit"
	"github.com/finchly/expenseflow/internal/domain/workflow"
	"github.com/finchly/expenseflow/internal/models"
	"github.com/finchly/expenseflow/internal/policy"
	"github.com/finchly/expenseflow/internal/repository"
	"github.com/finchly/expenseflow/pkg/database"
)

// ReceiptInput is declared metadata for an uploaded receipt
type ReceiptInput struct {
	FileKey   string `json:"file_key"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// ItemInput is one expense line as supplied by the caller
type ItemInput struct {
	ExpenseDate   time.Time              `json:"expense_date"`
	Category      models.ExpenseCategory `json:"category"`
	GLAccountID   *string                `json:"gl_account_id,omitempty"`
	Description   string                 `json:"description,omitempty"`
	Attendees     string                 `json:"attendees,omitempty"`
	Location      string                 `json:"location,omitempty"`
	AmountCents   int64                  `json:"amount_cents"`
	Reimbursable  bool                   `json:"reimbursable"`
	PaymentMethod string                 `json:"payment_method,omitempty"`
	MileageMiles  *float64               `json:"mileage_miles,omitempty"`
	Receipts      []ReceiptInput         `json:"receipts,omitempty"`
}

// CreateReportInput describes a new draft report
type CreateReportInput struct {
	PeriodStart time.Time   `json:"reporting_period_start"`
	PeriodEnd   time.Time   `json:"reporting_period_end"`
	Currency    string      `json:"currency,omitempty"`
	Items       []ItemInput `json:"items"`
}

// ReportView is the full read model of a report
type ReportView struct {
	Report     *models.ExpenseReport        `json:"report"`
	Items      []*models.ExpenseItem        `json:"items"`
	Receipts   map[string][]*models.Receipt `json:"receipts,omitempty"`
	Approvals  []*models.Approval           `json:"approvals,omitempty"`
	Evaluation *policy.Result               `json:"evaluation,omitempty"`
}

// ExpenseService implements the employee-facing report lifecycle: drafting,
// editing, submission and resubmission. Every transition commits its status
// change, version bump and audit entry in one transaction.
type ExpenseService struct {
	db        *database.DB
	reports   *repository.ReportRepository
	approvals *repository.ApprovalRepository
	policies  *repository.PolicyRepository
	recorder  *audit.Recorder
	engine    *policy.Engine
	machine   *workflow.Machine
	logger    *zap.Logger
	now       func() time.Time
}

// NewExpenseService creates a new expense service
func NewExpenseService(
	db *database.DB,
	reports *repository.ReportRepository,
	approvals *repository.ApprovalRepository,
	policies *repository.PolicyRepository,
	recorder *audit.Recorder,
	engine *policy.Engine,
	logger *zap.Logger,
) *ExpenseService {
	return &ExpenseService{
		db:        db,
		reports:   reports,
		approvals: approvals,
		policies:  policies,
		recorder:  recorder,
		engine:    engine,
		machine:   workflow.NewMachine(),
		logger:    logger,
		now:       time.Now,
	}
}

// CreateReport creates a draft report owned by the acting employee. Only
// structural validation runs here; the full policy gate runs at submission.
func (s *ExpenseService) CreateReport(ctx context.Context, actor Actor, input CreateReportInput) (*ReportView, error) {
	if details := validateStructure(input); details.HasErrors() {
		return nil, ValidationError("report failed validation", details)
	}

	now := s.now().UTC()
	currency := input.Currency
	if currency == "" {
		currency = "USD"
	}

	report := &models.ExpenseReport{
		ID:          uuid.NewString(),
		EmployeeID:  actor.EmployeeID,
		PeriodStart: input.PeriodStart,
		PeriodEnd:   input.PeriodEnd,
		Currency:    currency,
		Status:      models.StatusDraft,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	items, receipts := buildItems(report.ID, actor.EmployeeID, input.Items, now)
	report.TotalAmountCents, report.TotalReimbursableCents = models.RecomputeTotals(items)

	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.reports.Create(tx, report); err != nil {
			return err
		}
		for _, item := range items {
			if err := s.reports.CreateItem(tx, item); err != nil {
				return err
			}
		}
		for _, itemReceipts := range receipts {
			for _, receipt := range itemReceipts {
				if err := s.reports.CreateReceipt(tx, receipt); err != nil {
					return err
				}
			}
		}
		return s.recorder.Record(tx, &models.AuditLogEntry{
			EntityType:  models.EntityReport,
			EntityID:    report.ID,
			EventType:   models.EventReportCreated,
			NewValue:    reportSnapshot(report),
			PerformedBy: actor.EmployeeID,
			IPAddress:   actor.IPAddress,
			UserAgent:   actor.UserAgent,
		})
	})
	if err != nil {
		return nil, InternalError(err)
	}

	s.logger.Info("Report created",
		zap.String("report_id", report.ID),
		zap.String("employee_id", actor.EmployeeID),
		zap.Int("items", len(items)))

	return &ReportView{Report: report, Items: items, Receipts: receipts}, nil
}

// UpdateItems replaces the item set of a draft or needs_changes report.
// The version guard applies: a stale caller gets a conflict, not a merge.
func (s *ExpenseService) UpdateItems(ctx context.Context, actor Actor, reportID string, expectedVersion int64, inputs []ItemInput) (*ReportView, error) {
	report, err := s.reports.GetByID(nil, reportID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if report.EmployeeID != actor.EmployeeID && !actor.IsAdmin() {
		return nil, ForbiddenError("only the report owner may edit items")
	}
	if report.Status != models.StatusDraft && report.Status != models.StatusNeedsChanges {
		return nil, InvalidTransitionError(fmt.Sprintf("items cannot be edited in status %s", report.Status))
	}

	details := policy.NewResult()
	validateItemInputs(details, inputs)
	if details.HasErrors() {
		return nil, ValidationError("items failed validation", details)
	}

	now := s.now().UTC()
	items, receipts := buildItems(reportID, actor.EmployeeID, inputs, now)
	total, reimbursable := models.RecomputeTotals(items)

	err = s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.reports.UpdateStatus(tx, reportID, expectedVersion, report.Status, now); err != nil {
			return err
		}
		if err := s.reports.DeleteItems(tx, reportID); err != nil {
			return err
		}
		for _, item := range items {
			if err := s.reports.CreateItem(tx, item); err != nil {
				return err
			}
		}
		for _, itemReceipts := range receipts {
			for _, receipt := range itemReceipts {
				if err := s.reports.CreateReceipt(tx, receipt); err != nil {
					return err
				}
			}
		}
		if err := s.reports.UpdateTotals(tx, reportID, total, reimbursable); err != nil {
			return err
		}
		return s.recorder.Record(tx, &models.AuditLogEntry{
			EntityType:  models.EntityReport,
			EntityID:    reportID,
			EventType:   models.EventItemsChanged,
			OldValue:    fmt.Sprintf(`{"total_amount_cents":%d}`, report.TotalAmountCents),
			NewValue:    fmt.Sprintf(`{"total_amount_cents":%d,"item_count":%d}`, total, len(items)),
			PerformedBy: actor.EmployeeID,
			IPAddress:   actor.IPAddress,
			UserAgent:   actor.UserAgent,
		})
	})
	if err != nil {
		return nil, mapRepoErr(err)
	}

	return s.GetReport(ctx, actor, reportID)
}

// Submit moves a draft report into the approval pipeline. The policy gate
// runs first: hard errors block the transition entirely, exceptions are
// persisted on the offending items and travel with the report.
func (s *ExpenseService) Submit(ctx context.Context, actor Actor, reportID string, expectedVersion int64) (*ReportView, error) {
	return s.submit(ctx, actor, reportID, expectedVersion, workflow.TriggerSubmit)
}

// Resubmit returns a needs_changes report to the approval pipeline after
// the employee has addressed the feedback. The policy gate runs again in
// full against the current item set.
func (s *ExpenseService) Resubmit(ctx context.Context, actor Actor, reportID string, expectedVersion int64) (*ReportView, error) {
	return s.submit(ctx, actor, reportID, expectedVersion, workflow.TriggerResubmit)
}

func (s *ExpenseService) submit(ctx context.Context, actor Actor, reportID string, expectedVersion int64, trigger workflow.Trigger) (*ReportView, error) {
	report, err := s.reports.GetByID(nil, reportID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if report.EmployeeID != actor.EmployeeID && !actor.IsAdmin() {
		return nil, ForbiddenError("only the report owner may submit")
	}

	next, err := s.machine.Next(report.Status, trigger)
	if err != nil {
		return nil, InvalidTransitionError(fmt.Sprintf("cannot submit from status %s", report.Status))
	}

	items, err := s.reports.ItemsByReport(nil, reportID)
	if err != nil {
		return nil, InternalError(err)
	}
	if len(items) == 0 {
		details := policy.NewResult()
		details.AddError("items", "a report must contain at least one expense item")
		return nil, ValidationError("report failed validation", details)
	}
	receipts, err := s.reports.ReceiptsByReport(nil, reportID)
	if err != nil {
		return nil, InternalError(err)
	}

	eval, err := s.evaluate(report, items, receipts)
	if err != nil {
		return nil, err
	}
	if eval.Result.HasErrors() {
		return nil, ValidationError("report failed policy validation", eval.Result)
	}

	now := s.now().UTC()
	err = s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.reports.UpdateStatus(tx, reportID, expectedVersion, next, now); err != nil {
			return err
		}
		for _, item := range items {
			flagged := eval.ExceptionItems[item.ID]
			if flagged != item.IsPolicyException {
				if err := s.reports.SetItemException(tx, item.ID, flagged); err != nil {
					return err
				}
				item.IsPolicyException = flagged
			}
		}
		return s.recorder.Record(tx, &models.AuditLogEntry{
			EntityType:  models.EntityReport,
			EntityID:    reportID,
			EventType:   models.EventStatusChanged,
			OldValue:    statusSnapshot(report.Status, report.Version),
			NewValue:    statusSnapshot(next, report.Version+1),
			PerformedBy: actor.EmployeeID,
			IPAddress:   actor.IPAddress,
			UserAgent:   actor.UserAgent,
		})
	})
	if err != nil {
		return nil, mapRepoErr(err)
	}

	s.logger.Info("Report submitted",
		zap.String("report_id", reportID),
		zap.String("status", next.String()),
		zap.Bool("has_exceptions", eval.Result.HasExceptions()))

	updated, err := s.reports.GetByID(nil, reportID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return &ReportView{Report: updated, Items: items, Receipts: receipts, Evaluation: eval.Result}, nil
}

// GetReport returns the full read model of a report. Visible to the owner,
// managers, finance and admins.
func (s *ExpenseService) GetReport(ctx context.Context, actor Actor, reportID string) (*ReportView, error) {
	report, err := s.reports.GetByID(nil, reportID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if report.EmployeeID != actor.EmployeeID && actor.Role == models.RoleEmployee {
		return nil, ForbiddenError("not authorized to view this report")
	}

	items, err := s.reports.ItemsByReport(nil, reportID)
	if err != nil {
		return nil, InternalError(err)
	}
	receipts, err := s.reports.ReceiptsByReport(nil, reportID)
	if err != nil {
		return nil, InternalError(err)
	}
	approvals, err := s.approvals.ListByReport(reportID)
	if err != nil {
		return nil, InternalError(err)
	}

	return &ReportView{Report: report, Items: items, Receipts: receipts, Approvals: approvals}, nil
}

// EvaluateReport runs the policy gate without mutating anything, so an
// employee can preview violations before submitting.
func (s *ExpenseService) EvaluateReport(ctx context.Context, actor Actor, reportID string) (*policy.Result, error) {
	report, err := s.reports.GetByID(nil, reportID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if report.EmployeeID != actor.EmployeeID && actor.Role == models.RoleEmployee {
		return nil, ForbiddenError("not authorized to view this report")
	}

	items, err := s.reports.ItemsByReport(nil, reportID)
	if err != nil {
		return nil, InternalError(err)
	}
	receipts, err := s.reports.ReceiptsByReport(nil, reportID)
	if err != nil {
		return nil, InternalError(err)
	}

	eval, err := s.evaluate(report, items, receipts)
	if err != nil {
		return nil, err
	}
	return eval.Result, nil
}

func (s *ExpenseService) evaluate(report *models.ExpenseReport, items []*models.ExpenseItem, receipts map[string][]*models.Receipt) (*policy.Evaluation, error) {
	caps, err := s.policies.Caps()
	if err != nil {
		return nil, InternalError(err)
	}
	rates, err := s.policies.MileageRates()
	if err != nil {
		return nil, InternalError(err)
	}
	return s.engine.ValidateReport(report, items, receipts, caps, rates), nil
}

func buildItems(reportID, uploadedBy string, inputs []ItemInput, now time.Time) ([]*models.ExpenseItem, map[string][]*models.Receipt) {
	items := make([]*models.ExpenseItem, 0, len(inputs))
	receipts := make(map[string][]*models.Receipt)
	for _, in := range inputs {
		item := &models.ExpenseItem{
			ID:            uuid.NewString(),
			ReportID:      reportID,
			ExpenseDate:   in.ExpenseDate,
			Category:      in.Category,
			GLAccountID:   in.GLAccountID,
			Description:   in.Description,
			Attendees:     in.Attendees,
			Location:      in.Location,
			AmountCents:   in.AmountCents,
			Reimbursable:  in.Reimbursable,
			PaymentMethod: in.PaymentMethod,
			MileageMiles:  in.MileageMiles,
		}
		items = append(items, item)
		for _, r := range in.Receipts {
			receipts[item.ID] = append(receipts[item.ID], &models.Receipt{
				ID:            uuid.NewString(),
				ExpenseItemID: item.ID,
				FileKey:       r.FileKey,
				FileName:      r.FileName,
				MimeType:      r.MimeType,
				SizeBytes:     r.SizeBytes,
				UploadedBy:    uploadedBy,
				CreatedAt:     now,
			})
		}
	}
	return items, receipts
}

func validateStructure(input CreateReportInput) *policy.Result {
	details := policy.NewResult()
	if input.PeriodStart.IsZero() {
		details.AddError("reporting_period_start", "reporting period start is required")
	}
	if input.PeriodEnd.IsZero() {
		details.AddError("reporting_period_end", "reporting period end is required")
	}
	if !input.PeriodStart.IsZero() && !input.PeriodEnd.IsZero() && input.PeriodEnd.Before(input.PeriodStart) {
		details.AddError("reporting_period_end", "period end must not precede period start")
	}
	validateItemInputs(details, input.Items)
	return details
}

func validateItemInputs(details *policy.Result, inputs []ItemInput) {
	for i, in := range inputs {
		prefix := fmt.Sprintf("items[%d]", i)
		if !in.Category.IsValid() {
			details.AddError(prefix+".category", fmt.Sprintf("unknown expense category %q", in.Category))
		}
		if in.AmountCents <= 0 {
			details.AddError(prefix+".amount_cents", "amount must be a positive integer of minor currency units")
		}
		if in.ExpenseDate.IsZero() {
			details.AddError(prefix+".expense_date", "expense date is required")
		}
	}
}

func reportSnapshot(report *models.ExpenseReport) string {
	snapshot := map[string]any{
		"status":             report.Status,
		"version":            report.Version,
		"total_amount_cents": report.TotalAmountCents,
	}
	data, _ := json.Marshal(snapshot)
	return string(data)
}

func statusSnapshot(status models.ReportStatus, version int64) string {
	return fmt.Sprintf(`{"status":%q,"version":%d}`, status, version)
}

func mapRepoErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return NotFoundError("report not found")
	case errors.Is(err, repository.ErrVersionConflict):
		return ConflictError("the report was modified by another request; re-fetch and retry")
	default:
		return InternalError(err)
	}
}
