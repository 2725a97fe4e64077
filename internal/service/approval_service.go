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
	"github.com/finchly/expenseflow/internal/policy"
	"github.com/finchly/expenseflow/internal/repository"
	"github.com/finchly/expenseflow/pkg/database"
)

// DecisionInput is one decision on a report by an approver
type DecisionInput struct {
	Decision              models.Decision `json:"decision"`
	Comments              string          `json:"comments,omitempty"`
	OverrideJustification string          `json:"override_justification,omitempty"`
	ExpectedVersion       int64           `json:"expected_version"`
}

// QueueEntry is one report awaiting a manager's decision
type QueueEntry struct {
	Report        *models.ExpenseReport `json:"report"`
	HasExceptions bool                  `json:"has_exceptions"`
}

// ApprovalService records manager and finance decisions on submitted
// reports. A decision fires the matching workflow trigger, appends the
// approval row and the audit entry, and bumps the report version, all in
// one transaction.
type ApprovalService struct {
	db        *database.DB
	reports   *repository.ReportRepository
	approvals *repository.ApprovalRepository
	employees *repository.EmployeeRepository
	recorder  *audit.Recorder
	machine   *workflow.Machine
	logger    *zap.Logger
	now       func() time.Time
}

// NewApprovalService creates a new approval service
func NewApprovalService(
	db *database.DB,
	reports *repository.ReportRepository,
	approvals *repository.ApprovalRepository,
	employees *repository.EmployeeRepository,
	recorder *audit.Recorder,
	logger *zap.Logger,
) *ApprovalService {
	return &ApprovalService{
		db:        db,
		reports:   reports,
		approvals: approvals,
		employees: employees,
		recorder:  recorder,
		machine:   workflow.NewMachine(),
		logger:    logger,
		now:       time.Now,
	}
}

// Decide records one decision on a report. Managers act on submitted
// reports; finance may send a manager-approved report back for changes.
// Denials and change requests require a comment; approving a report that
// carries policy exceptions requires an override justification.
func (s *ApprovalService) Decide(ctx context.Context, actor Actor, reportID string, input DecisionInput) (*ReportView, error) {
	if !input.Decision.IsValid() {
		return nil, InvalidTransitionError(fmt.Sprintf("unknown decision %q", input.Decision))
	}

	report, err := s.reports.GetByID(nil, reportID)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	trigger, err := s.triggerFor(actor, report, input.Decision)
	if err != nil {
		return nil, err
	}
	next, err := s.machine.Next(report.Status, trigger)
	if err != nil {
		return nil, InvalidTransitionError(fmt.Sprintf(
			"cannot record %s on a report in status %s", input.Decision, report.Status))
	}

	if err := s.authorize(actor, report); err != nil {
		return nil, err
	}

	if input.Decision != models.DecisionApproved && input.Comments == "" {
		details := decisionDetails("comments", "a comment is required when denying or requesting changes")
		return nil, ValidationError("decision failed validation", details)
	}

	items, err := s.reports.ItemsByReport(nil, reportID)
	if err != nil {
		return nil, InternalError(err)
	}
	if input.Decision == models.DecisionApproved && hasExceptions(items) && input.OverrideJustification == "" {
		details := decisionDetails("override_justification",
			"approving a report with policy exceptions requires a justification")
		return nil, ValidationError("decision failed validation", details)
	}

	now := s.now().UTC()
	approval := &models.Approval{
		ID:                    uuid.NewString(),
		ReportID:              reportID,
		ApproverID:            actor.EmployeeID,
		Role:                  actor.Role,
		Decision:              input.Decision,
		Comments:              input.Comments,
		OverrideJustification: input.OverrideJustification,
		CreatedAt:             now,
	}

	err = s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.reports.UpdateStatus(tx, reportID, input.ExpectedVersion, next, now); err != nil {
			return err
		}
		if err := s.approvals.Create(tx, approval); err != nil {
			return err
		}
		return s.recorder.Record(tx, &models.AuditLogEntry{
			EntityType: models.EntityReport,
			EntityID:   reportID,
			EventType:  models.EventDecisionRecorded,
			OldValue:   statusSnapshot(report.Status, report.Version),
			NewValue: fmt.Sprintf(`{"status":%q,"version":%d,"decision":%q}`,
				next, report.Version+1, input.Decision),
			PerformedBy: actor.EmployeeID,
			IPAddress:   actor.IPAddress,
			UserAgent:   actor.UserAgent,
		})
	})
	if err != nil {
		return nil, mapRepoErr(err)
	}

	s.logger.Info("Decision recorded",
		zap.String("report_id", reportID),
		zap.String("decision", input.Decision.String()),
		zap.String("approver_id", actor.EmployeeID),
		zap.String("status", next.String()))

	updated, err := s.reports.GetByID(nil, reportID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	approvals, err := s.approvals.ListByReport(reportID)
	if err != nil {
		return nil, InternalError(err)
	}
	return &ReportView{Report: updated, Items: items, Approvals: approvals}, nil
}

// Queue returns the submitted reports awaiting the acting manager,
// oldest first. Admins see every submitted report.
func (s *ApprovalService) Queue(ctx context.Context, actor Actor) ([]*QueueEntry, error) {
	if !actor.CanActAsManager() {
		return nil, ForbiddenError("only managers may view the approval queue")
	}

	submitted, err := s.reports.ListByStatus(models.StatusSubmitted)
	if err != nil {
		return nil, InternalError(err)
	}

	var reportIDs map[string]bool
	if !actor.IsAdmin() {
		ids, err := s.employees.ListDirectReports(actor.EmployeeID)
		if err != nil {
			return nil, InternalError(err)
		}
		reportIDs = make(map[string]bool, len(ids))
		for _, id := range ids {
			reportIDs[id] = true
		}
	}

	entries := make([]*QueueEntry, 0, len(submitted))
	for _, report := range submitted {
		if reportIDs != nil && !reportIDs[report.EmployeeID] {
			continue
		}
		items, err := s.reports.ItemsByReport(nil, report.ID)
		if err != nil {
			return nil, InternalError(err)
		}
		entries = append(entries, &QueueEntry{
			Report:        report,
			HasExceptions: hasExceptions(items),
		})
	}
	return entries, nil
}

// triggerFor maps a decision onto the workflow trigger the actor's role is
// allowed to fire.
func (s *ApprovalService) triggerFor(actor Actor, report *models.ExpenseReport, decision models.Decision) (workflow.Trigger, error) {
	switch {
	case actor.CanActAsManager() && report.Status == models.StatusSubmitted:
		switch decision {
		case models.DecisionApproved:
			return workflow.TriggerManagerApprove, nil
		case models.DecisionDenied:
			return workflow.TriggerManagerDeny, nil
		case models.DecisionNeedsChanges:
			return workflow.TriggerManagerNeedsChanges, nil
		}
	case actor.CanActAsFinance() && report.Status == models.StatusManagerApproved:
		if decision == models.DecisionNeedsChanges {
			return workflow.TriggerFinanceReject, nil
		}
		return "", InvalidTransitionError("finance finalization goes through the batch endpoint")
	}
	return "", ForbiddenError(fmt.Sprintf(
		"role %s may not record %s on a report in status %s", actor.Role, decision, report.Status))
}

// authorize enforces the manager-over-owner rule: a manager decision is
// valid only for direct reports, and no one decides on their own report.
func (s *ApprovalService) authorize(actor Actor, report *models.ExpenseReport) error {
	if report.EmployeeID == actor.EmployeeID {
		return ForbiddenError("approvers may not decide on their own reports")
	}
	if actor.Role != models.RoleManager {
		return nil
	}
	owner, err := s.employees.GetByID(nil, report.EmployeeID)
	if err != nil {
		return InternalError(err)
	}
	if owner.ManagerID == nil || *owner.ManagerID != actor.EmployeeID {
		return ForbiddenError("managers may only decide on reports from their direct reports")
	}
	return nil
}

func decisionDetails(field, message string) *policy.Result {
	details := policy.NewResult()
	details.AddError(field, message)
	return details
}

func hasExceptions(items []*models.ExpenseItem) bool {
	for _, item := range items {
		if item.IsPolicyException {
			return true
		}
	}
	return false
}
