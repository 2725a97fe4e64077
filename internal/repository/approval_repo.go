package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/finchly/expenseflow/internal/models"
)

// ApprovalRepository persists decision events. Rows are append-only; a
// report's approval history is never rewritten.
type ApprovalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *sql.DB, logger *zap.Logger) *ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ApprovalRepository) conn(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create records a decision event
func (r *ApprovalRepository) Create(tx *sql.Tx, approval *models.Approval) error {
	query := `
		INSERT INTO approvals (id, report_id, approver_id, role, decision, comments, override_justification, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.conn(tx).Exec(query,
		approval.ID,
		approval.ReportID,
		approval.ApproverID,
		approval.Role,
		approval.Decision,
		approval.Comments,
		approval.OverrideJustification,
		approval.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create approval", zap.String("report_id", approval.ReportID), zap.Error(err))
		return fmt.Errorf("failed to create approval: %w", err)
	}
	return nil
}

// ListByReport returns the decision history of a report, oldest first
func (r *ApprovalRepository) ListByReport(reportID string) ([]*models.Approval, error) {
	query := `
		SELECT id, report_id, approver_id, role, decision, comments, override_justification, created_at
		FROM approvals
		WHERE report_id = ?
		ORDER BY created_at ASC, rowid ASC
	`
	rows, err := r.db.Query(query, reportID)
	if err != nil {
		r.logger.Error("Failed to list approvals", zap.String("report_id", reportID), zap.Error(err))
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*models.Approval
	for rows.Next() {
		var approval models.Approval
		var comments, justification sql.NullString
		err := rows.Scan(
			&approval.ID,
			&approval.ReportID,
			&approval.ApproverID,
			&approval.Role,
			&approval.Decision,
			&comments,
			&justification,
			&approval.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approval.Comments = comments.String
		approval.OverrideJustification = justification.String
		approvals = append(approvals, &approval)
	}
	return approvals, rows.Err()
}
