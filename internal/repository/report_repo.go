package repository

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/finchly/expenseflow/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx so repository methods
// can run standalone or inside a workflow transaction.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// ReportRepository owns the persisted report/item/receipt aggregate and its
// version counter, the unit of optimistic-concurrency control.
type ReportRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *sql.DB, logger *zap.Logger) *ReportRepository {
	return &ReportRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ReportRepository) conn(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts a new draft report
func (r *ReportRepository) Create(tx *sql.Tx, report *models.ExpenseReport) error {
	query := `
		INSERT INTO expense_reports (
			id, employee_id, reporting_period_start, reporting_period_end,
			currency, status, total_amount_cents, total_reimbursable_cents,
			version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.conn(tx).Exec(query,
		report.ID,
		report.EmployeeID,
		report.PeriodStart,
		report.PeriodEnd,
		report.Currency,
		report.Status,
		report.TotalAmountCents,
		report.TotalReimbursableCents,
		report.Version,
		report.CreatedAt,
		report.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create report", zap.String("id", report.ID), zap.Error(err))
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

const reportColumns = `
	id, employee_id, reporting_period_start, reporting_period_end,
	currency, status, total_amount_cents, total_reimbursable_cents,
	version, created_at, updated_at
`

func scanReport(row interface{ Scan(...any) error }) (*models.ExpenseReport, error) {
	var report models.ExpenseReport
	err := row.Scan(
		&report.ID,
		&report.EmployeeID,
		&report.PeriodStart,
		&report.PeriodEnd,
		&report.Currency,
		&report.Status,
		&report.TotalAmountCents,
		&report.TotalReimbursableCents,
		&report.Version,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// GetByID retrieves a report, optionally inside a transaction. Workflow
// transitions re-read through their transaction so the guard and the write
// see the same version.
func (r *ReportRepository) GetByID(tx *sql.Tx, id string) (*models.ExpenseReport, error) {
	query := `SELECT ` + reportColumns + ` FROM expense_reports WHERE id = ?`
	report, err := scanReport(r.conn(tx).QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get report", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

// ListByStatus returns reports in the given status, oldest first
func (r *ReportRepository) ListByStatus(status models.ReportStatus) ([]*models.ExpenseReport, error) {
	query := `SELECT ` + reportColumns + ` FROM expense_reports WHERE status = ? ORDER BY updated_at ASC, id ASC`
	rows, err := r.db.Query(query, status)
	if err != nil {
		r.logger.Error("Failed to list reports", zap.String("status", string(status)), zap.Error(err))
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.ExpenseReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// UpdateStatus writes a new status guarded by the version the caller last
// observed. The version check and the increment happen in one statement;
// zero rows affected on an existing report means a concurrent writer got
// there first and the caller receives ErrVersionConflict.
func (r *ReportRepository) UpdateStatus(tx *sql.Tx, id string, expectedVersion int64, status models.ReportStatus, now time.Time) error {
	query := `
		UPDATE expense_reports
		SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := r.conn(tx).Exec(query, status, now, id, expectedVersion)
	if err != nil {
		r.logger.Error("Failed to update report status", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update report status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := r.GetByID(tx, id); err != nil {
			return err
		}
		return ErrVersionConflict
	}
	return nil
}

// UpdateTotals rewrites the derived totals. Every write path that mutates
// items recomputes totals in the same transaction; totals are never stored
// independently of the items they summarize.
func (r *ReportRepository) UpdateTotals(tx *sql.Tx, id string, totalCents, reimbursableCents int64) error {
	query := `
		UPDATE expense_reports
		SET total_amount_cents = ?, total_reimbursable_cents = ?
		WHERE id = ?
	`
	_, err := r.conn(tx).Exec(query, totalCents, reimbursableCents, id)
	if err != nil {
		r.logger.Error("Failed to update report totals", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update report totals: %w", err)
	}
	return nil
}

// CreateItem inserts an expense item
func (r *ReportRepository) CreateItem(tx *sql.Tx, item *models.ExpenseItem) error {
	query := `
		INSERT INTO expense_items (
			id, report_id, expense_date, category, gl_account_id, description,
			attendees, location, amount_cents, reimbursable, payment_method,
			mileage_miles, is_policy_exception
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.conn(tx).Exec(query,
		item.ID,
		item.ReportID,
		item.ExpenseDate,
		item.Category,
		item.GLAccountID,
		item.Description,
		item.Attendees,
		item.Location,
		item.AmountCents,
		item.Reimbursable,
		item.PaymentMethod,
		item.MileageMiles,
		item.IsPolicyException,
	)
	if err != nil {
		r.logger.Error("Failed to create expense item", zap.String("report_id", item.ReportID), zap.Error(err))
		return fmt.Errorf("failed to create expense item: %w", err)
	}
	return nil
}

// ItemsByReport returns the items of a report in insertion order
func (r *ReportRepository) ItemsByReport(tx *sql.Tx, reportID string) ([]*models.ExpenseItem, error) {
	query := `
		SELECT id, report_id, expense_date, category, gl_account_id, description,
			attendees, location, amount_cents, reimbursable, payment_method,
			mileage_miles, is_policy_exception
		FROM expense_items
		WHERE report_id = ?
		ORDER BY rowid ASC
	`
	rows, err := r.conn(tx).Query(query, reportID)
	if err != nil {
		r.logger.Error("Failed to list expense items", zap.String("report_id", reportID), zap.Error(err))
		return nil, fmt.Errorf("failed to list expense items: %w", err)
	}
	defer rows.Close()

	var items []*models.ExpenseItem
	for rows.Next() {
		var item models.ExpenseItem
		var description, attendees, location, paymentMethod sql.NullString
		err := rows.Scan(
			&item.ID,
			&item.ReportID,
			&item.ExpenseDate,
			&item.Category,
			&item.GLAccountID,
			&description,
			&attendees,
			&location,
			&item.AmountCents,
			&item.Reimbursable,
			&paymentMethod,
			&item.MileageMiles,
			&item.IsPolicyException,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense item: %w", err)
		}
		item.Description = description.String
		item.Attendees = attendees.String
		item.Location = location.String
		item.PaymentMethod = paymentMethod.String
		items = append(items, &item)
	}
	return items, rows.Err()
}

// DeleteItems removes all items of a report. Receipts cascade with their
// items. Used when a draft is re-edited; submitted snapshots are immutable.
func (r *ReportRepository) DeleteItems(tx *sql.Tx, reportID string) error {
	_, err := r.conn(tx).Exec(`DELETE FROM expense_items WHERE report_id = ?`, reportID)
	if err != nil {
		r.logger.Error("Failed to delete expense items", zap.String("report_id", reportID), zap.Error(err))
		return fmt.Errorf("failed to delete expense items: %w", err)
	}
	return nil
}

// SetItemException stores the policy engine's exception flag for an item
func (r *ReportRepository) SetItemException(tx *sql.Tx, itemID string, flagged bool) error {
	_, err := r.conn(tx).Exec(`UPDATE expense_items SET is_policy_exception = ? WHERE id = ?`, flagged, itemID)
	if err != nil {
		r.logger.Error("Failed to flag expense item", zap.String("item_id", itemID), zap.Error(err))
		return fmt.Errorf("failed to flag expense item: %w", err)
	}
	return nil
}

// CreateReceipt inserts receipt metadata for an item
func (r *ReportRepository) CreateReceipt(tx *sql.Tx, receipt *models.Receipt) error {
	query := `
		INSERT INTO receipts (id, expense_item_id, file_key, file_name, mime_type, size_bytes, uploaded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.conn(tx).Exec(query,
		receipt.ID,
		receipt.ExpenseItemID,
		receipt.FileKey,
		receipt.FileName,
		receipt.MimeType,
		receipt.SizeBytes,
		receipt.UploadedBy,
		receipt.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create receipt", zap.String("item_id", receipt.ExpenseItemID), zap.Error(err))
		return fmt.Errorf("failed to create receipt: %w", err)
	}
	return nil
}

// ReceiptsByReport returns receipt metadata grouped by expense item ID
func (r *ReportRepository) ReceiptsByReport(tx *sql.Tx, reportID string) (map[string][]*models.Receipt, error) {
	query := `
		SELECT r.id, r.expense_item_id, r.file_key, r.file_name, r.mime_type,
			r.size_bytes, r.uploaded_by, r.created_at
		FROM receipts r
		JOIN expense_items i ON i.id = r.expense_item_id
		WHERE i.report_id = ?
		ORDER BY r.rowid ASC
	`
	rows, err := r.conn(tx).Query(query, reportID)
	if err != nil {
		r.logger.Error("Failed to list receipts", zap.String("report_id", reportID), zap.Error(err))
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	receipts := make(map[string][]*models.Receipt)
	for rows.Next() {
		var receipt models.Receipt
		err := rows.Scan(
			&receipt.ID,
			&receipt.ExpenseItemID,
			&receipt.FileKey,
			&receipt.FileName,
			&receipt.MimeType,
			&receipt.SizeBytes,
			&receipt.UploadedBy,
			&receipt.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts[receipt.ExpenseItemID] = append(receipts[receipt.ExpenseItemID], &receipt)
	}
	return receipts, rows.Err()
}
