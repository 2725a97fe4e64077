package repository

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/finchly/expenseflow/internal/models"
)

// BatchRepository persists ledger export batches, their journal lines and
// the batch/report join. Claiming is a conditional update so that at most
// one exporter instance owns a batch at a time.
type BatchRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *sql.DB, logger *zap.Logger) *BatchRepository {
	return &BatchRepository{
		db:     db,
		logger: logger,
	}
}

func (r *BatchRepository) conn(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts a new batch
func (r *BatchRepository) Create(tx *sql.Tx, batch *models.NetsuiteBatch) error {
	query := `
		INSERT INTO netsuite_batches (id, batch_reference, finalized_by, finalized_at, status, claimed_at, exported_at, netsuite_response)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.conn(tx).Exec(query,
		batch.ID,
		batch.BatchReference,
		batch.FinalizedBy,
		batch.FinalizedAt,
		batch.Status,
		batch.ClaimedAt,
		batch.ExportedAt,
		batch.RawResponse,
	)
	if err != nil {
		r.logger.Error("Failed to create batch", zap.String("id", batch.ID), zap.Error(err))
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

const batchColumns = `id, batch_reference, finalized_by, finalized_at, status, claimed_at, exported_at, netsuite_response`

func scanBatch(row interface{ Scan(...any) error }) (*models.NetsuiteBatch, error) {
	var batch models.NetsuiteBatch
	var response sql.NullString
	err := row.Scan(
		&batch.ID,
		&batch.BatchReference,
		&batch.FinalizedBy,
		&batch.FinalizedAt,
		&batch.Status,
		&batch.ClaimedAt,
		&batch.ExportedAt,
		&response,
	)
	if err != nil {
		return nil, err
	}
	batch.RawResponse = response.String
	return &batch, nil
}

// GetByID retrieves a batch by ID
func (r *BatchRepository) GetByID(id string) (*models.NetsuiteBatch, error) {
	batch, err := scanBatch(r.db.QueryRow(`SELECT `+batchColumns+` FROM netsuite_batches WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get batch", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return batch, nil
}

// ListPending returns pending batches plus batches whose claim lease has
// lapsed, oldest first. A lapsed claim means a previous exporter run died
// mid-flight; those batches must be reconciled before resubmission.
func (r *BatchRepository) ListPending(now time.Time, claimLease time.Duration) ([]*models.NetsuiteBatch, error) {
	cutoff := now.Add(-claimLease)
	query := `
		SELECT ` + batchColumns + `
		FROM netsuite_batches
		WHERE status = ? OR (status = ? AND claimed_at < ?)
		ORDER BY finalized_at ASC, id ASC
	`
	rows, err := r.db.Query(query, models.BatchPending, models.BatchSubmitting, cutoff)
	if err != nil {
		r.logger.Error("Failed to list pending batches", zap.Error(err))
		return nil, fmt.Errorf("failed to list pending batches: %w", err)
	}
	defer rows.Close()

	var batches []*models.NetsuiteBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

// Claim moves a batch to submitting if it is still claimable: either
// pending, or submitting with a lapsed lease. Returns false when another
// exporter holds the batch.
func (r *BatchRepository) Claim(id string, now time.Time, claimLease time.Duration) (bool, error) {
	cutoff := now.Add(-claimLease)
	query := `
		UPDATE netsuite_batches
		SET status = ?, claimed_at = ?
		WHERE id = ? AND (status = ? OR (status = ? AND claimed_at < ?))
	`
	result, err := r.db.Exec(query, models.BatchSubmitting, now, id, models.BatchPending, models.BatchSubmitting, cutoff)
	if err != nil {
		r.logger.Error("Failed to claim batch", zap.String("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to claim batch: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// Release puts a claimed batch back to pending so a later cycle retries it
func (r *BatchRepository) Release(tx *sql.Tx, id string) error {
	query := `UPDATE netsuite_batches SET status = ?, claimed_at = NULL WHERE id = ? AND status = ?`
	_, err := r.conn(tx).Exec(query, models.BatchPending, id, models.BatchSubmitting)
	if err != nil {
		r.logger.Error("Failed to release batch", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to release batch: %w", err)
	}
	return nil
}

// MarkExported records a successful export and the ledger's raw reply
func (r *BatchRepository) MarkExported(tx *sql.Tx, id string, exportedAt time.Time, rawResponse string) error {
	query := `UPDATE netsuite_batches SET status = ?, exported_at = ?, netsuite_response = ? WHERE id = ?`
	_, err := r.conn(tx).Exec(query, models.BatchExported, exportedAt, rawResponse, id)
	if err != nil {
		r.logger.Error("Failed to mark batch exported", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark batch exported: %w", err)
	}
	return nil
}

// MarkFailed records a permanent export failure and the last ledger reply
func (r *BatchRepository) MarkFailed(tx *sql.Tx, id string, rawResponse string) error {
	query := `UPDATE netsuite_batches SET status = ?, netsuite_response = ? WHERE id = ?`
	_, err := r.conn(tx).Exec(query, models.BatchFailed, rawResponse, id)
	if err != nil {
		r.logger.Error("Failed to mark batch failed", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark batch failed: %w", err)
	}
	return nil
}

// AddReport links a finalized report into a batch
func (r *BatchRepository) AddReport(tx *sql.Tx, batchID, reportID string) error {
	_, err := r.conn(tx).Exec(`INSERT INTO batch_reports (batch_id, report_id) VALUES (?, ?)`, batchID, reportID)
	if err != nil {
		r.logger.Error("Failed to link report to batch",
			zap.String("batch_id", batchID), zap.String("report_id", reportID), zap.Error(err))
		return fmt.Errorf("failed to link report to batch: %w", err)
	}
	return nil
}

// ReportIDs returns the IDs of the reports grouped into a batch
func (r *BatchRepository) ReportIDs(batchID string) ([]string, error) {
	rows, err := r.db.Query(`SELECT report_id FROM batch_reports WHERE batch_id = ? ORDER BY report_id`, batchID)
	if err != nil {
		r.logger.Error("Failed to list batch reports", zap.String("batch_id", batchID), zap.Error(err))
		return nil, fmt.Errorf("failed to list batch reports: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan report id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateLine inserts one journal line
func (r *BatchRepository) CreateLine(tx *sql.Tx, line *models.JournalLine) error {
	query := `
		INSERT INTO journal_lines (id, batch_id, report_id, line_number, gl_account, amount_cents, department, class, memo, tax_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.conn(tx).Exec(query,
		line.ID,
		line.BatchID,
		line.ReportID,
		line.LineNumber,
		line.GLAccount,
		line.AmountCents,
		line.Department,
		line.Class,
		line.Memo,
		line.TaxCode,
	)
	if err != nil {
		r.logger.Error("Failed to create journal line", zap.String("batch_id", line.BatchID), zap.Error(err))
		return fmt.Errorf("failed to create journal line: %w", err)
	}
	return nil
}

// LinesByBatch returns a batch's journal lines in line number order
func (r *BatchRepository) LinesByBatch(batchID string) ([]*models.JournalLine, error) {
	query := `
		SELECT id, batch_id, report_id, line_number, gl_account, amount_cents, department, class, memo, tax_code
		FROM journal_lines
		WHERE batch_id = ?
		ORDER BY line_number ASC
	`
	rows, err := r.db.Query(query, batchID)
	if err != nil {
		r.logger.Error("Failed to list journal lines", zap.String("batch_id", batchID), zap.Error(err))
		return nil, fmt.Errorf("failed to list journal lines: %w", err)
	}
	defer rows.Close()

	var lines []*models.JournalLine
	for rows.Next() {
		var line models.JournalLine
		var department, class, memo, taxCode sql.NullString
		err := rows.Scan(
			&line.ID,
			&line.BatchID,
			&line.ReportID,
			&line.LineNumber,
			&line.GLAccount,
			&line.AmountCents,
			&department,
			&class,
			&memo,
			&taxCode,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal line: %w", err)
		}
		line.Department = department.String
		line.Class = class.String
		line.Memo = memo.String
		line.TaxCode = taxCode.String
		lines = append(lines, &line)
	}
	return lines, rows.Err()
}

// Summaries returns the finance-facing batch listing, newest first
func (r *BatchRepository) Summaries(limit int) ([]*models.BatchSummary, error) {
	query := `
		SELECT b.id, b.batch_reference,
			(SELECT COUNT(*) FROM batch_reports br WHERE br.batch_id = b.id),
			(SELECT COALESCE(SUM(jl.amount_cents), 0) FROM journal_lines jl WHERE jl.batch_id = b.id),
			b.status, b.finalized_at, b.exported_at
		FROM netsuite_batches b
		ORDER BY b.finalized_at DESC, b.id DESC
		LIMIT ?
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		r.logger.Error("Failed to list batch summaries", zap.Error(err))
		return nil, fmt.Errorf("failed to list batch summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*models.BatchSummary
	for rows.Next() {
		var summary models.BatchSummary
		err := rows.Scan(
			&summary.ID,
			&summary.BatchReference,
			&summary.ReportCount,
			&summary.TotalCents,
			&summary.Status,
			&summary.FinalizedAt,
			&summary.ExportedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch summary: %w", err)
		}
		summaries = append(summaries, &summary)
	}
	return summaries, rows.Err()
}
