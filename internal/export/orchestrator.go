package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/finchly/expenseflow/internal/audit"
	"github.com/finchly/expenseflow/internal/models"
	"github.com/finchly/expenseflow/internal/repository"
	"github.com/finchly/expenseflow/pkg/database"
)

// Orchestrator drives pending batches through the export pipeline. Each
// batch is claimed with a lease before submission, and every resubmission,
// whether after a transient failure or for a claim left by a dead run, is
// preceded by a ledger lookup, so an interrupted or timed-out export can
// never post a journal entry twice.
type Orchestrator struct {
	db         *database.DB
	batches    *repository.BatchRepository
	recorder   *audit.Recorder
	client     LedgerClient
	strategy   *RetryStrategy
	workbooks  *WorkbookWriter
	claimLease time.Duration
	logger     *zap.Logger
	now        func() time.Time
	sleep      func(time.Duration)
}

// NewOrchestrator creates a new export orchestrator
func NewOrchestrator(
	db *database.DB,
	batches *repository.BatchRepository,
	recorder *audit.Recorder,
	client LedgerClient,
	strategy *RetryStrategy,
	workbooks *WorkbookWriter,
	claimLease time.Duration,
	logger *zap.Logger,
) *Orchestrator {
	if claimLease <= 0 {
		claimLease = 5 * time.Minute
	}
	return &Orchestrator{
		db:         db,
		batches:    batches,
		recorder:   recorder,
		client:     client,
		strategy:   strategy,
		workbooks:  workbooks,
		claimLease: claimLease,
		logger:     logger,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// ExportPending processes every claimable batch once. Failures on one
// batch do not stop the others.
func (o *Orchestrator) ExportPending(ctx context.Context) error {
	pending, err := o.batches.ListPending(o.now().UTC(), o.claimLease)
	if err != nil {
		return err
	}
	for _, batch := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := o.exportOne(ctx, batch); err != nil {
			o.logger.Error("Batch export failed",
				zap.String("batch_id", batch.ID),
				zap.String("batch_reference", batch.BatchReference),
				zap.Error(err))
		}
	}
	return nil
}

func (o *Orchestrator) exportOne(ctx context.Context, batch *models.NetsuiteBatch) error {
	// A batch listed as submitting was claimed by a run that died; its
	// submission may or may not have reached the ledger.
	needsReconcile := batch.Status == models.BatchSubmitting

	claimed, err := o.batches.Claim(batch.ID, o.now().UTC(), o.claimLease)
	if err != nil {
		return err
	}
	if !claimed {
		// another exporter got there first
		return nil
	}

	if needsReconcile {
		done, err := o.reconcile(ctx, batch)
		if err != nil {
			return o.release(batch.ID, err)
		}
		if done {
			return nil
		}
	}

	lines, err := o.batches.LinesByBatch(batch.ID)
	if err != nil {
		return o.release(batch.ID, err)
	}

	req := &LedgerRequest{
		BatchID:        batch.ID,
		BatchReference: batch.BatchReference,
		Lines:          lines,
	}

	var lastErr error
	for attempt := 1; attempt <= o.strategy.MaxAttempts; attempt++ {
		resp, err := o.client.SubmitBatch(ctx, req)
		if err == nil {
			return o.markExported(batch, resp)
		}
		lastErr = err

		if !IsTransient(err) {
			o.logger.Warn("Batch rejected by ledger",
				zap.String("batch_reference", batch.BatchReference),
				zap.Error(err))
			return o.markFailed(batch, lines, err)
		}

		o.logger.Warn("Transient ledger failure",
			zap.String("batch_reference", batch.BatchReference),
			zap.Int("attempt", attempt),
			zap.Error(err))
		o.auditExportError(batch, attempt, err)

		if attempt < o.strategy.MaxAttempts {
			o.sleep(o.strategy.CalculateBackoff(attempt))

			// A transient failure includes timeouts, where the submission
			// may have reached the ledger anyway. Look the batch up before
			// resubmitting so a retry can never post it twice.
			done, rerr := o.reconcile(ctx, batch)
			if rerr != nil {
				return o.release(batch.ID, rerr)
			}
			if done {
				return nil
			}
		}
	}

	return o.markFailed(batch, lines, fmt.Errorf("retries exhausted: %w", lastErr))
}

// reconcile checks whether an interrupted submission already reached the
// ledger. Returns true when the batch is settled and needs no resubmission.
func (o *Orchestrator) reconcile(ctx context.Context, batch *models.NetsuiteBatch) (bool, error) {
	resp, err := o.client.LookupBatch(ctx, batch.BatchReference)
	if errors.Is(err, ErrBatchNotFound) {
		// the earlier submission never landed; safe to resubmit
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reconcile lookup failed: %w", err)
	}

	o.logger.Info("Reconciled interrupted batch against ledger",
		zap.String("batch_reference", batch.BatchReference),
		zap.String("transaction_id", resp.TransactionID))
	return true, o.markExported(batch, resp)
}

func (o *Orchestrator) markExported(batch *models.NetsuiteBatch, resp *LedgerResponse) error {
	now := o.now().UTC()
	return o.db.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		if err := o.batches.MarkExported(tx, batch.ID, now, resp.Raw); err != nil {
			return err
		}
		return o.recorder.Record(tx, &models.AuditLogEntry{
			EntityType:  models.EntityBatch,
			EntityID:    batch.ID,
			EventType:   models.EventBatchExported,
			OldValue:    fmt.Sprintf(`{"status":%q}`, batch.Status),
			NewValue:    fmt.Sprintf(`{"status":%q,"transaction_id":%q}`, models.BatchExported, resp.TransactionID),
			PerformedBy: "exporter",
		})
	})
}

func (o *Orchestrator) markFailed(batch *models.NetsuiteBatch, lines []*models.JournalLine, cause error) error {
	err := o.db.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		if err := o.batches.MarkFailed(tx, batch.ID, cause.Error()); err != nil {
			return err
		}
		return o.recorder.Record(tx, &models.AuditLogEntry{
			EntityType:  models.EntityBatch,
			EntityID:    batch.ID,
			EventType:   models.EventBatchFailed,
			OldValue:    fmt.Sprintf(`{"status":%q}`, batch.Status),
			NewValue:    fmt.Sprintf(`{"status":%q}`, models.BatchFailed),
			PerformedBy: "exporter",
		})
	})
	if err != nil {
		return err
	}

	if o.workbooks != nil {
		failed := *batch
		failed.RawResponse = cause.Error()
		if _, wbErr := o.workbooks.Write(&failed, lines); wbErr != nil {
			o.logger.Error("Failed to write remediation workbook",
				zap.String("batch_reference", batch.BatchReference),
				zap.Error(wbErr))
		}
	}
	return nil
}

// release puts the batch back to pending after an infrastructure failure
// so the next cycle can retry, and reports the original error.
func (o *Orchestrator) release(batchID string, cause error) error {
	if err := o.batches.Release(nil, batchID); err != nil {
		o.logger.Error("Failed to release batch claim",
			zap.String("batch_id", batchID), zap.Error(err))
	}
	return cause
}

func (o *Orchestrator) auditExportError(batch *models.NetsuiteBatch, attempt int, cause error) {
	err := o.db.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		return o.recorder.Record(tx, &models.AuditLogEntry{
			EntityType:  models.EntityBatch,
			EntityID:    batch.ID,
			EventType:   models.EventExportError,
			NewValue:    fmt.Sprintf(`{"attempt":%d,"error":%q}`, attempt, cause.Error()),
			PerformedBy: "exporter",
		})
	})
	if err != nil {
		o.logger.Error("Failed to record export error",
			zap.String("batch_id", batch.ID), zap.Error(err))
	}
}
