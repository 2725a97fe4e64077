package audit

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/finchly/expenseflow/internal/models"
	"github.com/finchly/expenseflow/internal/repository"
)

// chainSeed anchors the first entry of every per-entity chain. It is part
// of the hash input and must never change once entries exist.
const chainSeed = "expenseflow-audit-v1"

// hashTimestampLayout must match the stored representation exactly or
// verification of a read-back chain would diverge from what was written.
const hashTimestampLayout = time.RFC3339Nano

// Recorder appends tamper-evident entries to the audit trail. Each entry's
// signature covers its own fields plus the previous entry's signature for
// the same entity, forming a per-entity hash chain.
type Recorder struct {
	repo   *repository.AuditRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder creates a new audit recorder
func NewRecorder(repo *repository.AuditRepository, logger *zap.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Record appends one entry inside the caller's transaction. The entry is
// written in the same transaction as the state change it describes, so a
// transition either commits with its audit entry or not at all.
func (r *Recorder) Record(tx *sql.Tx, entry *models.AuditLogEntry) error {
	if entry.PerformedAt.IsZero() {
		entry.PerformedAt = r.now()
	}
	entry.PerformedAt = entry.PerformedAt.UTC()

	prev, err := r.repo.LastHash(tx, entry.EntityType, entry.EntityID)
	if err != nil {
		return err
	}
	entry.SignatureHash = ComputeSignature(prev, entry)

	if err := r.repo.Insert(tx, entry); err != nil {
		return err
	}
	r.logger.Debug("Recorded audit entry",
		zap.String("entity_type", entry.EntityType),
		zap.String("entity_id", entry.EntityID),
		zap.String("event_type", entry.EventType))
	return nil
}

// ComputeSignature derives an entry's signature from the previous entry's
// signature and the entry's own fields. An empty prev means the entry opens
// the chain and is anchored on the seed instead.
func ComputeSignature(prev string, entry *models.AuditLogEntry) string {
	if prev == "" {
		prev = chainSeed
	}
	payload := strings.Join([]string{
		prev,
		entry.EntityType,
		entry.EntityID,
		entry.EventType,
		entry.OldValue,
		entry.NewValue,
		entry.PerformedBy,
		entry.PerformedAt.UTC().Format(hashTimestampLayout),
		entry.IPAddress,
		entry.UserAgent,
	}, "\x1f")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Verify replays an entity's chain and reports the first entry whose stored
// signature does not match the recomputed one. Entries must be in insertion
// order, as returned by the repository.
func Verify(entries []*models.AuditLogEntry) error {
	prev := ""
	for i, entry := range entries {
		expected := ComputeSignature(prev, entry)
		if entry.SignatureHash != expected {
			return fmt.Errorf("audit chain broken at entry %d (id %d): signature mismatch", i, entry.ID)
		}
		prev = entry.SignatureHash
	}
	return nil
}

// VerifyEntity loads an entity's trail and verifies its chain
func (r *Recorder) VerifyEntity(entityType, entityID string) error {
	entries, err := r.repo.ListByEntity(entityType, entityID)
	if err != nil {
		return err
	}
	return Verify(entries)
}
