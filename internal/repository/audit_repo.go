package repository

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/finchly/expenseflow/internal/models"
)

// timestampLayout pins the stored representation of performed_at. The
// signature hash covers this exact string, so the format can never change
// without breaking verification of existing chains.
const timestampLayout = time.RFC3339Nano

// AuditRepository appends to and reads the audit trail. There are no update
// or delete methods on purpose.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

func (r *AuditRepository) conn(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.db
}

// Insert appends one entry and fills in its assigned ID
func (r *AuditRepository) Insert(tx *sql.Tx, entry *models.AuditLogEntry) error {
	query := `
		INSERT INTO audit_log (entity_type, entity_id, event_type, old_value, new_value, performed_by, performed_at, ip_address, user_agent, signature_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.conn(tx).Exec(query,
		entry.EntityType,
		entry.EntityID,
		entry.EventType,
		entry.OldValue,
		entry.NewValue,
		entry.PerformedBy,
		entry.PerformedAt.UTC().Format(timestampLayout),
		entry.IPAddress,
		entry.UserAgent,
		entry.SignatureHash,
	)
	if err != nil {
		r.logger.Error("Failed to insert audit entry",
			zap.String("entity_id", entry.EntityID), zap.String("event_type", entry.EventType), zap.Error(err))
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read audit entry id: %w", err)
	}
	entry.ID = id
	return nil
}

// LastHash returns the signature hash of the most recent entry for an
// entity, or "" when the entity has no entries yet.
func (r *AuditRepository) LastHash(tx *sql.Tx, entityType, entityID string) (string, error) {
	query := `
		SELECT signature_hash FROM audit_log
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY id DESC LIMIT 1
	`
	var hash string
	err := r.conn(tx).QueryRow(query, entityType, entityID).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		r.logger.Error("Failed to read last audit hash", zap.String("entity_id", entityID), zap.Error(err))
		return "", fmt.Errorf("failed to read last audit hash: %w", err)
	}
	return hash, nil
}

// ListByEntity returns an entity's entries in insertion order
func (r *AuditRepository) ListByEntity(entityType, entityID string) ([]*models.AuditLogEntry, error) {
	query := `
		SELECT id, entity_type, entity_id, event_type, old_value, new_value, performed_by, performed_at, ip_address, user_agent, signature_hash
		FROM audit_log
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY id ASC
	`
	rows, err := r.db.Query(query, entityType, entityID)
	if err != nil {
		r.logger.Error("Failed to list audit entries", zap.String("entity_id", entityID), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditLogEntry
	for rows.Next() {
		var entry models.AuditLogEntry
		var oldValue, newValue, performedBy, ipAddress, userAgent sql.NullString
		var performedAt string
		err := rows.Scan(
			&entry.ID,
			&entry.EntityType,
			&entry.EntityID,
			&entry.EventType,
			&oldValue,
			&newValue,
			&performedBy,
			&performedAt,
			&ipAddress,
			&userAgent,
			&entry.SignatureHash,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.OldValue = oldValue.String
		entry.NewValue = newValue.String
		entry.PerformedBy = performedBy.String
		entry.IPAddress = ipAddress.String
		entry.UserAgent = userAgent.String
		entry.PerformedAt, err = time.Parse(timestampLayout, performedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audit timestamp: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
