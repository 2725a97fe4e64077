package models

import "time"

// Audit event type constants
const (
	EventReportCreated    = "REPORT_CREATED"
	EventStatusChanged    = "STATUS_CHANGED"
	EventDecisionRecorded = "DECISION_RECORDED"
	EventItemsChanged     = "ITEMS_CHANGED"
	EventBatchCreated     = "BATCH_CREATED"
	EventBatchExported    = "BATCH_EXPORTED"
	EventBatchFailed      = "BATCH_FAILED"
	EventExportError      = "EXPORT_ERROR"
)

// Audit entity type constants
const (
	EntityReport = "expense_report"
	EntityBatch  = "netsuite_batch"
)

// AuditLogEntry is one append-only row of the tamper-evident audit trail.
// SignatureHash is a function of the entry's own fields plus the previous
// entry's hash for the same entity, so any retroactive edit or deletion
// breaks the chain from that point forward.
type AuditLogEntry struct {
	ID            int64     `json:"id"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	EventType     string    `json:"event_type"`
	OldValue      string    `json:"old_value,omitempty"`
	NewValue      string    `json:"new_value,omitempty"`
	PerformedBy   string    `json:"performed_by,omitempty"`
	PerformedAt   time.Time `json:"performed_at"`
	IPAddress     string    `json:"ip_address,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	SignatureHash string    `json:"signature_hash"`
}
