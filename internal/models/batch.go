package models

import "time"

// BatchStatus represents the export lifecycle of a ledger batch
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchSubmitting BatchStatus = "submitting"
	BatchExported   BatchStatus = "exported"
	BatchFailed     BatchStatus = "failed"
)

var validBatchStatuses = map[BatchStatus]bool{
	BatchPending:    true,
	BatchSubmitting: true,
	BatchExported:   true,
	BatchFailed:     true,
}

// IsValid returns true if the status is a known batch status
func (s BatchStatus) IsValid() bool {
	return validBatchStatuses[s]
}

// String returns the string representation of the status
func (s BatchStatus) String() string {
	return string(s)
}

// NetsuiteBatch groups finalized reports for one logical export to the
// external ledger. RawResponse keeps the ledger's last reply verbatim for
// diagnostics and manual remediation.
type NetsuiteBatch struct {
	ID             string      `json:"id"`
	BatchReference string      `json:"batch_reference"`
	FinalizedBy    string      `json:"finalized_by"`
	FinalizedAt    time.Time   `json:"finalized_at"`
	Status         BatchStatus `json:"status"`
	ClaimedAt      *time.Time  `json:"claimed_at,omitempty"`
	ExportedAt     *time.Time  `json:"exported_at,omitempty"`
	RawResponse    string      `json:"netsuite_response,omitempty"`
}

// JournalLine is one GL posting derived deterministically from a single
// expense item; it belongs to exactly one batch.
type JournalLine struct {
	ID          string `json:"id"`
	BatchID     string `json:"batch_id"`
	ReportID    string `json:"report_id"`
	LineNumber  int    `json:"line_number"`
	GLAccount   string `json:"gl_account"`
	AmountCents int64  `json:"amount_cents"`
	Department  string `json:"department,omitempty"`
	Class       string `json:"class,omitempty"`
	Memo        string `json:"memo,omitempty"`
	TaxCode     string `json:"tax_code,omitempty"`
}

// BatchSummary is the finance-facing view returned by the batches listing
type BatchSummary struct {
	ID             string      `json:"id"`
	BatchReference string      `json:"batch_reference"`
	ReportCount    int         `json:"report_count"`
	TotalCents     int64       `json:"total_amount_cents"`
	Status         BatchStatus `json:"status"`
	FinalizedAt    time.Time   `json:"finalized_at"`
	ExportedAt     *time.Time  `json:"exported_at,omitempty"`
}
