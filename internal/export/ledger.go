package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/finchly/expenseflow/internal/models"
)

// ErrBatchNotFound is returned by LookupBatch when the ledger has no record
// of the reference.
var ErrBatchNotFound = errors.New("batch not found in ledger")

// LedgerRequest is one batch submission to the external ledger
type LedgerRequest struct {
	BatchID        string
	BatchReference string
	Lines          []*models.JournalLine
}

// LedgerResponse is the ledger's reply to a submission or lookup. Raw keeps
// the reply body verbatim for the batch record.
type LedgerResponse struct {
	TransactionID string
	Raw           string
}

// LedgerClient is the outbound port to the accounting system. Submissions
// are idempotent on BatchReference: resubmitting an already-accepted
// reference must not create a duplicate journal entry, and LookupBatch
// answers whether a reference was accepted by an earlier, interrupted run.
type LedgerClient interface {
	SubmitBatch(ctx context.Context, req *LedgerRequest) (*LedgerResponse, error)
	LookupBatch(ctx context.Context, batchReference string) (*LedgerResponse, error)
}

// TransientError marks a failure worth retrying: timeouts, connection
// resets, 5xx replies, rate limits.
type TransientError struct {
	Err error
}

// Error implements the error interface
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient ledger error: %v", e.Err)
}

// Unwrap returns the wrapped cause
func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks a failure that retrying cannot fix: rejected
// payloads, unknown accounts, authentication failures.
type PermanentError struct {
	Err error
}

// Error implements the error interface
func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent ledger error: %v", e.Err)
}

// Unwrap returns the wrapped cause
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether an error should be retried
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}
