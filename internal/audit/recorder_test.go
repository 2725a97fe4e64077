package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finchly/expenseflow/internal/models"
)

func chainFixture(t *testing.T) []*models.AuditLogEntry {
	t.Helper()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	specs := []struct {
		event string
		old   string
		new   string
	}{
		{models.EventReportCreated, "", `{"status":"draft"}`},
		{models.EventStatusChanged, `{"status":"draft"}`, `{"status":"submitted"}`},
		{models.EventDecisionRecorded, `{"status":"submitted"}`, `{"status":"manager_approved"}`},
	}

	prev := ""
	var entries []*models.AuditLogEntry
	for i, spec := range specs {
		entry := &models.AuditLogEntry{
			ID:          int64(i + 1),
			EntityType:  models.EntityReport,
			EntityID:    "rep-100",
			EventType:   spec.event,
			OldValue:    spec.old,
			NewValue:    spec.new,
			PerformedBy: "emp-1",
			PerformedAt: base.Add(time.Duration(i) * time.Minute),
			IPAddress:   "10.0.0.4",
			UserAgent:   "expenseflow-test",
		}
		entry.SignatureHash = ComputeSignature(prev, entry)
		prev = entry.SignatureHash
		entries = append(entries, entry)
	}
	return entries
}

func TestVerifyAcceptsIntactChain(t *testing.T) {
	entries := chainFixture(t)
	require.NoError(t, Verify(entries))
}

func TestVerifyAcceptsEmptyChain(t *testing.T) {
	require.NoError(t, Verify(nil))
}

func TestVerifyDetectsEditedEntry(t *testing.T) {
	entries := chainFixture(t)
	entries[1].NewValue = `{"status":"finance_finalized"}`

	err := Verify(entries)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry 1")
}

func TestVerifyDetectsDeletedEntry(t *testing.T) {
	entries := chainFixture(t)
	truncated := []*models.AuditLogEntry{entries[0], entries[2]}

	err := Verify(truncated)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry 1")
}

func TestVerifyDetectsSwappedEntries(t *testing.T) {
	entries := chainFixture(t)
	entries[1], entries[2] = entries[2], entries[1]

	require.Error(t, Verify(entries))
}

func TestComputeSignatureIsDeterministic(t *testing.T) {
	entry := &models.AuditLogEntry{
		EntityType:  models.EntityBatch,
		EntityID:    "batch-7",
		EventType:   models.EventBatchExported,
		PerformedBy: "system",
		PerformedAt: time.Date(2024, 5, 2, 12, 30, 0, 0, time.UTC),
	}
	first := ComputeSignature("", entry)
	second := ComputeSignature("", entry)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestComputeSignatureDependsOnPrev(t *testing.T) {
	entry := &models.AuditLogEntry{
		EntityType:  models.EntityReport,
		EntityID:    "rep-9",
		EventType:   models.EventStatusChanged,
		PerformedAt: time.Date(2024, 5, 2, 12, 30, 0, 0, time.UTC),
	}
	assert.NotEqual(t, ComputeSignature("", entry), ComputeSignature("abc", entry))
}
