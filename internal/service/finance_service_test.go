package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finchly/expenseflow/internal/models"
)

type fakeKicker struct {
	kicks int
}

func (k *fakeKicker) Kick() { k.kicks++ }

func TestFinalizeCreatesPendingBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	kicker := &fakeKicker{}
	env.finance.AttachKicker(kicker)

	gl := "5150"
	approved := env.createApproved(t,
		mealItem("2024-03-05"),
		ItemInput{
			ExpenseDate: mustDate("2024-03-06"),
			Category:    models.CategorySupplies,
			GLAccountID: &gl,
			Description: "whiteboard markers",
			AmountCents: 1800, Reimbursable: true,
		},
		ItemInput{
			ExpenseDate: mustDate("2024-03-07"),
			Category:    models.CategoryOther,
			AmountCents: 900, Reimbursable: false,
		},
	)

	view, err := env.finance.Finalize(ctx, financeActor, FinalizeInput{
		Reports: []FinalizeReportRef{{ReportID: approved.Report.ID, ExpectedVersion: approved.Report.Version}},
	})
	require.NoError(t, err)

	assert.Equal(t, models.BatchPending, view.Batch.Status)
	assert.Regexp(t, `^EXP-\d{8}-[0-9a-f]{8}$`, view.Batch.BatchReference)
	assert.Equal(t, "fin-1", view.Batch.FinalizedBy)
	assert.Equal(t, []string{approved.Report.ID}, view.ReportIDs)
	assert.Equal(t, 1, kicker.kicks)

	// non-reimbursable items carry no journal line
	require.Len(t, view.Lines, 2)
	assert.Equal(t, "6003", view.Lines[0].GLAccount) // meal default
	assert.Equal(t, "5150", view.Lines[1].GLAccount) // explicit override
	assert.Equal(t, "whiteboard markers", view.Lines[1].Memo)
	assert.Equal(t, "Engineering", view.Lines[0].Department)

	report, err := env.expenses.GetReport(ctx, financeActor, approved.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinanceFinalized, report.Report.Status)
	assert.Equal(t, approved.Report.Version+1, report.Report.Version)

	entries, err := env.auditRepo.ListByEntity(models.EntityBatch, view.Batch.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.EventBatchCreated, entries[0].EventType)
}

func TestFinalizeMemoFallsBackToCategory(t *testing.T) {
	env := newTestEnv(t)

	item := mealItem("2024-03-05")
	item.Description = ""
	approved := env.createApproved(t, item)

	view, err := env.finance.Finalize(context.Background(), financeActor, FinalizeInput{
		Reports: []FinalizeReportRef{{ReportID: approved.Report.ID, ExpectedVersion: approved.Report.Version}},
	})
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, "meal expense 2024-03-05", view.Lines[0].Memo)
}

func TestFinalizeRejectsUnapprovedReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	approved := env.createApproved(t, mealItem("2024-03-05"))
	submitted := env.createSubmitted(t, mealItem("2024-03-06"))

	_, err := env.finance.Finalize(ctx, financeActor, FinalizeInput{
		Reports: []FinalizeReportRef{
			{ReportID: approved.Report.ID, ExpectedVersion: approved.Report.Version},
			{ReportID: submitted.Report.ID, ExpectedVersion: submitted.Report.Version},
		},
	})
	assert.Equal(t, KindInvalidTransition, kindOf(t, err))

	// the whole transaction rolls back, including the eligible report
	unchanged, err := env.expenses.GetReport(ctx, financeActor, approved.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusManagerApproved, unchanged.Report.Status)
	assert.Equal(t, approved.Report.Version, unchanged.Report.Version)

	summaries, err := env.finance.ListBatches(ctx, financeActor, 10)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestFinalizeStaleVersionRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	approved := env.createApproved(t, mealItem("2024-03-05"))
	_, err := env.finance.Finalize(ctx, financeActor, FinalizeInput{
		Reports: []FinalizeReportRef{{ReportID: approved.Report.ID, ExpectedVersion: approved.Report.Version - 1}},
	})
	assert.Equal(t, KindConflict, kindOf(t, err))

	unchanged, err := env.expenses.GetReport(ctx, financeActor, approved.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusManagerApproved, unchanged.Report.Status)
}

func TestFinalizeForbiddenForManagers(t *testing.T) {
	env := newTestEnv(t)

	approved := env.createApproved(t, mealItem("2024-03-05"))
	_, err := env.finance.Finalize(context.Background(), managerActor, FinalizeInput{
		Reports: []FinalizeReportRef{{ReportID: approved.Report.ID, ExpectedVersion: approved.Report.Version}},
	})
	assert.Equal(t, KindForbidden, kindOf(t, err))
}

func TestFinalizeRequiresReports(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.finance.Finalize(context.Background(), financeActor, FinalizeInput{})
	assert.Equal(t, KindValidation, kindOf(t, err))
}

func TestListAndGetBatches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	approved := env.createApproved(t, mealItem("2024-03-05"))
	created, err := env.finance.Finalize(ctx, financeActor, FinalizeInput{
		Reports: []FinalizeReportRef{{ReportID: approved.Report.ID, ExpectedVersion: approved.Report.Version}},
	})
	require.NoError(t, err)

	summaries, err := env.finance.ListBatches(ctx, financeActor, 10)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, created.Batch.ID, summaries[0].ID)
	assert.Equal(t, 1, summaries[0].ReportCount)
	assert.Equal(t, int64(4200), summaries[0].TotalCents)

	view, err := env.finance.GetBatch(ctx, financeActor, created.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Batch.BatchReference, view.Batch.BatchReference)
	assert.Len(t, view.Lines, 1)

	_, err = env.finance.GetBatch(ctx, financeActor, "no-such-batch")
	assert.Equal(t, KindNotFound, kindOf(t, err))

	_, err = env.finance.ListBatches(ctx, employeeActor, 10)
	assert.Equal(t, KindForbidden, kindOf(t, err))
}
