package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finchly/expenseflow/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func aprilReport() *models.ExpenseReport {
	return &models.ExpenseReport{
		ID:          "rep-1",
		EmployeeID:  "emp-1",
		PeriodStart: date(2024, time.April, 1),
		PeriodEnd:   date(2024, time.April, 30),
		Currency:    "USD",
		Status:      models.StatusDraft,
	}
}

func mealItem(id string, day time.Time, amountCents int64) *models.ExpenseItem {
	return &models.ExpenseItem{
		ID:           id,
		ReportID:     "rep-1",
		ExpenseDate:  day,
		Category:     models.CategoryMeal,
		AmountCents:  amountCents,
		Reimbursable: true,
	}
}

func mealPerDiemCap(amountCents int64, activeFrom time.Time) *models.PolicyCap {
	return &models.PolicyCap{
		ID:          "cap-1",
		PolicyKey:   "meal_per_diem",
		Category:    models.CategoryMeal,
		LimitType:   models.LimitTypePerDiem,
		AmountCents: amountCents,
		ActiveFrom:  activeFrom,
	}
}

func TestValidateReport_MealOverPerDiemIsExceptionNotError(t *testing.T) {
	// $185.00 meal against a $15.00 per-diem cap: flagged, still submittable.
	engine := NewEngine(Rules{ReceiptRequiredAboveCents: 100_000})
	item := mealItem("item-1", date(2024, time.April, 5), 18_500)
	caps := []*models.PolicyCap{mealPerDiemCap(1_500, date(2024, time.January, 1))}

	eval := engine.ValidateReport(aprilReport(), []*models.ExpenseItem{item}, nil, caps, nil)

	assert.False(t, eval.Result.HasErrors())
	require.True(t, eval.Result.HasExceptions())
	assert.True(t, eval.ExceptionItems["item-1"])
	assert.Contains(t, eval.Result.Exceptions, "items[0].amount_cents")
}

func TestValidateReport_PerDiemSumsSameDaySameCategory(t *testing.T) {
	engine := NewEngine(DefaultRules())
	day := date(2024, time.April, 5)
	items := []*models.ExpenseItem{
		mealItem("item-1", day, 1_000),
		mealItem("item-2", day, 1_000),
		mealItem("item-3", date(2024, time.April, 6), 1_000),
	}
	caps := []*models.PolicyCap{mealPerDiemCap(1_500, date(2024, time.January, 1))}

	eval := engine.ValidateReport(aprilReport(), items, nil, caps, nil)

	assert.False(t, eval.ExceptionItems["item-1"], "first item stays under the cap")
	assert.True(t, eval.ExceptionItems["item-2"], "second item pushes the day total over")
	assert.False(t, eval.ExceptionItems["item-3"], "a different day starts a fresh total")
}

func TestValidateReport_DateOutsidePeriodIsHardError(t *testing.T) {
	engine := NewEngine(DefaultRules())
	item := mealItem("item-1", date(2024, time.May, 2), 1_000)

	eval := engine.ValidateReport(aprilReport(), []*models.ExpenseItem{item}, nil, nil, nil)

	require.True(t, eval.Result.HasErrors())
	assert.Contains(t, eval.Result.Errors, "items[0].expense_date")
}

func TestValidateReport_NonPositiveAmountIsHardError(t *testing.T) {
	engine := NewEngine(DefaultRules())
	for _, amount := range []int64{0, -500} {
		item := mealItem("item-1", date(2024, time.April, 5), amount)
		eval := engine.ValidateReport(aprilReport(), []*models.ExpenseItem{item}, nil, nil, nil)
		assert.Contains(t, eval.Result.Errors, "items[0].amount_cents")
	}
}

func TestValidateReport_ReceiptThreshold(t *testing.T) {
	engine := NewEngine(Rules{ReceiptRequiredAboveCents: 2_500})

	over := mealItem("item-1", date(2024, time.April, 5), 2_600)
	eval := engine.ValidateReport(aprilReport(), []*models.ExpenseItem{over}, nil, nil, nil)
	assert.Contains(t, eval.Result.Errors, "items[0].receipts", "missing receipt above threshold is a hard error")

	under := mealItem("item-2", date(2024, time.April, 5), 2_400)
	eval = engine.ValidateReport(aprilReport(), []*models.ExpenseItem{under}, nil, nil, nil)
	assert.False(t, eval.Result.HasErrors(), "missing receipt below threshold is fine")

	receipts := map[string][]*models.Receipt{
		"item-1": {{ID: "rcpt-1", ExpenseItemID: "item-1", MimeType: "application/pdf", SizeBytes: 2_000}},
	}
	eval = engine.ValidateReport(aprilReport(), []*models.ExpenseItem{over}, receipts, nil, nil)
	assert.False(t, eval.Result.HasErrors())
}

func TestValidateReport_ReceiptMetadata(t *testing.T) {
	engine := NewEngine(Rules{
		ReceiptRequiredAboveCents: 2_500,
		MaxReceiptBytes:           1_000,
		MaxReceiptsPerItem:        1,
	})
	item := mealItem("item-1", date(2024, time.April, 5), 1_000)
	receipts := map[string][]*models.Receipt{
		"item-1": {
			{ID: "rcpt-1", MimeType: "application/x-msdownload", SizeBytes: 5_000},
			{ID: "rcpt-2", MimeType: "image/png", SizeBytes: 100},
		},
	}

	eval := engine.ValidateReport(aprilReport(), []*models.ExpenseItem{item}, receipts, nil, nil)

	assert.Contains(t, eval.Result.Errors, "items[0].receipts", "too many receipts")
	assert.Contains(t, eval.Result.Errors, "items[0].receipts[0].size_bytes")
	assert.Contains(t, eval.Result.Errors, "items[0].receipts[0].mime_type")
}

func TestValidateReport_Mileage(t *testing.T) {
	engine := NewEngine(DefaultRules())
	rates := []*models.MileageRate{
		{EffectiveDate: date(2023, time.January, 1), RateCentsPerMile: 65},
		{EffectiveDate: date(2024, time.January, 1), RateCentsPerMile: 67},
	}
	miles := 10.0

	missing := &models.ExpenseItem{
		ID:          "item-1",
		ExpenseDate: date(2024, time.April, 5),
		Category:    models.CategoryMileage,
		AmountCents: 670,
	}
	eval := engine.ValidateReport(aprilReport(), []*models.ExpenseItem{missing}, nil, nil, rates)
	assert.Contains(t, eval.Result.Errors, "items[0].mileage_miles", "distance is required")

	// kept under the receipt threshold so only the mileage rule fires
	mismatched := &models.ExpenseItem{
		ID:           "item-2",
		ExpenseDate:  date(2024, time.April, 5),
		Category:     models.CategoryMileage,
		AmountCents:  1_999,
		MileageMiles: &miles,
	}
	eval = engine.ValidateReport(aprilReport(), []*models.ExpenseItem{mismatched}, nil, nil, rates)
	assert.False(t, eval.Result.HasErrors())
	assert.True(t, eval.ExceptionItems["item-2"], "manual amount off the rate is an exception")

	exact := &models.ExpenseItem{
		ID:           "item-3",
		ExpenseDate:  date(2024, time.April, 5),
		Category:     models.CategoryMileage,
		AmountCents:  670, // 10 miles at the 2024 rate
		MileageMiles: &miles,
	}
	eval = engine.ValidateReport(aprilReport(), []*models.ExpenseItem{exact}, nil, nil, rates)
	assert.False(t, eval.Result.HasErrors())
	assert.False(t, eval.ExceptionItems["item-3"])
}

func TestCapFor_Precedence(t *testing.T) {
	day := date(2024, time.April, 5)
	broad := &models.PolicyCap{ID: "broad", PolicyKey: "default", Category: "", LimitType: models.LimitTypePerItem, AmountCents: 10_000, ActiveFrom: date(2020, time.January, 1)}
	older := &models.PolicyCap{ID: "older", PolicyKey: "meal_2023", Category: models.CategoryMeal, LimitType: models.LimitTypePerDiem, AmountCents: 1_200, ActiveFrom: date(2023, time.January, 1)}
	newer := &models.PolicyCap{ID: "newer", PolicyKey: "meal_2024", Category: models.CategoryMeal, LimitType: models.LimitTypePerDiem, AmountCents: 1_500, ActiveFrom: date(2024, time.January, 1)}
	expired := &models.PolicyCap{ID: "expired", PolicyKey: "meal_old", Category: models.CategoryMeal, LimitType: models.LimitTypePerDiem, AmountCents: 900, ActiveFrom: date(2019, time.January, 1), ActiveTo: timePtr(date(2019, time.December, 31))}

	caps := []*models.PolicyCap{broad, older, newer, expired}

	got := CapFor(caps, models.CategoryMeal, day)
	require.NotNil(t, got)
	assert.Equal(t, "newer", got.ID, "exact category with latest active_from wins")

	got = CapFor(caps, models.CategoryLodging, day)
	require.NotNil(t, got)
	assert.Equal(t, "broad", got.ID, "broad default applies when no exact match")

	assert.Nil(t, CapFor([]*models.PolicyCap{expired}, models.CategoryMeal, day))
}

func TestRateFor(t *testing.T) {
	rates := []*models.MileageRate{
		{EffectiveDate: date(2023, time.January, 1), RateCentsPerMile: 65},
		{EffectiveDate: date(2024, time.January, 1), RateCentsPerMile: 67},
	}

	got := RateFor(rates, date(2023, time.June, 1))
	require.NotNil(t, got)
	assert.Equal(t, int64(65), got.RateCentsPerMile)

	got = RateFor(rates, date(2024, time.April, 5))
	require.NotNil(t, got)
	assert.Equal(t, int64(67), got.RateCentsPerMile)

	assert.Nil(t, RateFor(rates, date(2022, time.June, 1)))
}

func timePtr(t time.Time) *time.Time {
	return &t
}
