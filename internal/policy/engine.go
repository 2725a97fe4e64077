package policy

import (
	"fmt"
	"math"

	"github.com/finchly/expenseflow/internal/models"
)

// Rules holds the configurable thresholds consulted during validation
type Rules struct {
	ReceiptRequiredAboveCents int64
	MaxReceiptBytes           int64
	MaxReceiptsPerItem        int
	AllowedReceiptMimeTypes   []string
}

// DefaultRules returns the rules used when configuration is absent
func DefaultRules() Rules {
	return Rules{
		ReceiptRequiredAboveCents: 2500,
		MaxReceiptBytes:           10 * 1024 * 1024,
		MaxReceiptsPerItem:        5,
		AllowedReceiptMimeTypes:   []string{"application/pdf", "image/jpeg", "image/png", "image/heic"},
	}
}

// Evaluation is the outcome of validating a report snapshot. ExceptionItems
// names the item IDs that must be flagged is_policy_exception by the caller;
// the engine itself never mutates anything.
type Evaluation struct {
	Result         *Result
	ExceptionItems map[string]bool
}

// Engine validates report and item data against policy caps and rules.
// It is a pure function of its inputs: caps and mileage rates applicable
// to each expense date are passed in explicitly, so a validation run is
// deterministic and replayable against historical dates.
type Engine struct {
	rules Rules
}

// NewEngine creates a policy engine with the given rules
func NewEngine(rules Rules) *Engine {
	if len(rules.AllowedReceiptMimeTypes) == 0 {
		rules.AllowedReceiptMimeTypes = DefaultRules().AllowedReceiptMimeTypes
	}
	return &Engine{rules: rules}
}

// ValidateReport validates every item of a report snapshot. Receipts are
// keyed by item ID. Hard errors block submission; exceptions are allowed
// through and must be overridden by an approver.
func (e *Engine) ValidateReport(
	report *models.ExpenseReport,
	items []*models.ExpenseItem,
	receipts map[string][]*models.Receipt,
	caps []*models.PolicyCap,
	rates []*models.MileageRate,
) *Evaluation {
	eval := &Evaluation{
		Result:         NewResult(),
		ExceptionItems: make(map[string]bool),
	}

	if report.PeriodEnd.Before(report.PeriodStart) {
		eval.Result.AddError("reporting_period_end", "period end must not precede period start")
	}

	// Running per-day totals for per-diem caps, keyed by date and category.
	dayTotals := make(map[string]int64)

	for i, item := range items {
		prefix := fmt.Sprintf("items[%d]", i)
		e.validateItem(eval, prefix, report, item, receipts[item.ID], caps, rates, dayTotals)
	}

	return eval
}

func (e *Engine) validateItem(
	eval *Evaluation,
	prefix string,
	report *models.ExpenseReport,
	item *models.ExpenseItem,
	itemReceipts []*models.Receipt,
	caps []*models.PolicyCap,
	rates []*models.MileageRate,
	dayTotals map[string]int64,
) {
	result := eval.Result

	if !item.Category.IsValid() {
		result.AddError(prefix+".category", fmt.Sprintf("unknown expense category %q", item.Category))
		return
	}

	if item.AmountCents <= 0 {
		result.AddError(prefix+".amount_cents", "amount must be a positive integer of minor currency units")
	}

	if item.ExpenseDate.Before(report.PeriodStart) || item.ExpenseDate.After(report.PeriodEnd) {
		result.AddError(prefix+".expense_date", fmt.Sprintf(
			"expense date %s falls outside the reporting period %s..%s",
			item.ExpenseDate.Format("2006-01-02"),
			report.PeriodStart.Format("2006-01-02"),
			report.PeriodEnd.Format("2006-01-02")))
	}

	e.checkReceipts(result, prefix, item, itemReceipts)

	cap := CapFor(caps, item.Category, item.ExpenseDate)
	switch {
	case item.Category == models.CategoryMileage:
		e.checkMileage(eval, prefix, item, rates)
	case cap != nil && cap.LimitType == models.LimitTypePerDiem && item.Category == models.CategoryMeal:
		e.checkPerDiem(eval, prefix, item, cap, dayTotals)
	case cap != nil && cap.LimitType == models.LimitTypePerItem:
		if item.AmountCents > cap.AmountCents {
			eval.ExceptionItems[item.ID] = true
			result.AddException(prefix+".amount_cents", fmt.Sprintf(
				"%s exceeds the %s limit of %s", item.Category, cap.PolicyKey, formatCents(cap.AmountCents)))
		}
	}
}

// checkPerDiem sums same-day same-category amounts across the report and
// flags the items that push the day total past the cap. Excess is an
// exception, not a rejection: submission proceeds, the approver must
// justify the override.
func (e *Engine) checkPerDiem(
	eval *Evaluation,
	prefix string,
	item *models.ExpenseItem,
	cap *models.PolicyCap,
	dayTotals map[string]int64,
) {
	key := item.ExpenseDate.Format("2006-01-02") + "|" + string(item.Category)
	dayTotals[key] += item.AmountCents
	if dayTotals[key] > cap.AmountCents {
		eval.ExceptionItems[item.ID] = true
		eval.Result.AddException(prefix+".amount_cents", fmt.Sprintf(
			"same-day %s total %s exceeds the per-diem limit of %s",
			item.Category, formatCents(dayTotals[key]), formatCents(cap.AmountCents)))
	}
}

// checkMileage requires a distance and cross-checks the entered amount
// against the rate effective on the expense date. A missing distance is a
// hard error; a mismatched amount is an exception.
func (e *Engine) checkMileage(
	eval *Evaluation,
	prefix string,
	item *models.ExpenseItem,
	rates []*models.MileageRate,
) {
	if item.MileageMiles == nil || *item.MileageMiles <= 0 {
		eval.Result.AddError(prefix+".mileage_miles", "mileage expenses require a positive distance")
		return
	}

	rate := RateFor(rates, item.ExpenseDate)
	if rate == nil {
		return
	}

	expected := int64(math.Round(*item.MileageMiles * float64(rate.RateCentsPerMile)))
	if item.AmountCents != expected {
		eval.ExceptionItems[item.ID] = true
		eval.Result.AddException(prefix+".amount_cents", fmt.Sprintf(
			"entered amount %s does not match %.1f miles at the effective rate (%s expected)",
			formatCents(item.AmountCents), *item.MileageMiles, formatCents(expected)))
	}
}

// checkReceipts enforces the receipt presence threshold and declared
// metadata limits. Absence below the threshold is fine; absence above it
// is a hard error, not an exception.
func (e *Engine) checkReceipts(result *Result, prefix string, item *models.ExpenseItem, itemReceipts []*models.Receipt) {
	if item.AmountCents > e.rules.ReceiptRequiredAboveCents && len(itemReceipts) == 0 {
		result.AddError(prefix+".receipts", fmt.Sprintf(
			"a receipt is required for amounts above %s", formatCents(e.rules.ReceiptRequiredAboveCents)))
	}

	if e.rules.MaxReceiptsPerItem > 0 && len(itemReceipts) > e.rules.MaxReceiptsPerItem {
		result.AddError(prefix+".receipts", fmt.Sprintf(
			"at most %d receipts are allowed per item", e.rules.MaxReceiptsPerItem))
	}

	for j, receipt := range itemReceipts {
		field := fmt.Sprintf("%s.receipts[%d]", prefix, j)
		if e.rules.MaxReceiptBytes > 0 && receipt.SizeBytes > e.rules.MaxReceiptBytes {
			result.AddError(field+".size_bytes", fmt.Sprintf(
				"declared size exceeds the %d byte limit", e.rules.MaxReceiptBytes))
		}
		if !e.mimeAllowed(receipt.MimeType) {
			result.AddError(field+".mime_type", fmt.Sprintf(
				"unsupported receipt type %q", receipt.MimeType))
		}
	}
}

func (e *Engine) mimeAllowed(mimeType string) bool {
	for _, allowed := range e.rules.AllowedReceiptMimeTypes {
		if mimeType == allowed {
			return true
		}
	}
	return false
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
