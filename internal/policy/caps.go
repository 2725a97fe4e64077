package policy

import (
	"time"

	"github.com/finchly/expenseflow/internal/models"
)

// CapFor selects the policy cap applying to a category on a given expense
// date. Caps with an exact category match take precedence over broad
// defaults (caps with an empty category); within the same specificity the
// latest ActiveFrom wins.
func CapFor(caps []*models.PolicyCap, category models.ExpenseCategory, date time.Time) *models.PolicyCap {
	var exact, broad *models.PolicyCap
	for _, cap := range caps {
		if !cap.ActiveOn(date) {
			continue
		}
		switch cap.Category {
		case category:
			if exact == nil || cap.ActiveFrom.After(exact.ActiveFrom) {
				exact = cap
			}
		case "":
			if broad == nil || cap.ActiveFrom.After(broad.ActiveFrom) {
				broad = cap
			}
		}
	}
	if exact != nil {
		return exact
	}
	return broad
}

// RateFor returns the mileage rate effective on the expense date: the most
// recent rate with EffectiveDate <= date, or nil when none applies yet.
func RateFor(rates []*models.MileageRate, date time.Time) *models.MileageRate {
	var current *models.MileageRate
	for _, rate := range rates {
		if rate.EffectiveDate.After(date) {
			continue
		}
		if current == nil || rate.EffectiveDate.After(current.EffectiveDate) {
			current = rate
		}
	}
	return current
}
