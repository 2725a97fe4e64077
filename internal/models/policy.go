package models

import "time"

// Limit types for policy caps
const (
	LimitTypePerDiem = "per_diem"
	LimitTypePerItem = "per_item"
)

// PolicyCap is a versioned-in-time spending rule. Multiple caps may be
// active for a date; selection is by most specific category match, then
// latest ActiveFrom.
type PolicyCap struct {
	ID          string          `json:"id"`
	PolicyKey   string          `json:"policy_key"`
	Category    ExpenseCategory `json:"category"`
	LimitType   string          `json:"limit_type"`
	AmountCents int64           `json:"amount_cents"`
	Notes       string          `json:"notes,omitempty"`
	ActiveFrom  time.Time       `json:"active_from"`
	ActiveTo    *time.Time      `json:"active_to,omitempty"`
}

// ActiveOn returns true if the cap applies on the given expense date
func (c *PolicyCap) ActiveOn(date time.Time) bool {
	if date.Before(c.ActiveFrom) {
		return false
	}
	if c.ActiveTo != nil && date.After(*c.ActiveTo) {
		return false
	}
	return true
}

// MileageRate is the reimbursement rate effective from a given date.
// The most recent rate with EffectiveDate <= expense date applies.
type MileageRate struct {
	EffectiveDate    time.Time `json:"effective_date"`
	RateCentsPerMile int64     `json:"rate_cents_per_mile"`
}
