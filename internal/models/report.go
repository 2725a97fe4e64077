package models

import "time"

// ReportStatus represents the lifecycle status of an expense report
type ReportStatus string

const (
	StatusDraft            ReportStatus = "draft"
	StatusSubmitted        ReportStatus = "submitted"
	StatusManagerApproved  ReportStatus = "manager_approved"
	StatusNeedsChanges     ReportStatus = "needs_changes"
	StatusDenied           ReportStatus = "denied"
	StatusFinanceFinalized ReportStatus = "finance_finalized"
)

var validReportStatuses = map[ReportStatus]bool{
	StatusDraft:            true,
	StatusSubmitted:        true,
	StatusManagerApproved:  true,
	StatusNeedsChanges:     true,
	StatusDenied:           true,
	StatusFinanceFinalized: true,
}

// IsValid returns true if the status is a known report status
func (s ReportStatus) IsValid() bool {
	return validReportStatuses[s]
}

// IsTerminal returns true if no further transitions are allowed from the status
func (s ReportStatus) IsTerminal() bool {
	return s == StatusDenied || s == StatusFinanceFinalized
}

// String returns the string representation of the status
func (s ReportStatus) String() string {
	return string(s)
}

// ExpenseCategory is the closed set of expense categories
type ExpenseCategory string

const (
	CategoryAirfare         ExpenseCategory = "airfare"
	CategoryLodging         ExpenseCategory = "lodging"
	CategoryMeal            ExpenseCategory = "meal"
	CategoryGroundTransport ExpenseCategory = "ground_transport"
	CategoryMileage         ExpenseCategory = "mileage"
	CategorySupplies        ExpenseCategory = "supplies"
	CategoryOther           ExpenseCategory = "other"
)

var validCategories = map[ExpenseCategory]bool{
	CategoryAirfare:         true,
	CategoryLodging:         true,
	CategoryMeal:            true,
	CategoryGroundTransport: true,
	CategoryMileage:         true,
	CategorySupplies:        true,
	CategoryOther:           true,
}

// IsValid returns true if the category is part of the closed enumeration
func (c ExpenseCategory) IsValid() bool {
	return validCategories[c]
}

// String returns the string representation of the category
func (c ExpenseCategory) String() string {
	return string(c)
}

// ExpenseReport is the aggregate root of the reimbursement workflow.
// Totals are derived from the items and recomputed on every mutation;
// Version is the optimistic lock token and only ever increments.
type ExpenseReport struct {
	ID                     string       `json:"id"`
	EmployeeID             string       `json:"employee_id"`
	PeriodStart            time.Time    `json:"reporting_period_start"`
	PeriodEnd              time.Time    `json:"reporting_period_end"`
	Currency               string       `json:"currency"`
	Status                 ReportStatus `json:"status"`
	TotalAmountCents       int64        `json:"total_amount_cents"`
	TotalReimbursableCents int64        `json:"total_reimbursable_cents"`
	Version                int64        `json:"version"`
	CreatedAt              time.Time    `json:"created_at"`
	UpdatedAt              time.Time    `json:"updated_at"`
}

// ExpenseItem is a single expense line belonging to exactly one report.
// Amounts are integer minor currency units, never floating point.
type ExpenseItem struct {
	ID                string          `json:"id"`
	ReportID          string          `json:"report_id"`
	ExpenseDate       time.Time       `json:"expense_date"`
	Category          ExpenseCategory `json:"category"`
	GLAccountID       *string         `json:"gl_account_id,omitempty"`
	Description       string          `json:"description,omitempty"`
	Attendees         string          `json:"attendees,omitempty"`
	Location          string          `json:"location,omitempty"`
	AmountCents       int64           `json:"amount_cents"`
	Reimbursable      bool            `json:"reimbursable"`
	PaymentMethod     string          `json:"payment_method,omitempty"`
	MileageMiles      *float64        `json:"mileage_miles,omitempty"`
	IsPolicyException bool            `json:"is_policy_exception"`
}

// Receipt holds declared metadata for an uploaded receipt. The file itself
// lives in external storage under FileKey; size and MIME type are validated
// but not trusted as ground truth.
type Receipt struct {
	ID            string    `json:"id"`
	ExpenseItemID string    `json:"expense_item_id"`
	FileKey       string    `json:"file_key"`
	FileName      string    `json:"file_name"`
	MimeType      string    `json:"mime_type"`
	SizeBytes     int64     `json:"size_bytes"`
	UploadedBy    string    `json:"uploaded_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// RecomputeTotals returns the derived totals for a set of items.
// Report totals must always equal the sum of their items.
func RecomputeTotals(items []*ExpenseItem) (totalCents, reimbursableCents int64) {
	for _, item := range items {
		totalCents += item.AmountCents
		if item.Reimbursable {
			reimbursableCents += item.AmountCents
		}
	}
	return totalCents, reimbursableCents
}
