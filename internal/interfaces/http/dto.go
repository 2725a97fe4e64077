package http

import (
	"fmt"
	"time"

	"github.com/finchly/expenseflow/internal/models"
	"github.com/finchly/expenseflow/internal/policy"
	"github.com/finchly/expenseflow/internal/service"
)

// Response is the standard JSON envelope
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	// Details carries field-level violations on validation failures
	Details *policy.Result `json:"details,omitempty"`
}

// HealthResponse is the health check payload
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

type receiptDTO struct {
	FileKey   string `json:"file_key" binding:"required"`
	FileName  string `json:"file_name" binding:"required"`
	MimeType  string `json:"mime_type" binding:"required"`
	SizeBytes int64  `json:"size_bytes" binding:"required"`
}

type itemDTO struct {
	ExpenseDate   string       `json:"expense_date" binding:"required"`
	Category      string       `json:"category" binding:"required"`
	GLAccountID   *string      `json:"gl_account_id,omitempty"`
	Description   string       `json:"description,omitempty"`
	Attendees     string       `json:"attendees,omitempty"`
	Location      string       `json:"location,omitempty"`
	AmountCents   int64        `json:"amount_cents" binding:"required"`
	Reimbursable  *bool        `json:"reimbursable,omitempty"`
	PaymentMethod string       `json:"payment_method,omitempty"`
	MileageMiles  *float64     `json:"mileage_miles,omitempty"`
	Receipts      []receiptDTO `json:"receipts,omitempty"`
}

type createReportDTO struct {
	PeriodStart string    `json:"reporting_period_start" binding:"required"`
	PeriodEnd   string    `json:"reporting_period_end" binding:"required"`
	Currency    string    `json:"currency,omitempty"`
	Items       []itemDTO `json:"items"`
}

type updateItemsDTO struct {
	ExpectedVersion int64     `json:"expected_version" binding:"required"`
	Items           []itemDTO `json:"items"`
}

type versionDTO struct {
	ExpectedVersion int64 `json:"expected_version" binding:"required"`
}

type decisionDTO struct {
	Decision              string `json:"decision" binding:"required"`
	Comments              string `json:"comments,omitempty"`
	OverrideJustification string `json:"override_justification,omitempty"`
	ExpectedVersion       int64  `json:"expected_version" binding:"required"`
}

type finalizeDTO struct {
	Reports []struct {
		ReportID        string `json:"report_id" binding:"required"`
		ExpectedVersion int64  `json:"expected_version" binding:"required"`
	} `json:"reports" binding:"required"`
}

// parseDate accepts plain dates and full RFC 3339 timestamps
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return t.UTC(), nil
}

func (dto *createReportDTO) toInput() (service.CreateReportInput, *policy.Result) {
	details := policy.NewResult()
	input := service.CreateReportInput{Currency: dto.Currency}

	var err error
	if input.PeriodStart, err = parseDate(dto.PeriodStart); err != nil {
		details.AddError("reporting_period_start", err.Error())
	}
	if input.PeriodEnd, err = parseDate(dto.PeriodEnd); err != nil {
		details.AddError("reporting_period_end", err.Error())
	}
	input.Items = toItemInputs(dto.Items, details)

	if details.HasErrors() {
		return input, details
	}
	return input, nil
}

func toItemInputs(dtos []itemDTO, details *policy.Result) []service.ItemInput {
	items := make([]service.ItemInput, 0, len(dtos))
	for i, dto := range dtos {
		item := service.ItemInput{
			Category:      models.ExpenseCategory(dto.Category),
			GLAccountID:   dto.GLAccountID,
			Description:   dto.Description,
			Attendees:     dto.Attendees,
			Location:      dto.Location,
			AmountCents:   dto.AmountCents,
			Reimbursable:  true,
			PaymentMethod: dto.PaymentMethod,
			MileageMiles:  dto.MileageMiles,
		}
		if dto.Reimbursable != nil {
			item.Reimbursable = *dto.Reimbursable
		}
		date, err := parseDate(dto.ExpenseDate)
		if err != nil {
			details.AddError(fmt.Sprintf("items[%d].expense_date", i), err.Error())
		}
		item.ExpenseDate = date
		for _, r := range dto.Receipts {
			item.Receipts = append(item.Receipts, service.ReceiptInput{
				FileKey:   r.FileKey,
				FileName:  r.FileName,
				MimeType:  r.MimeType,
				SizeBytes: r.SizeBytes,
			})
		}
		items = append(items, item)
	}
	return items
}
