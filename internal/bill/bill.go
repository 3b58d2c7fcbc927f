package bill

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/billscan/internal/extraction"
	"github.com/zombor/billscan/internal/intake"
)

// Bill is an uploaded bill with the fields extracted from it
type Bill struct {
	ID          string            `json:"id"`
	Filename    string            `json:"filename"`
	ContentType string            `json:"content_type"`
	Result      extraction.Result `json:"result"`
	Reviewed    bool              `json:"reviewed"` // set once a person has corrected or confirmed the fields
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Correction holds manual fixes to extracted fields. Nil fields are left
// unchanged; LineItems replaces the whole list when present.
type Correction struct {
	BillNumber  *string                  `json:"bill_number,omitempty"`
	BillDate    *string                  `json:"bill_date,omitempty"`
	TotalAmount *decimal.Decimal         `json:"total_amount,omitempty"`
	GSTAmount   *decimal.Decimal         `json:"gst_amount,omitempty"`
	Customer    *extraction.CustomerInfo `json:"customer,omitempty"`
	Payment     *extraction.PaymentInfo  `json:"payment,omitempty"`
	LineItems   []extraction.LineItem    `json:"line_items,omitempty"`
}

// Apply merges c into the bill and marks it reviewed. Nothing changes when
// the correction is invalid.
func (b *Bill) Apply(c Correction, now time.Time) error {
	if c.BillDate != nil {
		if _, err := time.Parse("2006-01-02", *c.BillDate); err != nil {
			return intake.NewValidationError("bill_date", *c.BillDate, "date must be YYYY-MM-DD")
		}
	}
	if c.TotalAmount != nil && c.TotalAmount.IsNegative() {
		return intake.NewValidationError("total_amount", c.TotalAmount.String(), "amount must not be negative")
	}
	if c.GSTAmount != nil && c.GSTAmount.IsNegative() {
		return intake.NewValidationError("gst_amount", c.GSTAmount.String(), "amount must not be negative")
	}
	for i, item := range c.LineItems {
		if item.Quantity <= 0 {
			return intake.NewValidationError("line_items", i, "quantity must be positive")
		}
		if item.UnitPrice.IsNegative() || item.TotalPrice.IsNegative() {
			return intake.NewValidationError("line_items", i, "prices must not be negative")
		}
	}

	if c.BillDate != nil {
		b.Result.BillDate = c.BillDate
		b.Result.DateInferred = false
	}
	if c.BillNumber != nil {
		b.Result.BillNumber = c.BillNumber
	}
	if c.TotalAmount != nil {
		b.Result.TotalAmount = c.TotalAmount
	}
	if c.GSTAmount != nil {
		b.Result.GSTAmount = c.GSTAmount
	}
	if c.Customer != nil {
		b.Result.Customer = c.Customer
	}
	if c.Payment != nil {
		b.Result.Payment = c.Payment
	}
	if c.LineItems != nil {
		b.Result.LineItems = c.LineItems
	}

	b.Reviewed = true
	b.UpdatedAt = now
	return nil
}
