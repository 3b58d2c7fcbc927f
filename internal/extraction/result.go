// Package extraction turns the raw text of a bill into structured fields and
// line items. Every function here is pure and never fails: anything that
// cannot be found is left empty for a person to fill in.
package extraction

import (
	"time"

	"github.com/shopspring/decimal"
)

// CustomerInfo holds the billed party's details
type CustomerInfo struct {
	Name    *string `json:"name,omitempty"`
	Address *string `json:"address,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Email   *string `json:"email,omitempty"`
	TaxID   *string `json:"tax_id,omitempty"`
}

// PaymentInfo holds the bank details printed for payment
type PaymentInfo struct {
	BankName      *string `json:"bank_name,omitempty"`
	AccountHolder *string `json:"account_holder,omitempty"`
	AccountNumber *string `json:"account_number,omitempty"`
	DueDate       *string `json:"due_date,omitempty"`
}

// LineItem is one billed row. TotalPrice is always Quantity x UnitPrice.
type LineItem struct {
	ID          string          `json:"id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	// Synthesized marks the single row made up from a subtotal or total when
	// no table rows were found
	Synthesized bool `json:"synthesized,omitempty"`
}

// Fields are the header and footer values found in a bill
type Fields struct {
	BillNumber *string
	BillDate   *string
	// DateInferred is set when a date line was found but could not be parsed
	// and BillDate holds the extraction day instead
	DateInferred bool
	TotalAmount  *decimal.Decimal
	GSTAmount    *decimal.Decimal
	Customer     *CustomerInfo
	Payment      *PaymentInfo
}

// Result is everything extracted from one bill
type Result struct {
	BillNumber   *string          `json:"bill_number,omitempty"`
	BillDate     *string          `json:"bill_date,omitempty"`
	DateInferred bool             `json:"date_inferred,omitempty"`
	TotalAmount  *decimal.Decimal `json:"total_amount,omitempty"`
	GSTAmount    *decimal.Decimal `json:"gst_amount,omitempty"`
	Customer     *CustomerInfo    `json:"customer,omitempty"`
	Payment      *PaymentInfo     `json:"payment,omitempty"`
	LineItems    []LineItem       `json:"line_items"`
	RawText      string           `json:"raw_text"`
}

// Assemble merges fields and line items into a Result. Nothing is
// reconciled: a printed total that disagrees with the item sum is kept.
func Assemble(fields Fields, items []LineItem, rawText string) Result {
	if items == nil {
		items = []LineItem{}
	}
	return Result{
		BillNumber:   fields.BillNumber,
		BillDate:     fields.BillDate,
		DateInferred: fields.DateInferred,
		TotalAmount:  fields.TotalAmount,
		GSTAmount:    fields.GSTAmount,
		Customer:     fields.Customer,
		Payment:      fields.Payment,
		LineItems:    items,
		RawText:      rawText,
	}
}

// FoundFields names the top level fields that were extracted
func (r Result) FoundFields() []string {
	var found []string
	if r.BillNumber != nil {
		found = append(found, "bill_number")
	}
	if r.BillDate != nil {
		found = append(found, "bill_date")
	}
	if r.TotalAmount != nil {
		found = append(found, "total_amount")
	}
	if r.GSTAmount != nil {
		found = append(found, "gst_amount")
	}
	if r.Customer != nil {
		found = append(found, "customer")
	}
	if r.Payment != nil {
		found = append(found, "payment")
	}
	if len(r.LineItems) > 0 {
		found = append(found, "line_items")
	}
	return found
}

// Extractor runs the field and line item heuristics. The clock supplies the
// date used when a bill date cannot be parsed.
type Extractor struct {
	now func() time.Time
}

// NewExtractor creates an Extractor; a nil clock means time.Now
func NewExtractor(now func() time.Time) *Extractor {
	if now == nil {
		now = time.Now
	}
	return &Extractor{now: now}
}

var defaultExtractor = NewExtractor(nil)

// Extract runs field and line item extraction over rawText
func (e *Extractor) Extract(rawText string) Result {
	fields := e.ExtractFields(rawText)
	items := ExtractLineItems(Lines(rawText))
	return Assemble(fields, items, rawText)
}

// Extract runs field and line item extraction using the wall clock
func Extract(rawText string) Result {
	return defaultExtractor.Extract(rawText)
}

// ExtractFields finds header and footer fields using the wall clock
func ExtractFields(rawText string) Fields {
	return defaultExtractor.ExtractFields(rawText)
}
