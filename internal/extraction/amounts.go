package extraction

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// currency symbols sit outside the amount capture group
	currencyPattern = `(?:₹|rs\.?|inr|\$|€|£)?\s*`
	amountPattern   = `(\d[\d,]*(?:\.\d{1,2})?)\b`
	// label separators such as "(incl. tax):" or " = "
	separatorPattern = `\s*(?:\([^)]*\))?\s*[:=\-]?\s*`
)

// DefaultTaxRate is the GST percentage applied to every line item
var DefaultTaxRate = decimal.NewFromInt(18)

var hundred = decimal.NewFromInt(100)

// parseAmount reads a captured amount, dropping thousands separators
func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// taxOn returns amount x rate / 100 rounded to two places
func taxOn(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred).Round(2)
}
