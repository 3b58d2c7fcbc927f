package extraction

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SynthesizedItemName names the single row made up when a bill has no table
const SynthesizedItemName = "Bill amount"

var (
	// <name> <qty> [cur]<unit price> [cur]<total price>
	lineItemPattern = regexp.MustCompile(`(?i)^(.*?[a-z].*?)\s+(\d+)\s+` +
		currencyPattern + `(\d[\d,]*(?:\.\d{1,2})?)\s+` +
		currencyPattern + `(\d[\d,]*(?:\.\d{1,2})?)\s*(?:/-)?$`)

	// summary rows that look like table rows; only the leading label counts
	summaryLabel = regexp.MustCompile(`(?i)^\s*(?:sub[\s\-]*total|grand\s*total|total|net\s*(?:amount|total)|[cisu]?gst|utgst|tax|vat|round(?:ing)?\s*off|discount|balance|amount\s*due)\b`)

	// a bare field label followed by digits, e.g. "Phone 98 4512 3456" or "Date: 05 03 2024"
	fieldLabel = regexp.MustCompile(`(?i)^\s*(?:date|phone|mobile|tel|a/c|account|acct|bill|invoice|gstin)(?:\s*(?:no\.?|number|#))?\s*[:#.\-]?\s*$`)

	lineItemNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("billscan.line-item"))
)

// ExtractLineItems parses table rows from lines, in source order. When no
// row is found a single synthesized item carries the subtotal, or failing
// that the total. The slice is empty, never nil, when nothing matches.
func ExtractLineItems(lines []string) []LineItem {
	items := []LineItem{}

	for _, line := range lines {
		m := lineItemPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		name := m[1]
		if summaryLabel.MatchString(name) || fieldLabel.MatchString(name) {
			continue
		}
		qty, err := strconv.Atoi(m[2])
		if err != nil || qty <= 0 {
			continue
		}
		unit, ok := parseAmount(m[3])
		if !ok {
			continue
		}

		// The printed row total is ignored when it disagrees with qty x unit
		total := unit.Mul(decimal.NewFromInt(int64(qty)))
		items = append(items, newLineItem(len(items), line, name, qty, unit, total, false))
	}

	if len(items) > 0 {
		return items
	}

	amount, line, ok := fallbackAmount(lines)
	if !ok {
		return items
	}
	return append(items, newLineItem(0, line, SynthesizedItemName, 1, amount, amount, true))
}

func fallbackAmount(lines []string) (decimal.Decimal, string, bool) {
	for _, r := range []rule{subtotalRule, totalRule} {
		for _, line := range lines {
			v, ok := r.find([]string{line})
			if !ok {
				continue
			}
			if amount, parsed := parseAmount(v); parsed {
				return amount, line, true
			}
		}
	}
	return decimal.Zero, "", false
}

func newLineItem(index int, line, name string, qty int, unit, total decimal.Decimal, synthesized bool) LineItem {
	return LineItem{
		ID:          uuid.NewSHA1(lineItemNamespace, []byte(fmt.Sprintf("%d:%s", index, line))).String(),
		ProductName: name,
		Quantity:    qty,
		UnitPrice:   unit,
		TotalPrice:  total,
		TaxRate:     DefaultTaxRate,
		TaxAmount:   taxOn(total, DefaultTaxRate),
		Synthesized: synthesized,
	}
}
