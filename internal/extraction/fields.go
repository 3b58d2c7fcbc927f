package extraction

import (
	"regexp"
	"strings"
	"unicode"
)

// rule is an ordered list of patterns for one field. The first capture group
// of a pattern is the value.
type rule struct {
	patterns []*regexp.Regexp
	// skip excludes whole lines before any pattern is tried
	skip *regexp.Regexp
	// accept validates a capture; a rejected capture does not stop the search
	accept func(string) bool
}

// find walks lines in document order and, for each line, tries the patterns
// in order. The first accepted capture wins.
func (r rule) find(lines []string) (string, bool) {
	for _, line := range lines {
		if r.skip != nil && r.skip.MatchString(line) {
			continue
		}
		for _, re := range r.patterns {
			m := re.FindStringSubmatch(line)
			if len(m) < 2 {
				continue
			}
			value := strings.TrimSpace(m[1])
			if value == "" {
				continue
			}
			if r.accept != nil && !r.accept(value) {
				continue
			}
			return value, true
		}
	}
	return "", false
}

func compile(patterns ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile(p)
	}
	return res
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

const monthPattern = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

const anyDatePattern = `(\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}` +
	`|\d{4}[/.\-]\d{1,2}[/.\-]\d{1,2}` +
	`|\d{1,2}(?:st|nd|rd|th)?[\s\-]+` + monthPattern + `\.?,?[\s\-]+\d{2,4}` +
	`|` + monthPattern + `\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4})`

var (
	billNumberRule = rule{
		patterns: compile(
			`(?i)\bbill\s*(?:number|num|no\.?|#)\s*[:#.\-]?\s*([A-Za-z0-9][A-Za-z0-9/\-]*)`,
			`(?i)\binvoice\s*(?:number|num|no\.?|#)\s*[:#.\-]?\s*([A-Za-z0-9][A-Za-z0-9/\-]*)`,
			`(?i)\bbill\b\s*[:#\-]?\s*([A-Za-z0-9]*\d[A-Za-z0-9/\-]*)`,
			`(?i)\binvoice\b\s*[:#\-]?\s*([A-Za-z0-9]*\d[A-Za-z0-9/\-]*)`,
		),
		accept: hasDigit,
	}

	billDateRule = rule{
		patterns: compile(
			`(?i)^(?:bill\s+|invoice\s+|inv\.?\s+)?date(?:\s+of\s+issue)?\s*[:\-]?\s*`+anyDatePattern,
			`\b(\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4})\b`,
			`\b(\d{4}[/.\-]\d{1,2}[/.\-]\d{1,2})\b`,
			`(?i)\b(\d{1,2}(?:st|nd|rd|th)?[\s\-]+`+monthPattern+`\.?,?[\s\-]+\d{2,4})\b`,
			`(?i)\b(`+monthPattern+`\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4})\b`,
			// a labelled date in a shape nothing above understands
			`(?i)^(?:bill\s+|invoice\s+)?date\s*[:\-]\s*(\S.*)$`,
		),
		skip: regexp.MustCompile(`(?i)\bdue\b|\bpay(?:ment)?\s+by\b`),
	}

	totalRule = rule{
		patterns: compile(
			`(?i)\bgrand\s*total`+separatorPattern+currencyPattern+amountPattern,
			`(?i)\bamount\s+(?:payable|due)`+separatorPattern+currencyPattern+amountPattern,
			`(?i)\bnet\s+(?:payable|amount|total)`+separatorPattern+currencyPattern+amountPattern,
			`(?i)\btotal(?:\s+amount)?`+separatorPattern+currencyPattern+amountPattern,
		),
		skip: regexp.MustCompile(`(?i)\bsub[\s\-]*total`),
	}

	subtotalRule = rule{
		patterns: compile(
			`(?i)\bsub[\s\-]*total(?:\s+amount)?` + separatorPattern + currencyPattern + amountPattern,
		),
	}

	gstRule = rule{
		patterns: compile(
			`(?i)\b(?:total\s+)?gst\b(?:\s*amount)?(?:\s*@?\s*\d+(?:\.\d+)?\s*%)?`+separatorPattern+currencyPattern+amountPattern,
			`(?i)\b(?:i|c|s|ut)gst\b(?:\s*amount)?(?:\s*@?\s*\d+(?:\.\d+)?\s*%)?`+separatorPattern+currencyPattern+amountPattern,
			`(?i)\b(?:tax|vat)\b(?:\s*amount)?(?:\s*@?\s*\d+(?:\.\d+)?\s*%)?`+separatorPattern+currencyPattern+amountPattern,
		),
	}

	customerNameRule = rule{
		patterns: compile(
			`(?i)\bcustomer\s*name\s*[:\-]?\s*(.+)`,
			`(?i)\bbill(?:ed)?\s+to\s*[:\-]?\s*(.+)`,
			`(?i)\b(?:buyer|sold\s+to|customer)\s*[:\-]\s*(.+)`,
			`(?i)^name\s*[:\-]\s*(.+)`,
		),
		accept: hasLetter,
	}

	customerAddressRule = rule{
		patterns: compile(
			`(?i)\b(?:billing|shipping|delivery)\s+address\s*[:\-]?\s*(.+)`,
			`(?i)\baddress\s*[:\-]?\s*(.+)`,
		),
		skip:   regexp.MustCompile(`(?i)\be-?mail\b|@`),
		accept: hasLetter,
	}

	customerPhoneRule = rule{
		patterns: compile(
			`(?i)\b(?:telephone|phone|mobile|mob|tel|contact|ph)\b\.?\s*(?:no\.?|number)?\s*[:\-]?\s*(\+?\d[\d\s\-()]{6,}\d)`,
			`(\+91[\s\-]?\d{5}[\s\-]?\d{5})\b`,
			`\b([6-9]\d{9})\b`,
		),
		skip: regexp.MustCompile(`(?i)\b(?:a/c|account|acct)\b`),
	}

	customerEmailRule = rule{
		patterns: compile(`([A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,})`),
	}

	// GSTINs are exactly 15 upper case alphanumerics; only the label is case
	// insensitive
	customerTaxIDRule = rule{
		patterns: compile(
			`(?i:\b(?:gstin|gst\s*(?:number|no|reg(?:istration)?\s*no)\.?|tax\s*id))\s*[:\-#]?\s*([0-9A-Z]{15})\b`,
		),
	}

	bankNameRule = rule{
		patterns: compile(
			`(?i)\bbank\s*name\s*[:\-]?\s*(.+)`,
			`(?i)^bank\s*[:\-]\s*(.+)`,
			`(?i)^([a-z][a-z .&]*\bbank(?:\s+(?:ltd|limited))?\.?)$`,
		),
		accept: hasLetter,
	}

	accountHolderRule = rule{
		patterns: compile(
			`(?i)\b(?:account|a/c)\s*holder(?:\s*name)?\s*[:\-]?\s*(.+)`,
			`(?i)\baccount\s*name\s*[:\-]?\s*(.+)`,
			`(?i)\bbeneficiary(?:\s*name)?\s*[:\-]?\s*(.+)`,
		),
		accept: hasLetter,
	}

	accountNumberRule = rule{
		patterns: compile(
			`(?i)\b(?:account|a/c|acct)\.?\s*(?:number|no\.?|#)\s*[:\-]?\s*(\d[\d\s\-]{4,}\d)`,
		),
	}

	dueDateRule = rule{
		patterns: compile(
			`(?i)\bdue\s*date\s*[:\-]?\s*(.+)`,
			`(?i)\bpay(?:ment)?\s+by\s*[:\-]?\s*(.+)`,
		),
	}

	accountNumberNoise = regexp.MustCompile(`[\s\-]+`)
)

// Lines splits text into trimmed, non-empty lines
func Lines(rawText string) []string {
	var lines []string
	for _, line := range strings.Split(rawText, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// ExtractFields finds the bill header and footer fields in rawText
func (e *Extractor) ExtractFields(rawText string) Fields {
	lines := Lines(rawText)
	var f Fields

	if v, ok := billNumberRule.find(lines); ok {
		f.BillNumber = &v
	}

	if v, ok := billDateRule.find(lines); ok {
		date := e.now().Format(isoDate)
		if t, parsed := parseDate(v); parsed {
			date = t.Format(isoDate)
		} else {
			f.DateInferred = true
		}
		f.BillDate = &date
	}

	if v, ok := totalRule.find(lines); ok {
		if d, parsed := parseAmount(v); parsed {
			f.TotalAmount = &d
		}
	}

	if v, ok := gstRule.find(lines); ok {
		if d, parsed := parseAmount(v); parsed {
			f.GSTAmount = &d
		}
	}

	f.Customer = extractCustomer(lines)
	f.Payment = extractPayment(lines)

	return f
}

func extractCustomer(lines []string) *CustomerInfo {
	var c CustomerInfo
	found := false
	set := func(dst **string, r rule) {
		if v, ok := r.find(lines); ok {
			*dst = &v
			found = true
		}
	}

	set(&c.Name, customerNameRule)
	set(&c.Address, customerAddressRule)
	set(&c.Phone, customerPhoneRule)
	set(&c.Email, customerEmailRule)
	set(&c.TaxID, customerTaxIDRule)

	if !found {
		return nil
	}
	return &c
}

func extractPayment(lines []string) *PaymentInfo {
	var p PaymentInfo
	found := false

	if v, ok := bankNameRule.find(lines); ok {
		p.BankName = &v
		found = true
	}
	if v, ok := accountHolderRule.find(lines); ok {
		p.AccountHolder = &v
		found = true
	}
	if v, ok := accountNumberRule.find(lines); ok {
		v = accountNumberNoise.ReplaceAllString(v, "")
		p.AccountNumber = &v
		found = true
	}
	if v, ok := dueDateRule.find(lines); ok {
		if t, parsed := parseDate(v); parsed {
			v = t.Format(isoDate)
		}
		p.DueDate = &v
		found = true
	}

	if !found {
		return nil
	}
	return &p
}
