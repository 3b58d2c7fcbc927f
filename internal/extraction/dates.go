package extraction

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const isoDate = "2006-01-02"

// Bills are printed day first, so the explicit layouts are tried before the
// permissive parser.
var dateLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/06",
	"2-1-06",
	"2.1.06",
	"2006-1-2",
	"2006/1/2",
	"2006.1.2",
	"2 January 2006",
	"2 Jan 2006",
	"2 January 06",
	"2 Jan 06",
	"January 2 2006",
	"Jan 2 2006",
	"2-Jan-2006",
	"2-Jan-06",
}

var (
	ordinalSuffix = regexp.MustCompile(`(?i)(\d)(?:st|nd|rd|th)\b`)
	dateNoise     = regexp.MustCompile(`[,\s]+`)
)

// parseDate reads a printed date and reports whether it made sense
func parseDate(s string) (time.Time, bool) {
	s = ordinalSuffix.ReplaceAllString(strings.TrimSpace(s), "$1")
	s = strings.TrimSpace(dateNoise.ReplaceAllString(s, " "))
	s = strings.ReplaceAll(s, "Sept ", "Sep ")
	s = strings.ReplaceAll(s, ". ", " ")
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, plausibleYear(t)
		}
	}

	t, err := dateparse.ParseIn(s, time.UTC, dateparse.PreferMonthFirst(false))
	if err != nil {
		return time.Time{}, false
	}
	return t, plausibleYear(t)
}

func plausibleYear(t time.Time) bool {
	return t.Year() >= 1900 && t.Year() <= 2200
}
