package parser

import (
	"regexp"
	"strconv"
	"time"
)

type datePattern struct {
	name string
	re   *regexp.Regexp
}

// datePatterns is tried in order; the first pattern found in the text
// decides the result, valid or not.
var datePatterns = []datePattern{
	{"native", regexp.MustCompile(`(\d{4})\s*年\s*(\d{1,2})\s*月(?:\s*(\d{1,2})\s*日)?`)},
	{"iso", regexp.MustCompile(`(\d{4})[-/](\d{1,2})[-/](\d{1,2})`)},
}

// ParseReleaseDate extracts a civil date (UTC midnight) from free text.
// Month-only dates and impossible calendar days yield nil.
func ParseReleaseDate(text string) *time.Time {
	text = foldDigits(text)
	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		return civilDate(m[1], m[2], m[3])
	}
	return nil
}

func civilDate(ys, ms, ds string) *time.Time {
	if ds == "" {
		return nil
	}
	year, _ := strconv.Atoi(ys)
	month, _ := strconv.Atoi(ms)
	day, _ := strconv.Atoi(ds)
	if month < 1 || month > 12 || day < 1 {
		return nil
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 30 -> Mar 1); reject those.
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return nil
	}
	return &t
}
