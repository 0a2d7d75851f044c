package parser

import "strings"

// CleanText collapses whitespace runs (including ideographic spaces and
// newlines) into single spaces and trims the ends.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// foldDigits maps full-width digits to ASCII so date patterns see them.
func foldDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '０' && r <= '９' {
			return '0' + (r - '０')
		}
		return r
	}, s)
}
