package parser

import "strings"

type gradeRule struct {
	code   string
	prefix string
}

// gradeRules is evaluated top to bottom; the first match wins. More
// specific prefixes must precede the shorter ones they contain.
var gradeRules = []gradeRule{
	{"PGU", "PERFECT GRADE UNLEASHED"},
	{"PGU", "PG UNLEASHED"},
	{"PGU", "PGU"},
	{"PG", "PERFECT GRADE"},
	{"PG", "PG"},
	{"MGEX", "MGEX"},
	{"MGSD", "MGSD"},
	{"MG", "MASTER GRADE"},
	{"MG", "MG"},
	{"RG", "REAL GRADE"},
	{"RG", "RG"},
	{"HGUC", "HGUC"},
	{"HGCE", "HGCE"},
	{"HGBF", "HGBF"},
	{"HGBD", "HGBD"},
	{"HG", "HIGH GRADE"},
	{"HG", "HG"},
	{"EG", "ENTRY GRADE"},
	{"EG", "EG"},
	{"SDCS", "SDCS"},
	{"SDEX", "SDEX"},
	{"SDW", "SDW HEROES"},
	{"SD", "SD"},
	{"RE/100", "RE/100"},
	{"FM", "FULL MECHANICS"},
	{"30MM", "30MM"},
	{"30MS", "30MS"},
	{"FRS", "FIGURE-RISE STANDARD"},
}

// InferGrade classifies a product name into a grade code by prefix. Names
// matching no rule fall back to their first token as written; an empty name
// yields nil.
func InferGrade(name string) *string {
	cleaned := CleanText(name)
	if cleaned == "" {
		return nil
	}
	normalized := strings.ToUpper(cleaned)
	for _, rule := range gradeRules {
		if strings.HasPrefix(normalized, rule.prefix) {
			code := rule.code
			return &code
		}
	}
	first := strings.Fields(cleaned)[0]
	return &first
}
