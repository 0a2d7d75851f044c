package catalog

import "strings"

// Match reports whether r satisfies the query's filters. Limit and Offset
// are applied by the caller.
func (q Query) Match(r *Record) bool {
	if q.OnlyMissing && r.HasLocalPath() {
		return false
	}
	if q.NotUploaded && (!r.HasLocalPath() || r.UploadedAt != nil) {
		return false
	}
	if len(q.Grades) > 0 && !containsFold(q.Grades, r.GradeCode()) {
		return false
	}
	if len(q.IDs) > 0 && !containsID(q.IDs, r.ID) {
		return false
	}
	if q.Keyword != "" {
		kw := strings.ToLower(q.Keyword)
		native, foreign := "", ""
		if r.NameNative != nil {
			native = strings.ToLower(*r.NameNative)
		}
		if r.NameForeign != nil {
			foreign = strings.ToLower(*r.NameForeign)
		}
		if !strings.Contains(native, kw) && !strings.Contains(foreign, kw) {
			return false
		}
	}
	return true
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func containsID(list []int64, id int64) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
