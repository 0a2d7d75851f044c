package pipeline

import (
	"strings"
	"sync"

	"github.com/IshaanNene/kitmanual/internal/catalog"
)

// --- Built-in Middleware ---

// RequiredFieldsMiddleware drops records that cannot be downloaded.
type RequiredFieldsMiddleware struct{}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(rec *catalog.Record) (*catalog.Record, error) {
	if rec.ID <= 0 || rec.PDFURL == "" {
		return nil, nil
	}
	return rec, nil
}

// OnlyMissingMiddleware keeps records with no recorded local path.
type OnlyMissingMiddleware struct{}

func (m *OnlyMissingMiddleware) Name() string { return "only_missing" }

func (m *OnlyMissingMiddleware) Process(rec *catalog.Record) (*catalog.Record, error) {
	if rec.HasLocalPath() {
		return nil, nil
	}
	return rec, nil
}

// GradeFilterMiddleware keeps records whose grade is in the set.
// Comparison ignores case.
type GradeFilterMiddleware struct {
	grades map[string]struct{}
}

func NewGradeFilterMiddleware(grades []string) *GradeFilterMiddleware {
	m := &GradeFilterMiddleware{grades: make(map[string]struct{}, len(grades))}
	for _, g := range grades {
		m.grades[strings.ToUpper(strings.TrimSpace(g))] = struct{}{}
	}
	return m
}

func (m *GradeFilterMiddleware) Name() string { return "grade_filter" }

func (m *GradeFilterMiddleware) Process(rec *catalog.Record) (*catalog.Record, error) {
	if _, ok := m.grades[strings.ToUpper(rec.GradeCode())]; !ok {
		return nil, nil
	}
	return rec, nil
}

// IDFilterMiddleware keeps records with one of the given ids.
type IDFilterMiddleware struct {
	ids map[int64]struct{}
}

func NewIDFilterMiddleware(ids []int64) *IDFilterMiddleware {
	m := &IDFilterMiddleware{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		m.ids[id] = struct{}{}
	}
	return m
}

func (m *IDFilterMiddleware) Name() string { return "id_filter" }

func (m *IDFilterMiddleware) Process(rec *catalog.Record) (*catalog.Record, error) {
	if _, ok := m.ids[rec.ID]; !ok {
		return nil, nil
	}
	return rec, nil
}

// LimitMiddleware passes the first N records and drops the rest.
type LimitMiddleware struct {
	mu    sync.Mutex
	limit int
	count int
}

func NewLimitMiddleware(limit int) *LimitMiddleware {
	return &LimitMiddleware{limit: limit}
}

func (m *LimitMiddleware) Name() string { return "limit" }

func (m *LimitMiddleware) Process(rec *catalog.Record) (*catalog.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count >= m.limit {
		return nil, nil
	}
	m.count++
	return rec, nil
}

// DedupMiddleware drops records whose id was already passed.
type DedupMiddleware struct {
	mu   sync.Mutex
	seen map[int64]struct{}
}

func NewDedupMiddleware() *DedupMiddleware {
	return &DedupMiddleware{seen: make(map[int64]struct{})}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(rec *catalog.Record) (*catalog.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.seen[rec.ID]; exists {
		return nil, nil
	}
	m.seen[rec.ID] = struct{}{}
	return rec, nil
}
