// Package catalogtest provides an in-memory catalog.Store for tests.
package catalogtest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/IshaanNene/kitmanual/internal/catalog"
)

// MemoryStore is a concurrency-safe in-memory catalog.Store with the same
// upsert semantics as the SQL backends.
type MemoryStore struct {
	mu      sync.Mutex
	records map[int64]catalog.Record
	now     func() time.Time

	// UpsertErr, when set, is returned by every Upsert.
	UpsertErr error
	// SetPathErr, when set, is returned by every SetLocalPath.
	SetPathErr error

	Upserts  int
	PathSets int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[int64]catalog.Record),
		now:     time.Now,
	}
}

// Seed inserts records verbatim, local path included.
func (s *MemoryStore) Seed(recs ...catalog.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		s.records[r.ID] = r
	}
}

func (s *MemoryStore) Upsert(_ context.Context, rec *catalog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	s.Upserts++
	now := s.now()
	next := *rec
	if existing, ok := s.records[rec.ID]; ok {
		next.CreatedAt = existing.CreatedAt
		next.LocalPath = existing.LocalPath
		next.StorageBucket = existing.StorageBucket
		next.StoragePath = existing.StoragePath
		next.PublicURL = existing.PublicURL
		next.StorageSize = existing.StorageSize
		next.UploadedAt = existing.UploadedAt
	} else {
		next.CreatedAt = now
		next.LocalPath = nil
	}
	next.UpdatedAt = now
	s.records[rec.ID] = next
	return nil
}

func (s *MemoryStore) SetLocalPath(_ context.Context, id int64, relPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetPathErr != nil {
		return s.SetPathErr
	}
	rec, ok := s.records[id]
	if !ok {
		return catalog.ErrNotFound
	}
	s.PathSets++
	rec.LocalPath = catalog.StringPtr(relPath)
	rec.UpdatedAt = s.now()
	s.records[id] = rec
	return nil
}

func (s *MemoryStore) SetUpload(_ context.Context, id int64, info catalog.UploadInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return catalog.ErrNotFound
	}
	size := info.Size
	uploadedAt := info.UploadedAt
	rec.StorageBucket = catalog.StringPtr(info.Bucket)
	rec.StoragePath = catalog.StringPtr(info.Path)
	rec.PublicURL = catalog.StringPtr(info.PublicURL)
	rec.StorageSize = &size
	rec.UploadedAt = &uploadedAt
	s.records[id] = rec
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*catalog.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) List(_ context.Context, q catalog.Query) ([]catalog.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []catalog.Record
	skipped := 0
	for _, id := range ids {
		rec := s.records[id]
		if !q.Match(&rec) {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		out = append(out, rec)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Name() string { return "memory" }

// ErrInjected is a convenience error for failure injection.
var ErrInjected = errors.New("injected store failure")
