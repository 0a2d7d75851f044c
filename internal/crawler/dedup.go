package crawler

import "sync"

// Deduplicator tracks manual ids already handled in a run.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[int64]struct{}
}

// NewDeduplicator creates a new Deduplicator with the given estimated capacity.
func NewDeduplicator(estimatedCapacity int) *Deduplicator {
	return &Deduplicator{
		seen: make(map[int64]struct{}, estimatedCapacity),
	}
}

// MarkSeen records id and reports whether it was new.
func (d *Deduplicator) MarkSeen(id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = struct{}{}
	return true
}
