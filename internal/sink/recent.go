package sink

import (
	"context"
	"sync"

	"influence-monitoring/internal/detector"
)

// Recent keeps the last findings in a fixed size ring. The oldest finding
// is overwritten when the ring is full.
type Recent struct {
	mu    sync.Mutex
	data  []detector.Finding
	head  int // next write position
	count int
	total uint64
}

// NewRecent returns a ring holding up to capacity findings.
func NewRecent(capacity int) *Recent {
	if capacity <= 0 {
		capacity = 1
	}
	return &Recent{data: make([]detector.Finding, capacity)}
}

func (r *Recent) Emit(ctx context.Context, fs []detector.Finding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range fs {
		r.data[r.head] = f
		r.head = (r.head + 1) % len(r.data)
		if r.count < len(r.data) {
			r.count++
		}
		r.total++
	}
	return nil
}

// Snapshot returns up to limit findings, newest first. limit <= 0 returns
// everything held.
func (r *Recent) Snapshot(limit int) []detector.Finding {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > r.count {
		limit = r.count
	}
	out := make([]detector.Finding, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.head - i + len(r.data)) % len(r.data)
		out = append(out, r.data[idx])
	}
	return out
}

// Total is the number of findings ever emitted.
func (r *Recent) Total() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

func (r *Recent) Close() error { return nil }
