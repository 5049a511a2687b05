// Copyright 2025 Traceprompt
//
// Ring is the bounded in-memory FIFO of recently enqueued records. It
// holds a fixed capacity of 2*batch_size and drops the oldest item when
// full, reporting its length as a gauge via internal/metrics.
package ring

import (
	"sync"

	"github.com/traceprompt/audit-go/internal/metrics"
	"github.com/traceprompt/audit-go/internal/record"
)

// Ring is a bounded FIFO of *record.Record. It is safe for concurrent use.
type Ring struct {
	mu       sync.Mutex
	items    []*record.Record
	capacity int
	metrics  *metrics.Registry
}

// New returns a Ring holding at most capacity items (typically
// 2*batch_size). A non-positive capacity is treated as 1.
func New(capacity int, reg *metrics.Registry) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{
		items:    make([]*record.Record, 0, capacity),
		capacity: capacity,
		metrics:  reg,
	}
}

// Push appends item to the tail. If the ring is at capacity, the oldest
// item is dropped to make room — this is not data loss because the item
// was already durably appended to the outbox before Push is called.
func (r *Ring) Push(item *record.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.items) >= r.capacity {
		r.items = r.items[1:]
	}
	r.items = append(r.items, item)
	r.reportLenLocked()
}

// Drip removes and returns up to n oldest items.
func (r *Ring) Drip(n int) []*record.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || len(r.items) == 0 {
		return nil
	}
	if n > len(r.items) {
		n = len(r.items)
	}
	out := make([]*record.Record, n)
	copy(out, r.items[:n])
	r.items = r.items[n:]
	r.reportLenLocked()
	return out
}

// Restore prepends items back onto the head, for use when a batch drawn
// from the ring fails to deliver and must be put back. It respects
// capacity: if the combined length would exceed it, items are dropped from
// the head, so the restored items go first.
func (r *Ring) Restore(items []*record.Record) {
	if len(items) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	merged := append(append([]*record.Record{}, items...), r.items...)
	if len(merged) > r.capacity {
		merged = merged[len(merged)-r.capacity:]
	}
	r.items = merged
	r.reportLenLocked()
}

// Len reports the current number of queued items.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func (r *Ring) reportLenLocked() {
	if r.metrics != nil {
		r.metrics.SetRingLength(len(r.items))
	}
}
