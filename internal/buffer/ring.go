// Package buffer provides the bounded FIFO containers shared by the collector loops.
package buffer

import "sync"

// Default capacities of the shared buffers
const (
	EventCapacity   = 10000
	MetricsCapacity = 1000
)

// Ring is a fixed-capacity FIFO. Appending to a full ring silently evicts the
// oldest entry. Every read returns a copy, so callers may iterate without
// holding the lock while other loops keep appending.
type Ring[T any] struct {
	mu      sync.RWMutex
	items   []T
	head    int // index of the oldest entry
	size    int
	evicted uint64
}

// NewRing creates a ring with the given capacity. Capacity below 1 is raised to 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Append adds v as the newest entry
func (r *Ring[T]) Append(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := len(r.items)
	if r.size < capacity {
		r.items[(r.head+r.size)%capacity] = v
		r.size++
		return
	}

	r.items[r.head] = v
	r.head = (r.head + 1) % capacity
	r.evicted++
}

// Len returns the number of buffered entries
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the capacity
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Evicted returns how many entries have been dropped due to overflow
func (r *Ring[T]) Evicted() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.evicted
}

// Snapshot returns all entries, oldest first
func (r *Ring[T]) Snapshot() []T {
	return r.Last(-1)
}

// Last returns up to n of the newest entries, oldest first. A negative n returns everything.
func (r *Ring[T]) Last(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n < 0 || n > r.size {
		n = r.size
	}
	out := make([]T, n)
	capacity := len(r.items)
	start := r.head + r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.items[(start+i)%capacity]
	}
	return out
}

// Latest returns the newest entry
func (r *Ring[T]) Latest() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.items[(r.head+r.size-1)%len(r.items)], true
}
