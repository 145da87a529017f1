// Package buffer provides a bounded ring used for diagnostic history.
package buffer

import (
	"sync"
)

// Ring is a thread-safe circular buffer that keeps the most recent items
// up to a fixed capacity. When the ring is full, the oldest item is
// discarded to make room for a new one.
type Ring[T any] struct {
	items    []T
	start    int
	count    int
	capacity int
	mu       sync.RWMutex
}

// NewRing creates a new Ring with the specified capacity.
// The capacity must be greater than 0; if not, it defaults to 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends an item, evicting the oldest one if the ring is full.
func (r *Ring[T]) Push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := (r.start + r.count) % r.capacity
	r.items[end] = item
	if r.count < r.capacity {
		r.count++
		return
	}
	r.start = (r.start + 1) % r.capacity
}

// Items returns a copy of the buffered items, oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		result[i] = r.items[(r.start+i)%r.capacity]
	}
	return result
}
