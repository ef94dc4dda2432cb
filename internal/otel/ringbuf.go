package otel

import (
	"maps"
	"sync"
)

// DefaultRingSize is the default ring buffer capacity.
const DefaultRingSize = 1024

// Ring is a fixed-size circular buffer. Goroutine-safe for concurrent Push
// and read operations.
type Ring[T any] struct {
	mu    sync.Mutex
	buf   []T
	size  int
	head  int // next write position
	count int // number of valid entries (0..size)
	copyf func(T) T
}

// RingBuffer is the event ring read by the debug overlay.
type RingBuffer = Ring[Event]

// NewRing creates a ring with the given capacity.
func NewRing[T any](size int) *Ring[T] {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring[T]{
		buf:  make([]T, size),
		size: size,
	}
}

// NewRingBuffer creates an event ring. Pushed events get their own copy of
// the Extra map.
func NewRingBuffer(size int) *RingBuffer {
	r := NewRing[Event](size)
	r.copyf = func(e Event) Event {
		e.Extra = maps.Clone(e.Extra)
		return e
	}
	return r
}

// Push adds v, overwriting the oldest entry if full.
func (r *Ring[T]) Push(v T) {
	if r.copyf != nil {
		v = r.copyf(v)
	}
	r.mu.Lock()
	r.buf[r.head] = v
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
	r.mu.Unlock()
}

// Snapshot returns a copy of all entries, oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last(r.count)
}

// Last returns the n most recent entries, oldest first. If n > count,
// returns all entries. If n <= 0, returns nil.
func (r *Ring[T]) Last(n int) []T {
	if n <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > r.count {
		n = r.count
	}
	return r.last(n)
}

func (r *Ring[T]) last(n int) []T {
	if n == 0 {
		return nil
	}
	result := make([]T, n)
	start := (r.head - n + r.size) % r.size
	if start+n <= r.size {
		copy(result, r.buf[start:start+n])
	} else {
		first := copy(result, r.buf[start:])
		copy(result[first:], r.buf[:n-first])
	}
	return result
}

// Len returns the number of entries currently in the ring.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return r.size
}

// Stats returns counts by EventKind over all buffered events.
func Stats(r *RingBuffer) map[EventKind]int {
	counts := make(map[EventKind]int)
	for _, e := range r.Snapshot() {
		counts[e.Kind]++
	}
	return counts
}
