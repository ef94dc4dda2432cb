// Package window holds the rolling time window of stream points.
package window

import (
	"maps"
	"slices"
	"time"

	"github.com/abelbrown/collective/internal/signal"
)

const (
	// DefaultSize is the default window length.
	DefaultSize = 5 * time.Minute

	// DefaultMaxPoints caps the buffer even when eviction falls behind
	// (clock skew, stalled ticker, ingest bursts).
	DefaultMaxPoints = 10000
)

// Snapshot is a deep copy of the buffer at one instant. Callers own it.
type Snapshot struct {
	Points []signal.StreamPoint
	Start  time.Time // exclusive: points at exactly Start are already evicted
	End    time.Time
}

// Len returns the number of points in the snapshot.
func (s Snapshot) Len() int {
	return len(s.Points)
}

// Participants returns the distinct participant ids in arrival order.
func (s Snapshot) Participants() []string {
	seen := make(map[string]bool, len(s.Points))
	var ids []string
	for _, p := range s.Points {
		if !seen[p.ParticipantID] {
			seen[p.ParticipantID] = true
			ids = append(ids, p.ParticipantID)
		}
	}
	return ids
}

// Buffer keeps stream points in arrival order within a sliding window.
// Not safe for concurrent use: the engine loop is its only owner, and
// everybody else reads Snapshot copies.
//
// Live points are points[head:]. Hard-cap drops advance head; the slice is
// compacted once head passes half of it, so Append stays O(1) amortized.
type Buffer struct {
	size      time.Duration
	maxPoints int
	points    []signal.StreamPoint
	head      int

	start time.Time
	end   time.Time

	dropped uint64 // points discarded by the hard cap
	evicted uint64 // points removed by age
}

// NewBuffer creates a buffer for the given window length and hard cap.
// Non-positive arguments select the defaults.
func NewBuffer(size time.Duration, maxPoints int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &Buffer{
		size:      size,
		maxPoints: maxPoints,
		points:    make([]signal.StreamPoint, 0, min(maxPoints, 256)),
	}
}

// Size returns the window length.
func (b *Buffer) Size() time.Duration {
	return b.size
}

// Len returns the number of buffered points.
func (b *Buffer) Len() int {
	return len(b.points) - b.head
}

func (b *Buffer) live() []signal.StreamPoint {
	return b.points[b.head:]
}

// Append adds p at the tail. When the buffer is at its hard cap the oldest
// point is dropped first and Append reports true.
func (b *Buffer) Append(p signal.StreamPoint) (dropped bool) {
	if b.Len() >= b.maxPoints {
		b.points[b.head] = signal.StreamPoint{}
		b.head++
		b.dropped++
		dropped = true
		if b.head > len(b.points)/2 {
			b.compact()
		}
	}
	b.points = append(b.points, p)
	if p.ObservedAt.After(b.end) {
		b.end = p.ObservedAt
	}
	return dropped
}

// EvictExpired removes every point with ObservedAt <= now-size and returns
// how many were removed. The boundary is exclusive: a point exactly one
// window old is gone. The whole buffer is scanned so late, out-of-order
// arrivals cannot linger behind a fresh head.
func (b *Buffer) EvictExpired(now time.Time) int {
	cutoff := now.Add(-b.size)
	b.start = cutoff
	b.end = now

	before := b.Len()
	kept := b.points[:0]
	for _, p := range b.live() {
		if p.ObservedAt.After(cutoff) {
			kept = append(kept, p)
		}
	}
	b.truncate(len(kept))
	removed := before - len(kept)
	b.evicted += uint64(removed)
	return removed
}

// compact moves the live points to the front of the slice.
func (b *Buffer) compact() {
	n := copy(b.points, b.live())
	b.truncate(n)
}

// truncate keeps points[:n] as the live set, zeroing the rest so dropped
// maps and slices can be collected.
func (b *Buffer) truncate(n int) {
	clear(b.points[n:])
	b.points = b.points[:n]
	b.head = 0
}

// Snapshot returns a copy of the buffered points, including their
// Archetypes maps and Shadows slices, and the window bounds.
func (b *Buffer) Snapshot() Snapshot {
	pts := make([]signal.StreamPoint, b.Len())
	for i, p := range b.live() {
		p.Archetypes = maps.Clone(p.Archetypes)
		p.Shadows = slices.Clone(p.Shadows)
		pts[i] = p
	}
	return Snapshot{Points: pts, Start: b.start, End: b.end}
}

// Dropped returns the number of points discarded by the hard cap.
func (b *Buffer) Dropped() uint64 {
	return b.dropped
}

// Evicted returns the number of points removed by age.
func (b *Buffer) Evicted() uint64 {
	return b.evicted
}
