package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

// Health is a liveness snapshot. It is readable without a round trip through
// the engine loop, so a stuck loop still reports a stale LastRecompute.
type Health struct {
	ID            string    `json:"id"`
	Running       bool      `json:"running"`
	StartedAt     time.Time `json:"started_at"`
	LastRecompute time.Time `json:"last_recompute"`
	Recomputes    uint64    `json:"recomputes"`
	SkippedTicks  uint64    `json:"skipped_ticks"`

	Ingested uint64 `json:"ingested"`
	Rejected uint64 `json:"rejected"`
	Expired  uint64 `json:"expired"` // arrived already outside the window
	Dropped  uint64 `json:"dropped"` // hard-cap overflow
	Evicted  uint64 `json:"evicted"`
	Panics   uint64 `json:"panics"`

	BufferLen    int    `json:"buffer_len"`
	Participants int    `json:"participants"`
	Patterns     uint64 `json:"patterns"`

	ArchiveWritten uint64 `json:"archive_written"`
	ArchiveDropped uint64 `json:"archive_dropped"`
	ArchiveErrors  uint64 `json:"archive_errors"`
}

// Stale reports whether no recompute has run for three intervals.
func (h Health) Stale(now time.Time, interval time.Duration) bool {
	last := h.LastRecompute
	if last.IsZero() {
		last = h.StartedAt
	}
	return now.Sub(last) > 3*interval
}

// counters are bumped by the loop and read by Health.
type counters struct {
	ingested atomic.Uint64
	rejected atomic.Uint64
	expired  atomic.Uint64
	dropped  atomic.Uint64
	evicted  atomic.Uint64
	panics   atomic.Uint64
	skipped  atomic.Uint64
	patterns atomic.Uint64

	mu            sync.Mutex
	lastRecompute time.Time
	recomputes    uint64
	bufferLen     int
	participants  int
}

func (c *counters) recomputed(at time.Time, n uint64, bufferLen, participants int) {
	c.mu.Lock()
	c.lastRecompute = at
	c.recomputes = n
	c.bufferLen = bufferLen
	c.participants = participants
	c.mu.Unlock()
}

func (c *counters) occupancy(bufferLen int) {
	c.mu.Lock()
	c.bufferLen = bufferLen
	c.mu.Unlock()
}
