package pattern

import (
	"sort"
	"sync"
	"time"
)

// LedgerEntry is the running history of one pattern type.
type LedgerEntry struct {
	Type            Type      `json:"type"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	Occurrences     int       `json:"occurrences"`
	AverageStrength float64   `json:"average_strength"`
}

// Ledger records which pattern types have been seen and how strongly.
// Goroutine-safe.
type Ledger struct {
	mu      sync.RWMutex
	entries map[Type]*LedgerEntry
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[Type]*LedgerEntry)}
}

// Record folds p into its type's entry at time now. Entries are updated in
// place, never replaced.
func (l *Ledger) Record(p Pattern, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record(p, now)
}

// RecordAll records every pattern of one detection pass.
func (l *Ledger) RecordAll(ps []Pattern, now time.Time) {
	if len(ps) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range ps {
		l.record(p, now)
	}
}

func (l *Ledger) record(p Pattern, now time.Time) {
	e, ok := l.entries[p.Type]
	if !ok {
		l.entries[p.Type] = &LedgerEntry{
			Type:            p.Type,
			FirstSeen:       now,
			LastSeen:        now,
			Occurrences:     1,
			AverageStrength: p.Strength,
		}
		return
	}
	e.LastSeen = now
	e.Occurrences++
	e.AverageStrength += (p.Strength - e.AverageStrength) / float64(e.Occurrences)
}

// Get returns the entry for typ.
func (l *Ledger) Get(typ Type) (LedgerEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[typ]
	if !ok {
		return LedgerEntry{}, false
	}
	return *e, true
}

// ActiveSince returns every entry seen at or after cutoff, most recent
// first. No matches yields an empty slice, not an error.
func (l *Ledger) ActiveSince(cutoff time.Time) []LedgerEntry {
	l.mu.RLock()
	out := make([]LedgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if !e.LastSeen.Before(cutoff) {
			out = append(out, *e)
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].Type < out[j].Type
		}
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

// Len returns the number of pattern types recorded.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
