package pattern

import (
	"math"
	"sync"
	"testing"
	"time"
)

func TestLedgerRunningMean(t *testing.T) {
	l := NewLedger()
	t0 := now
	l.Record(Pattern{Type: RapidEvolution, Strength: 0.4}, t0)
	l.Record(Pattern{Type: RapidEvolution, Strength: 0.8}, t0.Add(time.Minute))
	l.Record(Pattern{Type: RapidEvolution, Strength: 0.6}, t0.Add(2*time.Minute))

	e, ok := l.Get(RapidEvolution)
	if !ok {
		t.Fatal("entry missing")
	}
	if e.Occurrences != 3 {
		t.Errorf("occurrences = %d, want 3", e.Occurrences)
	}
	if math.Abs(e.AverageStrength-0.6) > 1e-9 {
		t.Errorf("average strength = %v, want 0.6", e.AverageStrength)
	}
	if !e.FirstSeen.Equal(t0) || !e.LastSeen.Equal(t0.Add(2*time.Minute)) {
		t.Errorf("first/last = %v/%v", e.FirstSeen, e.LastSeen)
	}
}

func TestLedgerActiveSince(t *testing.T) {
	l := NewLedger()
	l.RecordAll([]Pattern{
		{Type: ShadowIntegration, Strength: 0.5},
		{Type: CoherenceBuilding, Strength: 0.5},
	}, now)
	l.Record(Pattern{Type: RapidEvolution, Strength: 0.5}, now.Add(10*time.Minute))

	got := l.ActiveSince(now.Add(5 * time.Minute))
	if len(got) != 1 || got[0].Type != RapidEvolution {
		t.Fatalf("ActiveSince = %+v, want only rapid_evolution", got)
	}

	got = l.ActiveSince(now)
	if len(got) != 3 {
		t.Fatalf("ActiveSince(now) returned %d entries, want 3", len(got))
	}
	want := []Type{RapidEvolution, CoherenceBuilding, ShadowIntegration}
	for i := range want {
		if got[i].Type != want[i] {
			t.Errorf("entry %d = %s, want %s", i, got[i].Type, want[i])
		}
	}
}

func TestLedgerEmpty(t *testing.T) {
	l := NewLedger()
	if got := l.ActiveSince(time.Time{}); got == nil || len(got) != 0 {
		t.Errorf("empty ledger should return an empty, non-nil slice, got %v", got)
	}
	if _, ok := l.Get(ConsciousnessLeap); ok {
		t.Error("Get on unseen type reported ok")
	}
	l.RecordAll(nil, now)
	if l.Len() != 0 {
		t.Errorf("Len = %d", l.Len())
	}
}

func TestLedgerConcurrent(t *testing.T) {
	l := NewLedger()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Record(Pattern{Type: CoherenceBuilding, Strength: 0.5}, now)
				l.ActiveSince(now)
			}
		}()
	}
	wg.Wait()
	e, _ := l.Get(CoherenceBuilding)
	if e.Occurrences != 800 {
		t.Errorf("occurrences = %d, want 800", e.Occurrences)
	}
}
