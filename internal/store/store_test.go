package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/abelbrown/collective/internal/field"
	"github.com/abelbrown/collective/internal/pattern"
	"github.com/abelbrown/collective/internal/signal"
)

var base = time.Date(2026, 5, 4, 20, 0, 0, 0, time.UTC)

func openTemp(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func samplePattern(id string, typ pattern.Type, at time.Time) pattern.Pattern {
	return pattern.Pattern{
		ID:              id,
		Type:            typ,
		Strength:        0.8,
		Impact:          0.4,
		ParticipantIDs:  []string{"a", "b", "c"},
		Members:         4,
		Timeframe:       pattern.Timeframe{Start: at.Add(-time.Minute), End: at},
		Signature:       signal.Uniform(),
		Archetypes:      map[string]float64{"seeker": 0.6},
		DetectedAt:      at,
		ProgressionNote: "note",
		SupportNeeds:    []string{"rest"},
		TimingNote:      "soon",
	}
}

func TestOpenMemory(t *testing.T) {
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()

	for _, table := range []string{"patterns", "field_states"} {
		var name string
		err := st.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("%s table not created: %v", table, err)
		}
	}
}

func TestArchivePatternsRoundTrip(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()

	p := samplePattern("p1", pattern.ShadowIntegration, base)
	n, err := st.ArchivePatterns(ctx, []pattern.Pattern{p})
	if err != nil {
		t.Fatalf("ArchivePatterns: %v", err)
	}
	if n != 1 {
		t.Errorf("inserted %d, want 1", n)
	}

	got, err := st.RecentPatterns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentPatterns: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(got))
	}
	g := got[0]
	if g.ID != "p1" || g.Type != pattern.ShadowIntegration || g.Members != 4 {
		t.Errorf("pattern = %+v", g)
	}
	if len(g.ParticipantIDs) != 3 || g.ParticipantIDs[2] != "c" {
		t.Errorf("participants = %v", g.ParticipantIDs)
	}
	if !g.DetectedAt.Equal(base) || !g.Timeframe.Start.Equal(base.Add(-time.Minute)) {
		t.Errorf("times = %v / %v", g.DetectedAt, g.Timeframe.Start)
	}
	if g.Archetypes["seeker"] != 0.6 || len(g.SupportNeeds) != 1 {
		t.Errorf("archetypes/support = %v / %v", g.Archetypes, g.SupportNeeds)
	}
	if g.Sources != nil {
		t.Errorf("sources = %v, want nil", g.Sources)
	}
}

func TestArchivePatternsIgnoresDuplicates(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()

	p := samplePattern("dup", pattern.RapidEvolution, base)
	if _, err := st.ArchivePatterns(ctx, []pattern.Pattern{p}); err != nil {
		t.Fatal(err)
	}
	n, err := st.ArchivePatterns(ctx, []pattern.Pattern{p, samplePattern("new", pattern.RapidEvolution, base)})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("inserted %d, want 1", n)
	}
	if n, _ := st.ArchivePatterns(ctx, nil); n != 0 {
		t.Errorf("empty archive inserted %d", n)
	}
}

func TestRecentPatternsOrderAndLimit(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()

	var ps []pattern.Pattern
	for i := 0; i < 5; i++ {
		ps = append(ps, samplePattern(fmt.Sprintf("p%d", i), pattern.CoherenceBuilding, base.Add(time.Duration(i)*time.Minute)))
	}
	meta := samplePattern("m", pattern.ConsciousnessLeap, base.Add(10*time.Minute))
	meta.Sources = []string{"p3", "p4"}
	ps = append(ps, meta)
	if _, err := st.ArchivePatterns(ctx, ps); err != nil {
		t.Fatal(err)
	}

	got, err := st.RecentPatterns(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"m", "p4", "p3"}
	if len(got) != len(want) {
		t.Fatalf("got %d patterns, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ID, want[i])
		}
	}
	if len(got[0].Sources) != 2 {
		t.Errorf("meta sources = %v", got[0].Sources)
	}

	counts, err := st.PatternTypeCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[pattern.CoherenceBuilding] != 5 || counts[pattern.ConsciousnessLeap] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestFieldStates(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s := field.Neutral(field.DefaultTuning())
		s.Timestamp = base.Add(time.Duration(i) * time.Minute)
		s.ActiveCount = i + 1
		s.Recomputes = uint64(i + 1)
		if err := st.ArchiveFieldState(ctx, s); err != nil {
			t.Fatalf("ArchiveFieldState: %v", err)
		}
	}

	got, err := st.FieldStates(ctx, base.Add(time.Minute), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 states, got %d", len(got))
	}
	if got[0].ActiveCount != 3 || got[1].ActiveCount != 2 {
		t.Errorf("order = %d, %d", got[0].ActiveCount, got[1].ActiveCount)
	}
	if got[0].ElementalBalance != signal.Uniform() {
		t.Errorf("balance = %v", got[0].ElementalBalance)
	}
	if got[0].Recomputes != 3 {
		t.Errorf("recomputes = %d", got[0].Recomputes)
	}
}

func TestConcurrentArchive(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := samplePattern(fmt.Sprintf("c%d", i), pattern.RapidEvolution, base)
			if _, err := st.ArchivePatterns(ctx, []pattern.Pattern{p}); err != nil {
				t.Errorf("archive %d: %v", i, err)
			}
			if _, err := st.RecentPatterns(ctx, 5); err != nil {
				t.Errorf("read %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	counts, err := st.PatternTypeCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[pattern.RapidEvolution] != 8 {
		t.Errorf("count = %d, want 8", counts[pattern.RapidEvolution])
	}
}
