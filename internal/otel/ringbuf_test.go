package otel

import (
	"maps"
	"slices"
	"sync"
	"testing"
)

func TestSnapshotOrder(t *testing.T) {
	for _, tc := range []struct {
		size, pushed int
		want         []int
	}{
		{size: 8, pushed: 0, want: nil},
		{size: 8, pushed: 5, want: []int{0, 1, 2, 3, 4}},
		{size: 4, pushed: 4, want: []int{0, 1, 2, 3}},
		{size: 4, pushed: 9, want: []int{5, 6, 7, 8}},
	} {
		r := NewRing[int](tc.size)
		for i := 0; i < tc.pushed; i++ {
			r.Push(i)
		}
		got := r.Snapshot()
		if !slices.Equal(got, tc.want) {
			t.Errorf("size %d after %d pushes: Snapshot() = %v, want %v", tc.size, tc.pushed, got, tc.want)
		}
		if r.Len() != len(tc.want) {
			t.Errorf("size %d after %d pushes: Len() = %d, want %d", tc.size, tc.pushed, r.Len(), len(tc.want))
		}
	}
}

func TestLast(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		pushed int
		n      int
		want   []int
	}{
		{"tail of full ring", 8, 8, 3, []int{5, 6, 7}},
		{"more than count", 8, 2, 100, []int{0, 1}},
		{"wrapped", 4, 6, 2, []int{4, 5}},
		{"wrapped across seam", 4, 6, 4, []int{2, 3, 4, 5}},
		{"zero", 8, 3, 0, nil},
		{"negative", 8, 3, -1, nil},
		{"empty", 8, 0, 3, nil},
	}
	for _, tt := range tests {
		r := NewRing[int](tt.size)
		for i := 0; i < tt.pushed; i++ {
			r.Push(i)
		}
		if got := r.Last(tt.n); !slices.Equal(got, tt.want) {
			t.Errorf("%s: Last(%d) = %v, want %v", tt.name, tt.n, got, tt.want)
		}
	}
}

func TestStatsByKind(t *testing.T) {
	r := NewRingBuffer(16)
	want := map[EventKind]int{KindIngestAccept: 2, KindFieldRecompute: 1, KindIngestReject: 3}
	for kind, n := range want {
		for i := 0; i < n; i++ {
			r.Push(Event{Kind: kind})
		}
	}
	if got := Stats(r); !maps.Equal(got, want) {
		t.Errorf("Stats() = %v, want %v", got, want)
	}
}

func TestConcurrentPushSnapshot(t *testing.T) {
	r := NewRingBuffer(256)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Push(Event{Kind: KindIngestAccept})
			}
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = r.Snapshot()
				_ = r.Last(10)
				_ = Stats(r)
			}
		}()
	}
	wg.Wait()

	if r.Len() != 256 {
		t.Errorf("Len() = %d, want 256", r.Len())
	}
}

func TestDeepCopyExtra(t *testing.T) {
	r := NewRingBuffer(4)
	extra := map[string]any{"key": "original"}
	r.Push(Event{Kind: KindStartup, Extra: extra})

	extra["key"] = "mutated"

	snap := r.Snapshot()
	if snap[0].Extra["key"] != "original" {
		t.Errorf("extra was aliased: got %v, want 'original'", snap[0].Extra["key"])
	}
}

func TestCap(t *testing.T) {
	if r := NewRingBuffer(64); r.Cap() != 64 {
		t.Errorf("Cap() = %d, want 64", r.Cap())
	}
	if r := NewRing[string](0); r.Cap() != DefaultRingSize {
		t.Errorf("Cap() = %d, want %d", r.Cap(), DefaultRingSize)
	}
}
