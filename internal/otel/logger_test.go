package otel

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// decodeLines parses every JSONL line written to buf.
func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for i, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("line %d is not JSON: %v: %s", i, err, line)
		}
		out = append(out, m)
	}
	return out
}

func TestEmitFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	l.Emit(Event{Kind: KindIngestAccept, Level: LevelInfo, Comp: "engine", Participant: "p1"})
	l.Close()

	got := decodeLines(t, &buf)
	if len(got) != 1 {
		t.Fatalf("lines = %d, want 1", len(got))
	}
	want := map[string]string{
		"kind":        "ingest.accept",
		"level":       "info",
		"comp":        "engine",
		"participant": "p1",
		"session_id":  l.SessionID(),
	}
	for k, v := range want {
		if got[0][k] != v {
			t.Errorf("%s = %v, want %q", k, got[0][k], v)
		}
	}
}

func TestEmitStampsTime(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	before := time.Now()
	l.Emit(Event{Kind: KindStartup})
	l.Close()
	after := time.Now()

	var ev Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Time.Before(before) || ev.Time.After(after) {
		t.Errorf("time %v outside [%v, %v]", ev.Time, before, after)
	}
	if _, err := uuid.Parse(ev.SessionID); err != nil {
		t.Errorf("session_id %q is not a uuid: %v", ev.SessionID, err)
	}
}

func TestEmitKeepsExplicitTime(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l.Emit(Event{Kind: KindStartup, Time: at})
	l.Close()

	var ev Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !ev.Time.Equal(at) {
		t.Errorf("time = %v, want %v", ev.Time, at)
	}
}

func TestDurationInMilliseconds(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	l.Emit(Event{Kind: KindFieldRecompute, Dur: 2250 * time.Millisecond})
	l.Close()

	got := decodeLines(t, &buf)
	if ms, _ := got[0]["dur_ms"].(float64); ms != 2250 {
		t.Errorf("dur_ms = %v, want 2250", got[0]["dur_ms"])
	}
}

func TestZeroFieldsOmitted(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	l.Emit(Event{Kind: KindStartup})
	l.Close()

	got := decodeLines(t, &buf)[0]
	for _, k := range []string{"dur_ms", "count", "points", "participant", "pattern_id", "pattern_type", "err", "msg", "extra"} {
		if _, ok := got[k]; ok {
			t.Errorf("%q should be omitted", k)
		}
	}
}

func TestConcurrentEmitters(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	const writers, each = 10, 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				l.Emit(Event{Kind: KindIngestAccept, Comp: "test"})
			}
		}()
	}
	wg.Wait()
	l.Close()

	got := decodeLines(t, &buf)
	if len(got) != writers*each {
		t.Errorf("lines = %d, want %d", len(got), writers*each)
	}
	sid := l.SessionID()
	for i, m := range got {
		if m["session_id"] != sid {
			t.Errorf("line %d session_id = %v, want %q", i, m["session_id"], sid)
		}
	}
}

func TestCloseFlushesAndIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	l.Log(LevelInfo, KindStartup, "main", "start")
	l.Log(LevelInfo, KindShutdown, "main", "stop")
	l.Close()
	l.Close()

	got := decodeLines(t, &buf)
	if len(got) != 2 {
		t.Fatalf("lines = %d, want 2", len(got))
	}
	if got[0]["msg"] != "start" || got[1]["msg"] != "stop" {
		t.Errorf("messages out of order: %v, %v", got[0]["msg"], got[1]["msg"])
	}

	null := NewNullLogger()
	null.Emit(Event{Kind: KindStartup})
	null.Close()
	if null.Dropped() != 0 {
		t.Errorf("null logger dropped %d", null.Dropped())
	}
}

// stallWriter blocks its first Write until release is closed.
type stallWriter struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (w *stallWriter) Write(p []byte) (int, error) {
	w.once.Do(func() {
		close(w.entered)
		<-w.release
	})
	return len(p), nil
}

func TestFullChannelDrops(t *testing.T) {
	w := &stallWriter{entered: make(chan struct{}), release: make(chan struct{})}
	l := NewLogger(w)

	// The first event is flushed at once and stalls the drain goroutine.
	l.Emit(Event{Kind: KindIngestAccept})
	<-w.entered

	for i := 0; i < writerChanSize+10; i++ {
		l.Emit(Event{Kind: KindIngestAccept})
	}
	if l.Dropped() < 10 {
		t.Errorf("Dropped() = %d, want at least 10", l.Dropped())
	}

	close(w.release)
	l.Close()
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteErrorsCountAsDrops(t *testing.T) {
	l := NewLogger(failWriter{})
	for i := 0; i < 3; i++ {
		l.Emit(Event{Kind: KindIngestAccept})
	}
	l.Close()
	if l.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", l.Dropped())
	}
}

func TestEmitAfterCloseDrops(t *testing.T) {
	l := NewNullLogger()
	l.Close()
	l.Emit(Event{Kind: KindIngestAccept})
	if l.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", l.Dropped())
	}
}

func TestSetLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	if err := l.SetLevel(LevelWarn); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	if err := l.SetLevel("loud"); err == nil {
		t.Error("unknown level should be rejected")
	}

	l.Log(LevelDebug, KindIngestAccept, "engine", "point")
	l.Log(LevelInfo, KindStartup, "main", "starting")
	l.Log(LevelWarn, KindBufferOverflow, "engine", "buffer full")
	l.Error(KindArchiveError, "archive", errors.New("locked"))
	l.Close()

	got := decodeLines(t, &buf)
	if len(got) != 2 {
		t.Fatalf("lines = %d, want 2", len(got))
	}
	if got[0]["level"] != "warn" || got[1]["level"] != "error" {
		t.Errorf("levels = %v, %v", got[0]["level"], got[1]["level"])
	}
	if got[1]["err"] != "locked" {
		t.Errorf("err = %v, want locked", got[1]["err"])
	}
	if l.Filtered() != 2 {
		t.Errorf("Filtered() = %d, want 2", l.Filtered())
	}
	if l.Dropped() != 0 {
		t.Errorf("filtered events counted as drops: %d", l.Dropped())
	}
}

func TestErrorWithNil(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	l.Error(KindArchiveError, "archive", nil)
	l.Close()

	got := decodeLines(t, &buf)
	if got[0]["level"] != "error" {
		t.Errorf("level = %v, want error", got[0]["level"])
	}
	if _, ok := got[0]["err"]; ok {
		t.Error("nil error should leave err empty")
	}
}

func TestSetClockStampsEvents(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	mock := clock.NewMock()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.Set(at)
	l.SetClock(mock)
	l.SetClock(nil)

	l.Emit(Event{Kind: KindStartup})
	l.Close()

	var ev Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !ev.Time.Equal(at) {
		t.Errorf("time = %v, want %v", ev.Time, at)
	}
}

func TestRingReceivesDurations(t *testing.T) {
	l := NewNullLogger()
	rb := NewRingBuffer(4)
	l.SetRingBuffer(rb)
	l.Emit(Event{Kind: KindFieldRecompute, Dur: 40 * time.Millisecond})
	l.Close()

	snap := rb.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("ring len = %d, want 1", len(snap))
	}
	if snap[0].Dur != 40*time.Millisecond {
		t.Errorf("ring Dur = %v, want 40ms", snap[0].Dur)
	}
}
