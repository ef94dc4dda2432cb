package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelbrown/collective/internal/otel"
)

func jsonl(t *testing.T, evs ...otel.Event) string {
	t.Helper()
	var b strings.Builder
	for _, ev := range evs {
		data, err := json.Marshal(ev)
		require.NoError(t, err)
		b.Write(data)
		b.WriteByte('\n')
	}
	return b.String()
}

func TestEventFilter(t *testing.T) {
	ev := otel.Event{
		Level:       otel.LevelWarn,
		Kind:        otel.KindPatternDetect,
		Comp:        "engine",
		Participant: "alice",
		PatternType: "shadow_integration",
		SessionID:   "s1",
	}
	cases := []struct {
		name string
		f    eventFilter
		want bool
	}{
		{"empty", eventFilter{}, true},
		{"kind prefix", eventFilter{kind: "pattern"}, true},
		{"other kind", eventFilter{kind: "ingest"}, false},
		{"level below", eventFilter{minLevel: otel.LevelInfo}, true},
		{"level above", eventFilter{minLevel: otel.LevelError}, false},
		{"comp", eventFilter{comp: "store"}, false},
		{"participant", eventFilter{participant: "alice"}, true},
		{"pattern", eventFilter{patternType: "breakthrough_cascade"}, false},
		{"session", eventFilter{session: "s2"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.f.match(ev))
		})
	}
}

func TestEventReaderTail(t *testing.T) {
	var evs []otel.Event
	for i := 0; i < 5; i++ {
		evs = append(evs, otel.Event{Kind: otel.KindIngestAccept, Count: i + 1})
	}
	input := jsonl(t, evs[:2]...) + "\n{broken\n" + jsonl(t, evs[2:]...)

	got := newEventReader(strings.NewReader(input)).tail(2, eventFilter{})
	require.Len(t, got, 2)
	assert.Equal(t, 4, got[0].ev.Count)
	assert.Equal(t, 5, got[1].ev.Count)
	assert.NotContains(t, string(got[1].raw), "\n")

	assert.Empty(t, newEventReader(strings.NewReader(input)).tail(0, eventFilter{}))
}

// growing serves whatever has been appended so far, then io.EOF.
type growing struct{ buf bytes.Buffer }

func (g *growing) Read(p []byte) (int, error) {
	if g.buf.Len() == 0 {
		return 0, io.EOF
	}
	return g.buf.Read(p)
}

func TestEventReaderHoldsPartialLine(t *testing.T) {
	line := jsonl(t, otel.Event{Kind: otel.KindStartup, Msg: "hello"})
	g := &growing{}
	er := newEventReader(g)

	g.buf.WriteString(line[:10])
	_, err := er.next()
	require.True(t, errors.Is(err, io.EOF))

	g.buf.WriteString(line[10:])
	l, err := er.next()
	require.NoError(t, err)
	assert.Equal(t, "hello", l.ev.Msg)
}

func TestFormatEvent(t *testing.T) {
	out := formatEvent(otel.Event{
		Time:        time.Date(2026, 5, 4, 20, 1, 2, 0, time.UTC),
		Level:       otel.LevelInfo,
		Kind:        otel.KindFieldRecompute,
		Comp:        "engine",
		DurMs:       12.5,
		Points:      40,
		Participant: "bob",
		Err:         "boom",
	})
	for _, want := range []string{"20:01:02.000", "INFO", "field.recompute", "(12.5ms)", "pts=40", "p=bob", "err=boom"} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, formatEvent(otel.Event{Kind: otel.KindStartup}), "?")
}

func TestFormatMs(t *testing.T) {
	assert.Equal(t, "250ms", formatMs(250))
	assert.Equal(t, "3.5ms", formatMs(3.5))
	assert.Equal(t, "0.25ms", formatMs(0.25))
}
