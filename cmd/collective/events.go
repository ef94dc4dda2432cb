package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/collective/internal/otel"
)

// maxEventLine bounds one JSONL line; events with large Extra maps fit.
const maxEventLine = 256 * 1024

var levelStyles = map[otel.Level]lipgloss.Style{
	otel.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	otel.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	otel.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	otel.LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
}

// eventFilter selects events by its non-empty fields.
type eventFilter struct {
	kind        string // prefix
	minLevel    otel.Level
	comp        string
	participant string
	patternType string
	session     string
}

func (f eventFilter) match(ev otel.Event) bool {
	switch {
	case f.kind != "" && !strings.HasPrefix(string(ev.Kind), f.kind):
	case f.minLevel != "" && ev.Level.Rank() < f.minLevel.Rank():
	case f.comp != "" && ev.Comp != f.comp:
	case f.participant != "" && ev.Participant != f.participant:
	case f.patternType != "" && ev.PatternType != f.patternType:
	case f.session != "" && ev.SessionID != f.session:
	default:
		return true
	}
	return false
}

// eventLine is a decoded event plus the bytes it came from.
type eventLine struct {
	ev  otel.Event
	raw []byte
}

func runEvents() {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Config file (default ~/.collective/config.json)")
	tail := fs.Int("tail", 50, "Number of recent matching events to show")
	follow := fs.Bool("f", false, "Keep printing events as they are appended")
	var ef eventFilter
	fs.StringVar(&ef.kind, "kind", "", "Event kind prefix (e.g. 'pattern')")
	level := fs.String("level", "", "Minimum level: debug, info, warn, error")
	fs.StringVar(&ef.comp, "comp", "", "Component name")
	fs.StringVar(&ef.participant, "participant", "", "Participant id")
	fs.StringVar(&ef.patternType, "pattern", "", "Pattern type (e.g. shadow_integration)")
	fs.StringVar(&ef.session, "session", "", "Session id")
	rawJSON := fs.Bool("json", false, "Print matching lines unmodified")
	fs.Parse(os.Args[1:])

	ef.minLevel = otel.Level(*level)
	if ef.minLevel != "" && !ef.minLevel.Valid() {
		fatalf("unknown level %q", *level)
	}

	path := eventLogPath(loadConfig(*cfgPath))
	f, err := os.Open(path)
	if err != nil {
		fatalf("%v\n  no event log at %s; run 'collective watch' or 'collective replay -events' first", err, path)
	}
	defer f.Close()

	show := func(l eventLine) {
		if *rawJSON {
			fmt.Println(string(l.raw))
			return
		}
		fmt.Println(formatEvent(l.ev))
	}

	er := newEventReader(f)
	for _, l := range er.tail(*tail, ef) {
		show(l)
	}
	if !*follow {
		return
	}
	for {
		l, err := er.next()
		switch {
		case errors.Is(err, io.EOF):
			time.Sleep(100 * time.Millisecond)
		case err != nil:
			fatalf("read %s: %v", path, err)
		case ef.match(l.ev):
			show(l)
		}
	}
}

// eventReader yields decodable events from a growing JSONL file. Blank and
// malformed lines are skipped. An unterminated trailing line is held until
// the rest of it arrives.
type eventReader struct {
	r       *bufio.Reader
	partial []byte
}

func newEventReader(r io.Reader) *eventReader {
	return &eventReader{r: bufio.NewReaderSize(r, 64*1024)}
}

func (er *eventReader) next() (eventLine, error) {
	for {
		chunk, err := er.r.ReadBytes('\n')
		er.partial = append(er.partial, chunk...)
		if err != nil {
			return eventLine{}, err
		}
		line := bytes.TrimRight(er.partial, "\r\n")
		er.partial = nil
		if len(line) == 0 || len(line) > maxEventLine {
			continue
		}
		var ev otel.Event
		if json.Unmarshal(line, &ev) != nil {
			continue
		}
		return eventLine{ev: ev, raw: line}, nil
	}
}

// tail reads to EOF and returns the last n events that match.
func (er *eventReader) tail(n int, ef eventFilter) []eventLine {
	var ring *otel.Ring[eventLine]
	if n > 0 {
		ring = otel.NewRing[eventLine](n)
	}
	for {
		l, err := er.next()
		if err != nil {
			break
		}
		if ring != nil && ef.match(l.ev) {
			ring.Push(l)
		}
	}
	if ring == nil {
		return nil
	}
	return ring.Snapshot()
}

// formatEvent renders one event as a single terminal line.
func formatEvent(ev otel.Event) string {
	lvl := strings.ToUpper(string(ev.Level))
	if lvl == "" {
		lvl = "?"
	}
	if st, ok := levelStyles[ev.Level]; ok {
		lvl = st.Render(fmt.Sprintf("%-5s", lvl))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s [%-7s] %-18s", ev.Time.Format("15:04:05.000"), lvl, ev.Comp, ev.Kind)
	add := func(s string) {
		b.WriteByte(' ')
		b.WriteString(s)
	}
	if ev.Msg != "" {
		add(ev.Msg)
	}
	if ev.DurMs > 0 {
		add(fmt.Sprintf("(%s)", formatMs(ev.DurMs)))
	}
	if ev.Count > 0 {
		add(fmt.Sprintf("n=%d", ev.Count))
	}
	if ev.Points > 0 {
		add(fmt.Sprintf("pts=%d", ev.Points))
	}
	if ev.Participant != "" {
		add("p=" + ev.Participant)
	}
	if ev.PatternType != "" {
		add("type=" + ev.PatternType)
	}
	if ev.Err != "" {
		add("err=" + ev.Err)
	}
	return b.String()
}

// formatMs prints fewer decimals as durations grow.
func formatMs(ms float64) string {
	switch {
	case ms >= 100:
		return fmt.Sprintf("%.0fms", ms)
	case ms >= 1:
		return fmt.Sprintf("%.1fms", ms)
	default:
		return fmt.Sprintf("%.2fms", ms)
	}
}
