package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/collective/internal/engine"
	"github.com/abelbrown/collective/internal/otel"
)

// debugPanelChrome is the lines DebugPanel spends on border and padding.
const debugPanelChrome = 4

// debugRecent is how many ring events the overlay lists.
const debugRecent = 20

// ringRow pairs two event kinds counted from the ring.
type ringRow struct {
	label      string
	kind, alt  otel.EventKind
	verb, altV string
}

var ringRows = []ringRow{
	{"Ingest", otel.KindIngestAccept, otel.KindIngestReject, "ok", "rejected"},
	{"Window", otel.KindBufferOverflow, otel.KindBufferEvict, "overflow", "evict"},
	{"Field", otel.KindFieldRecompute, otel.KindFieldSkip, "recompute", "skipped"},
	{"Patterns", otel.KindPatternDetect, otel.KindPatternMeta, "detected", "meta"},
	{"Archive", otel.KindArchiveWrite, otel.KindArchiveError, "written", "errors"},
}

// debugOverlay shows the engine's lifetime counters beside the event
// counts held in ring, then the most recent events. Empty when ring is nil.
func debugOverlay(ring *otel.RingBuffer, h engine.Health, width, height int, now time.Time) string {
	if ring == nil {
		return ""
	}

	counts := otel.Stats(ring)
	right := []string{DebugHeaderStyle.Render(fmt.Sprintf("Ring (%d/%d)", ring.Len(), ring.Cap()))}
	for _, r := range ringRows {
		right = append(right, fmt.Sprintf("%-9s %d %s, %d %s", r.label, counts[r.kind], r.verb, counts[r.alt], r.altV))
	}

	left := []string{
		DebugHeaderStyle.Render("Engine " + shortID(h.ID)),
		fmt.Sprintf("ingested  %d", h.Ingested),
		fmt.Sprintf("rejected  %d", h.Rejected),
		fmt.Sprintf("expired   %d", h.Expired),
		fmt.Sprintf("dropped   %d", h.Dropped),
		fmt.Sprintf("evicted   %d", h.Evicted),
		fmt.Sprintf("panics    %d", h.Panics),
	}
	if !h.LastRecompute.IsZero() {
		left = append(left, "recompute "+formatAge(now.Sub(h.LastRecompute))+" ago")
	}

	lines := []string{
		lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.NewStyle().Width(28).Render(strings.Join(left, "\n")),
			strings.Join(right, "\n")),
		"",
		DebugHeaderStyle.Render("Recent Events"),
	}
	lines = strings.Split(strings.Join(lines, "\n"), "\n")
	for _, e := range ring.Last(debugRecent) {
		lines = append(lines, eventSummary(e, now))
	}

	limit := max(height-debugPanelChrome, 1)
	if len(lines) > limit {
		lines = lines[:limit]
	}

	w := min(84, width-4)
	return DebugPanel.Width(max(w, 20)).Render(strings.Join(lines, "\n"))
}

// eventSummary renders one ring event as an overlay line.
func eventSummary(e otel.Event, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%7s  %-16s", formatAge(now.Sub(e.Time)), e.Kind)
	if e.Participant != "" {
		b.WriteString("  " + truncateRunes(e.Participant, 12))
	}
	if e.PatternType != "" {
		b.WriteString("  " + e.PatternType)
	}
	if e.PatternID != "" {
		b.WriteString("  #" + shortID(e.PatternID))
	}
	if e.Msg != "" {
		b.WriteString("  " + truncateRunes(e.Msg, 40))
	}
	if e.Err != "" {
		b.WriteString("  " + ErrorText.Render("! "+truncateRunes(e.Err, 30)))
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// debugStatusBar replaces the normal status bar while the overlay is open.
func debugStatusBar(width int) string {
	keys := StatusBarKey.Render("?") + StatusBarText.Render(":close")
	return StatusBar.Width(width).Render("  [DEBUG]  " + keys)
}
