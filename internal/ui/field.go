package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/collective/internal/engine"
	"github.com/abelbrown/collective/internal/field"
	"github.com/abelbrown/collective/internal/pattern"
	"github.com/abelbrown/collective/internal/signal"
)

// metricsOrder is the row order of the field panel.
var metricsOrder = []struct {
	label string
	get   func(field.State) float64
}{
	{"awareness", func(s field.State) float64 { return s.AverageAwareness }},
	{"coherence", func(s field.State) float64 { return s.Coherence }},
	{"complexity", func(s field.State) float64 { return s.Complexity }},
	{"healing capacity", func(s field.State) float64 { return s.HealingCapacity }},
	{"growth rate", func(s field.State) float64 { return s.GrowthRate }},
	{"breakthrough potential", func(s field.State) float64 { return s.BreakthroughPotential }},
	{"integration need", func(s field.State) float64 { return s.IntegrationNeed }},
}

// newBar builds the bar model shared by every field row.
func newBar() progress.Model {
	return progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
}

// RenderField renders one row per field metric plus the elemental balance.
// bar is copied, so its width can be set per call.
func RenderField(st field.State, bar progress.Model, width int) string {
	barWidth := width - MetricLabel.GetWidth() - 10
	if barWidth > 40 {
		barWidth = 40
	}
	if barWidth < 5 {
		barWidth = 5
	}
	bar.Width = barWidth

	var lines []string
	for _, m := range metricsOrder {
		v := m.get(st)
		lines = append(lines, MetricLabel.Render(" "+m.label)+bar.ViewAs(v)+" "+MetricValue.Render(fmt.Sprintf("%.2f", v)))
	}
	lines = append(lines, MetricLabel.Render(" elements")+renderBalance(st.ElementalBalance))
	if len(st.DominantArchetypes) > 0 {
		lines = append(lines, MetricLabel.Render(" dominant")+MutedText.Render(topArchetypes(st.DominantArchetypes, 3)))
	}
	if len(st.ShadowArchetypes) > 0 {
		lines = append(lines, MetricLabel.Render(" shadow")+MutedText.Render(topArchetypes(st.ShadowArchetypes, 3)))
	}
	return strings.Join(lines, "\n")
}

func renderBalance(sig signal.Signature) string {
	parts := make([]string, 0, signal.NumElements)
	for _, e := range signal.Elements {
		style := lipgloss.NewStyle().Foreground(elementColors[e])
		parts = append(parts, style.Render(fmt.Sprintf("%s %2.0f%%", e, sig[e]*100)))
	}
	return strings.Join(parts, "  ")
}

// topArchetypes formats the n strongest entries, strongest first, ties by name.
func topArchetypes(m map[string]float64, n int) string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		if m[names[i]] == m[names[j]] {
			return names[i] < names[j]
		}
		return m[names[i]] > m[names[j]]
	})
	if len(names) > n {
		names = names[:n]
	}
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = fmt.Sprintf("%s %.2f", k, m[k])
	}
	return strings.Join(parts, ", ")
}

// RenderPatterns renders the active pattern list, keeping the cursor row
// visible within height lines.
func RenderPatterns(ps []pattern.Pattern, cursor, width, height int) string {
	if len(ps) == 0 {
		return MutedText.Render("  no active patterns")
	}
	if height < 1 {
		height = 1
	}
	offset := 0
	if cursor >= height {
		offset = cursor - height + 1
	}
	end := offset + height
	if end > len(ps) {
		end = len(ps)
	}

	var lines []string
	for i := offset; i < end; i++ {
		lines = append(lines, renderPatternLine(ps[i], i == cursor, width))
	}
	return strings.Join(lines, "\n")
}

func renderPatternLine(p pattern.Pattern, selected bool, width int) string {
	text := fmt.Sprintf("%-24s str %.2f  imp %.2f  %2d participants", string(p.Type), p.Strength, p.Impact, len(p.ParticipantIDs))
	if p.IsMeta() {
		text += fmt.Sprintf("  (%d sources)", len(p.Sources))
	}
	text = truncateRunes(text, width-2)
	if selected {
		return SelectedItem.Render(text)
	}
	// Colorize only the type column so padding stays aligned.
	typ := string(p.Type)
	return NormalItem.Render(patternBadge(p.Type) + strings.TrimPrefix(text, typ))
}

// RenderPatternDetail renders the notes of the selected pattern.
func RenderPatternDetail(p pattern.Pattern, width int) string {
	lines := []string{
		"  " + truncateRunes(p.ProgressionNote, width-4),
		"  " + truncateRunes(p.TimingNote, width-4),
	}
	if len(p.SupportNeeds) > 0 {
		lines = append(lines, "  needs: "+truncateRunes(strings.Join(p.SupportNeeds, ", "), width-11))
	}
	lines = append(lines, "  "+truncateRunes(strings.Join(p.ParticipantIDs, " "), width-4))
	return MutedText.Render(strings.Join(lines, "\n"))
}

// RenderLedger renders a single line summarizing the ledger.
func RenderLedger(entries []pattern.LedgerEntry, width int) string {
	if len(entries) == 0 {
		return MutedText.Render("  ledger empty")
	}
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%s x%d (%.2f)", e.Type, e.Occurrences, e.AverageStrength)
	}
	return MutedText.Render("  " + truncateRunes(strings.Join(parts, "  "), width-4))
}

// RenderStatusBar renders health counters on the left and key hints on the
// right. A stale recompute loop gets a badge.
func RenderStatusBar(h engine.Health, stale, pulse bool, width int) string {
	left := fmt.Sprintf(" %d pts  %d in  %d rej  %d drop  %d recomputes ",
		h.BufferLen, h.Ingested, h.Rejected, h.Dropped, h.Recomputes)
	if pulse {
		left = "LIVE" + left
	}
	if stale {
		left = StaleBadge.Render("STALE") + left
	}

	keys := []string{
		StatusBarKey.Render("j/k") + StatusBarText.Render(":nav"),
		StatusBarKey.Render("p") + StatusBarText.Render(":pulse"),
		StatusBarKey.Render("r") + StatusBarText.Render(":refresh"),
		StatusBarKey.Render("?") + StatusBarText.Render(":debug"),
		StatusBarKey.Render("q") + StatusBarText.Render(":quit"),
	}
	keyHints := strings.Join(keys, " ")

	padding := width - lipgloss.Width(left) - lipgloss.Width(keyHints)
	if padding < 0 {
		padding = 0
	}
	bar := left + strings.Repeat(" ", padding) + keyHints
	return StatusBar.Width(width).Render(bar)
}

// formatAge formats a duration as a compact human string.
// Negative durations from clock skew clamp to "0ms".
func formatAge(d time.Duration) string {
	if d < 0 {
		return "0ms"
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
}

// truncateRunes cuts s to at most n runes, marking the cut with "…".
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
