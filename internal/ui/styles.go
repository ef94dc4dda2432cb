package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/collective/internal/pattern"
	"github.com/abelbrown/collective/internal/signal"
)

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorWarn      = lipgloss.Color("214") // Orange
)

// TitleStyle renders the header line.
var TitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight).
	Padding(0, 1)

// SectionHeader style for panel labels ("Field", "Patterns").
var SectionHeader = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorPrimary).
	MarginTop(1).
	Padding(0, 1)

// MetricLabel style for the left column of the field panel.
var MetricLabel = lipgloss.NewStyle().
	Foreground(colorSecondary).
	Width(24)

// MetricValue style for the numeric column of the field panel.
var MetricValue = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255"))

// SelectedItem style for the highlighted pattern row.
var SelectedItem = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// NormalItem style for unselected pattern rows.
var NormalItem = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Padding(0, 1)

// MutedText style for secondary detail.
var MutedText = lipgloss.NewStyle().
	Foreground(colorMuted)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// StaleBadge marks a recompute loop that has stopped advancing.
var StaleBadge = lipgloss.NewStyle().
	Foreground(lipgloss.Color("0")).
	Background(colorWarn).
	Bold(true).
	Padding(0, 1)

// ErrorText marks error strings in the debug overlay.
var ErrorText = lipgloss.NewStyle().
	Foreground(lipgloss.Color("196"))

// DebugPanel frames the debug overlay.
var DebugPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(1, 2)

// DebugHeaderStyle for section headers inside the debug overlay.
var DebugHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight)

var elementColors = [signal.NumElements]lipgloss.Color{
	signal.Fire:   lipgloss.Color("203"),
	signal.Water:  lipgloss.Color("39"),
	signal.Earth:  lipgloss.Color("142"),
	signal.Air:    lipgloss.Color("153"),
	signal.Aether: lipgloss.Color("177"),
}

var patternColors = map[pattern.Type]lipgloss.Color{
	pattern.ShadowIntegration:      lipgloss.Color("97"),
	pattern.RapidEvolution:         lipgloss.Color("208"),
	pattern.ConsciousnessElevation: lipgloss.Color("45"),
	pattern.CoherenceBuilding:      lipgloss.Color("78"),
	pattern.ConsciousnessLeap:      lipgloss.Color("212"),
}

// patternBadge renders a pattern type in its palette color.
func patternBadge(t pattern.Type) string {
	c, ok := patternColors[t]
	if !ok {
		c = colorSecondary
	}
	return lipgloss.NewStyle().Foreground(c).Bold(true).Render(string(t))
}
