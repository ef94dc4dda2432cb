package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/collective/internal/engine"
	"github.com/abelbrown/collective/internal/field"
	"github.com/abelbrown/collective/internal/otel"
	"github.com/abelbrown/collective/internal/pattern"
)

// Source is the read side of the engine the monitor polls.
// *engine.Engine satisfies it.
type Source interface {
	CurrentFieldState() field.State
	Pulse() field.State
	ActivePatterns(timeframe time.Duration) []pattern.Pattern
	Ledger(timeframe time.Duration) []pattern.LedgerEntry
	Health() engine.Health
}

// AppConfig wires the monitor.
type AppConfig struct {
	Source Source
	Ring   *otel.RingBuffer // debug overlay; nil hides it

	// Refresh is the poll cadence. Zero means one second.
	Refresh time.Duration
	// Timeframe is the pattern lookback. Zero means the engine window.
	Timeframe time.Duration
	// RecomputeInterval drives the stale badge. Zero disables it.
	RecomputeInterval time.Duration

	Now func() time.Time
}

type keyMap struct {
	Quit    key.Binding
	Down    key.Binding
	Up      key.Binding
	Pulse   key.Binding
	Refresh key.Binding
	Debug   key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Down:    key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j", "next pattern")),
		Up:      key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k", "prev pattern")),
		Pulse:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "toggle live pulse")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Debug:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "debug")),
	}
}

// App is the root Bubble Tea model.
// App does NOT hold the engine's internals. It receives reads via messages.
type App struct {
	src       Source
	ring      *otel.RingBuffer
	refresh   time.Duration
	timeframe time.Duration
	interval  time.Duration
	now       func() time.Time

	keys    keyMap
	spinner spinner.Model
	bar     progress.Model

	state    field.State
	pulse    field.State
	patterns []pattern.Pattern
	ledger   []pattern.LedgerEntry
	health   engine.Health
	loaded   bool

	cursor       int
	showPulse    bool
	debugVisible bool
	width        int
	height       int
	ready        bool
}

// NewApp creates the monitor.
func NewApp(cfg AppConfig) App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorHighlight)

	if cfg.Refresh <= 0 {
		cfg.Refresh = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return App{
		src:       cfg.Source,
		ring:      cfg.Ring,
		refresh:   cfg.Refresh,
		timeframe: cfg.Timeframe,
		interval:  cfg.RecomputeInterval,
		now:       cfg.Now,
		keys:      defaultKeys(),
		spinner:   s,
		bar:       newBar(),
	}
}

// Init starts polling and the spinner.
func (a App) Init() tea.Cmd {
	return tea.Batch(a.read(), a.tick(), a.spinner.Tick)
}

// read returns a Cmd that queries the source off the UI goroutine.
func (a App) read() tea.Cmd {
	src, tf := a.src, a.timeframe
	if src == nil {
		return nil
	}
	return func() tea.Msg {
		return FieldRefreshed{
			State:    src.CurrentFieldState(),
			Pulse:    src.Pulse(),
			Patterns: src.ActivePatterns(tf),
			Ledger:   src.Ledger(tf),
			Health:   src.Health(),
		}
	}
}

func (a App) tick() tea.Cmd {
	return tea.Tick(a.refresh, func(t time.Time) tea.Msg {
		return RefreshTick{At: t}
	})
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		return a, nil

	case RefreshTick:
		return a, tea.Batch(a.read(), a.tick())

	case FieldRefreshed:
		a.state = msg.State
		a.pulse = msg.Pulse
		a.patterns = msg.Patterns
		a.ledger = msg.Ledger
		a.health = msg.Health
		a.loaded = true
		if a.cursor >= len(a.patterns) {
			a.cursor = len(a.patterns) - 1
		}
		if a.cursor < 0 {
			a.cursor = 0
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, a.keys.Debug):
		if a.ring != nil {
			a.debugVisible = !a.debugVisible
		}
		return a, nil

	case key.Matches(msg, a.keys.Pulse):
		a.showPulse = !a.showPulse
		return a, nil

	case key.Matches(msg, a.keys.Refresh):
		return a, a.read()

	case key.Matches(msg, a.keys.Down):
		if a.cursor < len(a.patterns)-1 {
			a.cursor++
		}
		return a, nil

	case key.Matches(msg, a.keys.Up):
		if a.cursor > 0 {
			a.cursor--
		}
		return a, nil
	}
	return a, nil
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Starting..."
	}

	now := a.now()
	stale := a.interval > 0 && a.loaded && a.health.Stale(now, a.interval)
	if a.debugVisible {
		return debugOverlay(a.ring, a.health, a.width, a.height-1, now) + "\n" + debugStatusBar(a.width)
	}

	st := a.state
	label := "settled"
	if a.showPulse {
		st = a.pulse
		label = "pulse"
	}

	var b strings.Builder
	header := fmt.Sprintf("COLLECTIVE FIELD %s", a.spinner.View())
	b.WriteString(TitleStyle.Render(header))
	b.WriteString(MutedText.Render(fmt.Sprintf("  %d participants  %d active  [%s]",
		st.TotalParticipants, st.ActiveCount, label)))
	b.WriteString("\n")

	b.WriteString(SectionHeader.Render("Field"))
	b.WriteString("\n")
	fieldView := RenderField(st, a.bar, a.width)
	b.WriteString(fieldView)
	b.WriteString("\n")

	b.WriteString(SectionHeader.Render(fmt.Sprintf("Patterns (%d)", len(a.patterns))))
	b.WriteString("\n")

	// Header, two section headers with margins, ledger, detail and status bar.
	used := 1 + lipgloss.Height(fieldView) + 4 + 1 + 1
	var detail string
	if a.cursor < len(a.patterns) {
		detail = RenderPatternDetail(a.patterns[a.cursor], a.width)
		used += lipgloss.Height(detail)
	}
	listHeight := a.height - used
	b.WriteString(RenderPatterns(a.patterns, a.cursor, a.width, listHeight))
	b.WriteString("\n")
	if detail != "" {
		b.WriteString(detail)
		b.WriteString("\n")
	}
	b.WriteString(RenderLedger(a.ledger, a.width))
	b.WriteString("\n")

	b.WriteString(RenderStatusBar(a.health, stale, a.showPulse, a.width))
	return b.String()
}

// Cursor returns the selected pattern row (for testing).
func (a App) Cursor() int {
	return a.cursor
}

// Patterns returns the current pattern list (for testing).
func (a App) Patterns() []pattern.Pattern {
	return a.patterns
}
