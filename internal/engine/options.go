package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/abelbrown/collective/internal/config"
	"github.com/abelbrown/collective/internal/field"
	"github.com/abelbrown/collective/internal/otel"
	"github.com/abelbrown/collective/internal/pattern"
	"github.com/abelbrown/collective/internal/signal"
	"github.com/abelbrown/collective/internal/window"
)

// Archiver receives finished patterns and field states. *store.Store
// satisfies it. Calls happen on the archive goroutine, never on the loop.
type Archiver interface {
	ArchivePatterns(ctx context.Context, ps []pattern.Pattern) (int, error)
	ArchiveFieldState(ctx context.Context, st field.State) error
}

// Options configures an Engine. Zero values select defaults, field by field
// inside Signal, Field and Pattern too.
type Options struct {
	WindowSize        time.Duration
	MaxPoints         int
	RecomputeInterval time.Duration
	InboxSize         int
	PatternRetention  time.Duration // how long detection passes stay queryable; 0 = WindowSize
	ArchiveQueue      int

	Signal  signal.Config
	Field   field.Tuning
	Pattern pattern.Tuning

	Clock   clock.Clock  // nil = wall clock
	Events  *otel.Logger // nil = discard
	Archive Archiver     // nil = no archive
}

const (
	defaultInterval     = 10 * time.Second
	defaultInboxSize    = 1024
	defaultArchiveQueue = 256
)

// DefaultOptions returns the calibrated defaults.
func DefaultOptions() Options {
	return Options{
		WindowSize:        window.DefaultSize,
		MaxPoints:         window.DefaultMaxPoints,
		RecomputeInterval: defaultInterval,
		InboxSize:         defaultInboxSize,
		ArchiveQueue:      defaultArchiveQueue,
		Signal:            signal.DefaultConfig(),
		Field:             field.DefaultTuning(),
		Pattern:           pattern.DefaultTuning(),
	}
}

// OptionsFromConfig maps a loaded configuration onto engine options. The
// caller still supplies Clock, Events and Archive.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		WindowSize:        cfg.Window.Size.D(),
		MaxPoints:         cfg.Window.MaxPoints,
		RecomputeInterval: cfg.Engine.RecomputeInterval.D(),
		InboxSize:         cfg.Engine.InboxSize,
		PatternRetention:  cfg.Engine.PatternRetention.D(),
		ArchiveQueue:      cfg.Archive.QueueSize,
		Signal:            cfg.Signal,
		Field:             cfg.Field,
		Pattern:           cfg.Pattern,
	}
}

func (o Options) withDefaults() (Options, error) {
	switch {
	case o.WindowSize < 0:
		return o, fmt.Errorf("negative window size %s", o.WindowSize)
	case o.RecomputeInterval < 0:
		return o, fmt.Errorf("negative recompute interval %s", o.RecomputeInterval)
	case o.MaxPoints < 0, o.InboxSize < 0, o.ArchiveQueue < 0:
		return o, fmt.Errorf("negative capacity in options")
	case o.PatternRetention < 0:
		return o, fmt.Errorf("negative pattern retention %s", o.PatternRetention)
	}
	d := DefaultOptions()
	if o.WindowSize == 0 {
		o.WindowSize = d.WindowSize
	}
	if o.MaxPoints == 0 {
		o.MaxPoints = d.MaxPoints
	}
	if o.RecomputeInterval == 0 {
		o.RecomputeInterval = d.RecomputeInterval
	}
	if o.InboxSize == 0 {
		o.InboxSize = d.InboxSize
	}
	if o.ArchiveQueue == 0 {
		o.ArchiveQueue = d.ArchiveQueue
	}
	if o.PatternRetention == 0 {
		o.PatternRetention = o.WindowSize
	}
	o.Signal = o.Signal.WithDefaults()
	o.Field = o.Field.WithDefaults()
	o.Pattern = o.Pattern.WithDefaults()
	if o.Signal.HistoryDepth < 1 {
		o.Signal.HistoryDepth = 1
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o, nil
}
