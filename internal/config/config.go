// Package config loads the engine configuration from
// ~/.collective/config.json with environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/abelbrown/collective/internal/field"
	"github.com/abelbrown/collective/internal/pattern"
	"github.com/abelbrown/collective/internal/signal"
)

// Config is the persistent engine configuration. Every tuning constant of
// the extractor, aggregator and detector lives here.
type Config struct {
	Window  WindowConfig  `json:"window"`
	Engine  EngineConfig  `json:"engine"`
	Archive ArchiveConfig `json:"archive"`
	Log     LogConfig     `json:"log"`

	Signal  signal.Config  `json:"signal"`
	Field   field.Tuning   `json:"field"`
	Pattern pattern.Tuning `json:"pattern"`
}

// WindowConfig sizes the rolling buffer.
type WindowConfig struct {
	Size      Duration `json:"size"`
	MaxPoints int      `json:"max_points"` // hard cap, oldest dropped first
}

// EngineConfig controls the engine loop.
type EngineConfig struct {
	RecomputeInterval Duration `json:"recompute_interval"`
	InboxSize         int      `json:"inbox_size"`
	PatternRetention  Duration `json:"pattern_retention"` // 0 = window size
}

// ArchiveConfig controls the optional sqlite archive sink.
type ArchiveConfig struct {
	Enabled   bool   `json:"enabled"`
	Path      string `json:"path"`
	QueueSize int    `json:"queue_size"`
}

// LogConfig controls human logs and the JSONL event stream.
type LogConfig struct {
	Path       string `json:"path,omitempty"` // empty = dated file under ~/.collective/logs
	Level      string `json:"level"`
	EventsPath string `json:"events_path,omitempty"` // empty = ~/.collective/collective.events.jsonl
	EventLevel string `json:"event_level,omitempty"` // floor for JSONL events, empty = debug
}

// Duration is a time.Duration that serializes as a Go duration string.
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "90s"-style strings or integer nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("duration must be a string or integer: %s", b)
		}
		*d = Duration(n)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Window: WindowConfig{
			Size:      Duration(5 * time.Minute),
			MaxPoints: 10000,
		},
		Engine: EngineConfig{
			RecomputeInterval: Duration(10 * time.Second),
			InboxSize:         1024,
		},
		Archive: ArchiveConfig{
			Enabled:   false,
			Path:      filepath.Join(home, ".collective", "archive.db"),
			QueueSize: 256,
		},
		Log: LogConfig{
			Level: "info",
		},
		Signal:  signal.DefaultConfig(),
		Field:   field.DefaultTuning(),
		Pattern: pattern.DefaultTuning(),
	}
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".collective", "config.json")
}

// Load reads config from path (ConfigPath when empty), applies environment
// overrides and validates the result. A missing file yields defaults. Keys
// absent from the file keep their default values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to path (ConfigPath when empty).
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides fields from COLLECTIVE_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("COLLECTIVE_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("COLLECTIVE_WINDOW: %w", err)
		}
		c.Window.Size = Duration(d)
	}
	if v := os.Getenv("COLLECTIVE_RECOMPUTE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("COLLECTIVE_RECOMPUTE_INTERVAL: %w", err)
		}
		c.Engine.RecomputeInterval = Duration(d)
	}
	if v := os.Getenv("COLLECTIVE_MAX_POINTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("COLLECTIVE_MAX_POINTS: %w", err)
		}
		c.Window.MaxPoints = n
	}
	if v := os.Getenv("COLLECTIVE_MIN_PARTICIPANTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("COLLECTIVE_MIN_PARTICIPANTS: %w", err)
		}
		c.Pattern.MinParticipants = n
	}
	if v := os.Getenv("COLLECTIVE_ARCHIVE"); v != "" {
		c.Archive.Enabled = true
		c.Archive.Path = v
	}
	return nil
}

// Validate reports the first out-of-range setting.
func (c *Config) Validate() error {
	switch {
	case c.Window.Size <= 0:
		return fmt.Errorf("window.size must be positive, got %s", c.Window.Size)
	case c.Window.MaxPoints <= 0:
		return fmt.Errorf("window.max_points must be positive, got %d", c.Window.MaxPoints)
	case c.Engine.RecomputeInterval <= 0:
		return fmt.Errorf("engine.recompute_interval must be positive, got %s", c.Engine.RecomputeInterval)
	case c.Engine.InboxSize <= 0:
		return fmt.Errorf("engine.inbox_size must be positive, got %d", c.Engine.InboxSize)
	case c.Engine.PatternRetention < 0:
		return fmt.Errorf("engine.pattern_retention must not be negative, got %s", c.Engine.PatternRetention)
	case c.Archive.Enabled && c.Archive.Path == "":
		return errors.New("archive.path is required when the archive is enabled")
	case c.Signal.HistoryDepth < 1:
		return fmt.Errorf("signal.history_depth must be at least 1, got %d", c.Signal.HistoryDepth)
	case c.Pattern.MinParticipants < 1:
		return fmt.Errorf("pattern.min_participants must be at least 1, got %d", c.Pattern.MinParticipants)
	case !unit(c.Pattern.SimilarityThreshold):
		return fmt.Errorf("pattern.similarity_threshold must be in [0,1], got %v", c.Pattern.SimilarityThreshold)
	case c.Field.Alpha <= 0 || c.Field.Alpha > 1:
		return fmt.Errorf("field.alpha must be in (0,1], got %v", c.Field.Alpha)
	}
	return nil
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}
