package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Window.Size.D() != 5*time.Minute {
		t.Errorf("window = %s, want 5m", cfg.Window.Size)
	}
	if cfg.Engine.RecomputeInterval.D() != 10*time.Second {
		t.Errorf("interval = %s, want 10s", cfg.Engine.RecomputeInterval)
	}
	if cfg.Pattern.MinParticipants != 3 {
		t.Errorf("min participants = %d, want 3", cfg.Pattern.MinParticipants)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Window.MaxPoints != 10000 {
		t.Errorf("max points = %d", cfg.Window.MaxPoints)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"window": {"size": "90s"}, "pattern": {"min_participants": 4}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Window.Size.D() != 90*time.Second {
		t.Errorf("window = %s, want 90s", cfg.Window.Size)
	}
	if cfg.Pattern.MinParticipants != 4 {
		t.Errorf("min participants = %d, want 4", cfg.Pattern.MinParticipants)
	}
	if cfg.Window.MaxPoints != 10000 {
		t.Errorf("max points lost default: %d", cfg.Window.MaxPoints)
	}
	if cfg.Pattern.SimilarityThreshold != 0.7 {
		t.Errorf("similarity threshold lost default: %v", cfg.Pattern.SimilarityThreshold)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	tests := []struct {
		name, body, want string
	}{
		{"malformed json", `{"window":`, "parse config"},
		{"bad duration", `{"window": {"size": "soon"}}`, "invalid duration"},
		{"zero window", `{"window": {"size": "0s"}}`, "window.size"},
		{"threshold range", `{"pattern": {"similarity_threshold": 1.5}}`, "similarity_threshold"},
	}
	for _, tt := range tests {
		path := filepath.Join(t.TempDir(), "config.json")
		if err := os.WriteFile(path, []byte(tt.body), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := Load(path)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: err = %v, want mention of %q", tt.name, err, tt.want)
		}
	}
}

func TestSaveRoundTripsDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := DefaultConfig()
	cfg.Engine.RecomputeInterval = Duration(2500 * time.Millisecond)
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"recompute_interval": "2.5s"`) {
		t.Errorf("duration not written as string:\n%s", raw)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Engine.RecomputeInterval != cfg.Engine.RecomputeInterval {
		t.Errorf("interval = %s, want %s", got.Engine.RecomputeInterval, cfg.Engine.RecomputeInterval)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("COLLECTIVE_WINDOW", "2m")
	t.Setenv("COLLECTIVE_RECOMPUTE_INTERVAL", "1s")
	t.Setenv("COLLECTIVE_MAX_POINTS", "50")
	t.Setenv("COLLECTIVE_MIN_PARTICIPANTS", "2")
	t.Setenv("COLLECTIVE_ARCHIVE", "/tmp/collective.db")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Window.Size.D() != 2*time.Minute ||
		cfg.Engine.RecomputeInterval.D() != time.Second ||
		cfg.Window.MaxPoints != 50 ||
		cfg.Pattern.MinParticipants != 2 {
		t.Errorf("env not applied: %+v", cfg)
	}
	if !cfg.Archive.Enabled || cfg.Archive.Path != "/tmp/collective.db" {
		t.Errorf("archive = %+v", cfg.Archive)
	}
}

func TestApplyEnvBadValue(t *testing.T) {
	t.Setenv("COLLECTIVE_MAX_POINTS", "lots")
	if err := DefaultConfig().ApplyEnv(); err == nil {
		t.Error("expected error for non-numeric COLLECTIVE_MAX_POINTS")
	}
}

func TestDurationAcceptsNanoseconds(t *testing.T) {
	var d Duration
	if err := d.UnmarshalJSON([]byte("1000000000")); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if d.D() != time.Second {
		t.Errorf("d = %s, want 1s", d)
	}
}
