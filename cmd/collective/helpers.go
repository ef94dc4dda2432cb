package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/abelbrown/collective/internal/config"
	"github.com/abelbrown/collective/internal/logging"
	"github.com/abelbrown/collective/internal/otel"
	"github.com/abelbrown/collective/internal/store"
)

// loadConfig loads the config at path (default location when empty) or fatals.
func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// initLogging routes human logs to the configured file or fatals.
func initLogging(cfg *config.Config) {
	if err := logging.Init(cfg.Log.Path, cfg.Log.Level); err != nil {
		log.Fatalf("failed to init logging: %v", err)
	}
}

// eventLogPath returns the JSONL event path, defaulting to
// ~/.collective/collective.events.jsonl.
func eventLogPath(cfg *config.Config) string {
	if cfg.Log.EventsPath != "" {
		return cfg.Log.EventsPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("failed to get home directory: %v", err)
	}
	return filepath.Join(home, ".collective", "collective.events.jsonl")
}

// openEvents opens the JSONL event log with an in-memory ring for the debug
// overlay. The returned close func flushes the logger and the file.
func openEvents(cfg *config.Config, ringSize int) (*otel.Logger, *otel.RingBuffer, func()) {
	path := eventLogPath(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Fatalf("failed to create event log directory: %v", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Fatalf("failed to open event log: %v", err)
	}
	events := otel.NewLogger(f)
	if err := events.SetLevel(otel.Level(cfg.Log.EventLevel)); err != nil {
		log.Fatalf("invalid event level: %v", err)
	}
	ring := otel.NewRingBuffer(ringSize)
	events.SetRingBuffer(ring)
	return events, ring, func() {
		events.Close()
		f.Close()
	}
}

// openArchive opens the archive store when enabled. Returns nil otherwise.
func openArchive(cfg *config.Config) *store.Store {
	if !cfg.Archive.Enabled {
		return nil
	}
	return openStore(cfg.Archive.Path)
}

// openStore opens the store at path or fatals.
func openStore(path string) *store.Store {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("failed to create archive directory: %v", err)
		}
	}
	st, err := store.Open(path)
	if err != nil {
		log.Fatalf("failed to open archive %s: %v", path, err)
	}
	return st
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
