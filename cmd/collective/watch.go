package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/collective/internal/coord"
	"github.com/abelbrown/collective/internal/engine"
	"github.com/abelbrown/collective/internal/logging"
	"github.com/abelbrown/collective/internal/ui"
)

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Config file (default ~/.collective/config.json)")
	participants := fs.Int("participants", 12, "Number of synthetic participants")
	perSec := fs.Float64("rate", 20, "Max interactions per second across participants (0 = unlimited)")
	every := fs.Duration("every", coord.DefaultInterval, "Interval between participant polls")
	seed := fs.Int64("seed", time.Now().UnixNano(), "Random seed for the synthetic participants")
	fs.Parse(os.Args[1:])

	if *participants < 1 {
		fatalf("-participants must be at least 1")
	}

	cfg := loadConfig(*cfgPath)
	initLogging(cfg)
	defer logging.Close()

	events, ring, closeEvents := openEvents(cfg, 512)
	defer closeEvents()

	opts := engine.OptionsFromConfig(cfg)
	opts.Events = events
	if st := openArchive(cfg); st != nil {
		defer st.Close()
		opts.Archive = st
	}

	e, err := engine.New(opts)
	if err != nil {
		fatalf("engine: %v", err)
	}
	defer e.Close()

	sources := make([]coord.Source, *participants)
	for i := range sources {
		sources[i] = coord.NewSynthetic(fmt.Sprintf("p%02d", i+1), *seed+int64(i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := ui.NewApp(ui.AppConfig{
		Source:            e,
		Ring:              ring,
		RecomputeInterval: opts.RecomputeInterval,
	})
	program := tea.NewProgram(app, tea.WithAltScreen())

	c := coord.New(e, sources, coord.Options{Interval: *every, Rate: *perSec, Burst: *participants})
	c.Start(ctx, program)

	// Run UI (blocks until quit)
	if _, err := program.Run(); err != nil {
		logging.Error("watch: program failed", "err", err)
	}

	cancel()
	c.Wait()
	st := c.Stats()
	logging.Info("watch: stopped", "cycles", st.Cycles, "ingested", st.Ingested, "failed", st.Failed)
}
