package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/abelbrown/collective/internal/engine"
	"github.com/abelbrown/collective/internal/logging"
	"github.com/abelbrown/collective/internal/otel"
	"github.com/abelbrown/collective/internal/replay"
	sig "github.com/abelbrown/collective/internal/signal"
)

func runReplay() {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Config file (default ~/.collective/config.json)")
	rawJSON := fs.Bool("json", false, "Print the result as JSON")
	withEvents := fs.Bool("events", false, "Append engine events to the JSONL event log")
	trace := fs.Bool("trace", false, "With -events, log every accepted interaction")
	fs.Parse(os.Args[1:])

	if fs.NArg() != 1 {
		fatalf("usage: collective replay [-config path] [-json] [-events [-trace]] <file.jsonl>")
	}
	in, err := os.Open(fs.Arg(0))
	if err != nil {
		fatalf("%v", err)
	}
	defer in.Close()

	cfg := loadConfig(*cfgPath)
	initLogging(cfg)
	defer logging.Close()

	opts := engine.OptionsFromConfig(cfg)
	if *withEvents {
		if *trace {
			otel.SetTrace(true)
		}
		events, _, closeEvents := openEvents(cfg, 16)
		defer closeEvents()
		opts.Events = events
	}
	if st := openArchive(cfg); st != nil {
		defer st.Close()
		opts.Archive = st
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := replay.Run(ctx, in, opts)
	if err != nil {
		fatalf("replay: %v", err)
	}

	if *rawJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			fatalf("encode: %v", err)
		}
		return
	}
	printResult(res)
}

func printResult(res *replay.Result) {
	st := res.State
	fmt.Printf("Records:               %d (%d skipped)\n", res.Records, res.Skipped)
	fmt.Printf("Span:                  %s .. %s\n", res.Start.Format("2006-01-02 15:04:05"), res.End.Format("2006-01-02 15:04:05"))
	fmt.Printf("Participants:          %d (%d points in window)\n", st.TotalParticipants, st.ActiveCount)

	fmt.Println()
	fmt.Println("=== Field ===")
	fmt.Printf("Awareness:             %.3f\n", st.AverageAwareness)
	fmt.Printf("Coherence:             %.3f\n", st.Coherence)
	fmt.Printf("Complexity:            %.3f\n", st.Complexity)
	fmt.Printf("Healing capacity:      %.3f\n", st.HealingCapacity)
	fmt.Printf("Growth rate:           %.3f\n", st.GrowthRate)
	fmt.Printf("Breakthrough:          %.3f\n", st.BreakthroughPotential)
	fmt.Printf("Integration need:      %.3f\n", st.IntegrationNeed)
	parts := make([]string, 0, sig.NumElements)
	for _, el := range sig.Elements {
		parts = append(parts, fmt.Sprintf("%s=%.2f", el, st.ElementalBalance[el]))
	}
	fmt.Printf("Elemental balance:     %s\n", strings.Join(parts, " "))

	fmt.Println()
	fmt.Printf("=== Patterns (%d) ===\n", len(res.Patterns))
	for _, p := range res.Patterns {
		fmt.Printf("  %-24s str=%.2f imp=%.2f participants=%d\n", p.Type, p.Strength, p.Impact, len(p.ParticipantIDs))
		if p.ProgressionNote != "" {
			fmt.Printf("    %s\n", p.ProgressionNote)
		}
	}

	fmt.Println()
	fmt.Printf("=== Ledger (%d) ===\n", len(res.Ledger))
	for _, l := range res.Ledger {
		fmt.Printf("  %-24s x%-4d avg=%.2f last=%s\n", l.Type, l.Occurrences, l.AverageStrength, l.LastSeen.Format("15:04:05"))
	}

	h := res.Health
	fmt.Println()
	fmt.Printf("Recomputes: %d  skipped ticks: %d  rejected: %d  expired: %d  dropped: %d  evicted: %d\n",
		h.Recomputes, h.SkippedTicks, h.Rejected, h.Expired, h.Dropped, h.Evicted)
	if h.ArchiveWritten+h.ArchiveDropped+h.ArchiveErrors > 0 {
		fmt.Printf("Archive:    %d written, %d dropped, %d errors\n", h.ArchiveWritten, h.ArchiveDropped, h.ArchiveErrors)
	}
}
