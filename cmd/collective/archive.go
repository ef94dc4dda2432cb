package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/abelbrown/collective/internal/pattern"
)

func runArchive() {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Config file (default ~/.collective/config.json)")
	dbPath := fs.String("db", "", "Archive database (default from config)")
	limit := fs.Int("limit", 20, "Number of recent patterns to list")
	since := fs.Duration("since", time.Hour, "Field state lookback")
	fs.Parse(os.Args[1:])

	path := *dbPath
	if path == "" {
		path = loadConfig(*cfgPath).Archive.Path
	}
	if _, err := os.Stat(path); err != nil {
		fatalf("archive not found at %s (enable archive.enabled and run watch or replay first)", path)
	}

	st := openStore(path)
	defer st.Close()
	ctx := context.Background()

	counts, err := st.PatternTypeCounts(ctx)
	if err != nil {
		fatalf("type counts: %v", err)
	}
	types := make([]pattern.Type, 0, len(counts))
	total := 0
	for typ, n := range counts {
		types = append(types, typ)
		total += n
	}
	sort.Slice(types, func(i, j int) bool { return counts[types[i]] > counts[types[j]] })

	fmt.Printf("Archived patterns:     %d\n", total)
	for _, typ := range types {
		fmt.Printf("  %-35s %d\n", typ, counts[typ])
	}

	recent, err := st.RecentPatterns(ctx, *limit)
	if err != nil {
		fatalf("recent patterns: %v", err)
	}
	fmt.Println()
	fmt.Printf("=== Recent (%d) ===\n", len(recent))
	for _, p := range recent {
		fmt.Printf("  %s  %-24s str=%.2f imp=%.2f  %s\n",
			p.DetectedAt.Format("2006-01-02 15:04:05"), p.Type, p.Strength, p.Impact, strings.Join(p.ParticipantIDs, ","))
	}

	states, err := st.FieldStates(ctx, time.Now().Add(-*since), *limit)
	if err != nil {
		fatalf("field states: %v", err)
	}
	fmt.Println()
	fmt.Printf("=== Field states since %s (%d) ===\n", *since, len(states))
	for _, s := range states {
		fmt.Printf("  %s  n=%-4d aw=%.2f coh=%.2f brk=%.2f int=%.2f\n",
			s.Timestamp.Format("2006-01-02 15:04:05"), s.TotalParticipants,
			s.AverageAwareness, s.Coherence, s.BreakthroughPotential, s.IntegrationNeed)
	}
}
