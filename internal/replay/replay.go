// Package replay feeds recorded interactions through an engine on a
// simulated clock, so a day of traffic runs in seconds.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/collective/internal/engine"
	"github.com/abelbrown/collective/internal/field"
	"github.com/abelbrown/collective/internal/logging"
	"github.com/abelbrown/collective/internal/pattern"
	"github.com/abelbrown/collective/internal/signal"
)

// maxLine bounds a single JSONL record.
const maxLine = 1 << 20

// Result is the engine's view once every record has been ingested.
type Result struct {
	Records int `json:"records"`
	Skipped int `json:"skipped"` // malformed lines

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	State    field.State           `json:"state"`
	Patterns []pattern.Pattern     `json:"patterns"` // final detection pass
	Active   []pattern.Pattern     `json:"active"`   // every pattern still inside the window
	Ledger   []pattern.LedgerEntry `json:"ledger"`
	Health   engine.Health         `json:"health"`
}

// Run replays the JSONL interactions in r. The engine clock starts at the
// first record's ObservedAt and advances to each later record's time;
// records without a time are stamped with the current simulated time.
// opts.Clock is replaced; opts.Events, if set, is re-clocked to match.
func Run(ctx context.Context, r io.Reader, opts engine.Options) (*Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	recs := make(chan signal.Interaction, 256)

	var skipped int
	g.Go(func() error {
		defer close(recs)
		n, err := decode(gctx, r, recs)
		skipped = n
		return err
	})

	var res *Result
	g.Go(func() error {
		var err error
		res, err = play(gctx, recs, opts)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	res.Skipped = skipped
	return res, nil
}

// decode parses one interaction per line. Blank lines and lines starting
// with '#' are ignored; malformed lines are counted and skipped.
func decode(ctx context.Context, r io.Reader, out chan<- signal.Interaction) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	skipped, line := 0, 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		var in signal.Interaction
		if err := json.Unmarshal(raw, &in); err != nil {
			skipped++
			logging.Warn("replay: skipping malformed line", "line", line, "err", err)
			continue
		}
		select {
		case out <- in:
		case <-ctx.Done():
			return skipped, ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return skipped, fmt.Errorf("read line %d: %w", line+1, err)
	}
	return skipped, nil
}

// maxLeading bounds how many untimed records are held back while looking
// for the first timestamp.
const maxLeading = 4096

// leading reads records up to and including the first timestamped one.
// Untimed records ahead of it are stamped with that time. When the stream
// ends, or maxLeading records pass, without a timestamp, the wall clock
// seeds the replay instead.
func leading(ctx context.Context, recs <-chan signal.Interaction) ([]signal.Interaction, error) {
	var lead []signal.Interaction
	for len(lead) < maxLeading {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case in, ok := <-recs:
			if !ok {
				return lead, nil
			}
			lead = append(lead, in)
			if !in.ObservedAt.IsZero() {
				return lead, nil
			}
		}
	}
	return lead, nil
}

func play(ctx context.Context, recs <-chan signal.Interaction, opts engine.Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The mock must reach the first record's time before the engine arms
	// its ticker, or every interval since the epoch would fire.
	lead, err := leading(ctx, recs)
	if err != nil {
		return nil, err
	}
	mock := clock.NewMock()
	if n := len(lead); n > 0 && !lead[n-1].ObservedAt.IsZero() {
		mock.Set(lead[n-1].ObservedAt)
	} else {
		mock.Set(time.Now())
	}

	opts.Clock = mock
	if opts.Events != nil {
		opts.Events.SetClock(mock)
	}
	e, err := engine.New(opts)
	if err != nil {
		return nil, err
	}
	defer e.Close()

	res := &Result{Start: mock.Now()}
	feed := func(in signal.Interaction) {
		ts := in.ObservedAt
		if ts.IsZero() {
			ts = mock.Now()
		}
		if ts.After(mock.Now()) {
			// Drain queued ingests so they are stamped and evicted at
			// their own time, then advance.
			e.Pulse()
			mock.Set(ts)
		}
		in.ObservedAt = ts
		e.Ingest(in)
		res.Records++
	}

	for _, in := range lead {
		feed(in)
	}
loop:
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case in, more := <-recs:
			if !more {
				break loop
			}
			feed(in)
		}
	}

	res.End = mock.Now()
	res.State = e.CurrentFieldState()
	res.Patterns = e.DetectNow()
	res.Active = e.ActivePatterns(0)
	res.Ledger = e.Ledger(0)
	e.Close() // flush the archive before reading its counters
	res.Health = e.Health()
	return res, nil
}
