// Package coord drives interaction sources into the engine in the background.
package coord

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/abelbrown/collective/internal/logging"
	"github.com/abelbrown/collective/internal/signal"
	"github.com/abelbrown/collective/internal/ui"
)

// DefaultInterval is the time between poll cycles.
const DefaultInterval = 2 * time.Second

// pollTimeout bounds each individual source poll.
const pollTimeout = 10 * time.Second

// maxConcurrentPolls limits parallel source polls.
const maxConcurrentPolls = 8

// Source yields interactions on each poll. Poll must return promptly when
// ctx is cancelled.
type Source interface {
	Name() string
	Poll(ctx context.Context) ([]signal.Interaction, error)
}

// Sink accepts interactions. *engine.Engine satisfies it.
type Sink interface {
	Ingest(in signal.Interaction)
}

// Notifier receives a ui.RefreshTick after every cycle. *tea.Program
// satisfies it.
type Notifier interface {
	Send(msg tea.Msg)
}

// Options tunes a Coordinator. Zero values take defaults.
type Options struct {
	Interval time.Duration
	// Rate caps interactions per second across all sources. Zero is unlimited.
	Rate  float64
	Burst int
	Clock clock.Clock
}

// Stats counts coordinator activity.
type Stats struct {
	Cycles   uint64
	Polls    uint64
	Ingested uint64
	Failed   uint64
}

// Coordinator polls sources on a ticker and ingests what they return.
// Uses context cancellation as the ONLY stop mechanism.
type Coordinator struct {
	sink     Sink
	sources  []Source // IMMUTABLE: set at construction, never modified
	limiter  *rate.Limiter
	interval time.Duration
	clk      clock.Clock
	wg       sync.WaitGroup

	cycles, polls, ingested, failed atomic.Uint64
}

// New creates a Coordinator feeding sink from sources.
func New(sink Sink, sources []Source, opts Options) *Coordinator {
	sourcesCopy := make([]Source, len(sources))
	copy(sourcesCopy, sources)

	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	c := &Coordinator{
		sink:     sink,
		sources:  sourcesCopy,
		interval: opts.Interval,
		clk:      opts.Clock,
	}
	if opts.Rate > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.Rate), burst)
	}
	return c
}

// Start begins background polling. Call with a cancellable context.
// Polls immediately, then every interval. n may be nil.
func (c *Coordinator) Start(ctx context.Context, n Notifier) {
	ticker := c.clk.Ticker(c.interval)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ticker.Stop()

		c.pollAll(ctx, n)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.pollAll(ctx, n)
			}
		}
	}()
}

// Wait blocks until the background goroutine exits.
// Call after canceling the context passed to Start.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Stats returns a snapshot of the counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Cycles:   c.cycles.Load(),
		Polls:    c.polls.Load(),
		Ingested: c.ingested.Load(),
		Failed:   c.failed.Load(),
	}
}

// pollAll polls every source in parallel, then notifies n.
func (c *Coordinator) pollAll(ctx context.Context, n Notifier) {
	var g errgroup.Group
	g.SetLimit(maxConcurrentPolls)

	for _, src := range c.sources {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			c.pollSource(ctx, src)
			return nil // never fail the group, errors are counted per source
		})
	}
	_ = g.Wait()

	c.cycles.Add(1)
	if n != nil && ctx.Err() == nil {
		n.Send(ui.RefreshTick{At: c.clk.Now()})
	}
}

// pollSource polls a single source with timeout and ingests the results,
// pacing them through the limiter.
func (c *Coordinator) pollSource(ctx context.Context, src Source) {
	pollCtx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	c.polls.Add(1)
	batch, err := src.Poll(pollCtx)
	if err != nil {
		c.failed.Add(1)
		logging.Warn("coord: poll failed", "source", src.Name(), "err", err)
		return
	}
	for _, in := range batch {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return
			}
		}
		c.sink.Ingest(in)
		c.ingested.Add(1)
	}
}
