// Package engine is the ingest and query boundary of the collective field.
//
// One goroutine owns the window buffer, the aggregator and the
// per-participant history. Ingest and every query are closures sent over
// the inbox and run on that goroutine, so readers only ever see copies.
// Full recomputes run on the recompute ticker or right after a significant
// point; pending triggers coalesce into one run.
package engine

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/abelbrown/collective/internal/field"
	"github.com/abelbrown/collective/internal/logging"
	"github.com/abelbrown/collective/internal/otel"
	"github.com/abelbrown/collective/internal/pattern"
	"github.com/abelbrown/collective/internal/signal"
	"github.com/abelbrown/collective/internal/window"
)

// overflowWarnInterval rate-limits the hard-cap warning.
const overflowWarnInterval = 10 * time.Second

// Engine aggregates interactions from many participants into a field state
// and detects emergent patterns. Goroutine-safe. Create with New, stop with
// Close.
type Engine struct {
	id        string
	opts      Options
	clk       clock.Clock
	events    *otel.Logger
	ownEvents bool
	extract   *signal.Extractor
	detector  *pattern.Detector
	ledger    *pattern.Ledger
	sink      *sink
	startedAt time.Time

	inbox     chan func()
	kick      chan struct{} // 1-slot; significant points coalesce here
	quit      chan struct{}
	stopped   chan struct{} // closed when the loop exits
	closed    atomic.Bool
	closeOnce sync.Once

	stats counters

	// Loop-owned.
	buf       *window.Buffer
	agg       *field.Aggregator
	history   map[string][]signal.StreamPoint
	dirty     bool // buffer or inputs changed since the last full recompute
	pending   bool // significant point waiting for an immediate recompute
	immediate bool // an out-of-band recompute ran since the last tick
	overflow  rate.Sometimes

	mu     sync.Mutex // guards passes
	passes []detection
}

// detection is one detection pass kept for ActivePatterns.
type detection struct {
	at       time.Time
	patterns []pattern.Pattern
}

// New creates an Engine and starts its loop.
func New(opts Options) (*Engine, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		id:       uuid.NewString(),
		opts:     opts,
		clk:      opts.Clock,
		events:   opts.Events,
		extract:  signal.NewExtractor(opts.Signal),
		detector: pattern.NewDetector(opts.Pattern),
		ledger:   pattern.NewLedger(),
		inbox:    make(chan func(), opts.InboxSize),
		kick:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
		buf:      window.NewBuffer(opts.WindowSize, opts.MaxPoints),
		agg:      field.NewAggregator(opts.Field),
		history:  make(map[string][]signal.StreamPoint),
		overflow: rate.Sometimes{First: 1, Interval: overflowWarnInterval},
	}
	if e.events == nil {
		e.events = otel.NewNullLogger()
		e.ownEvents = true
	}
	if opts.Archive != nil {
		e.sink = newSink(opts.Archive, opts.ArchiveQueue, e.events)
	}
	e.startedAt = e.clk.Now()

	// Arm the ticker before returning so a mock clock advanced right after
	// New always fires it.
	ticker := e.clk.Ticker(opts.RecomputeInterval)
	go e.run(ticker)

	logging.Info("engine started", "id", e.id, "window", opts.WindowSize, "interval", opts.RecomputeInterval)
	e.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStartup, Comp: "engine", Msg: e.id})
	return e, nil
}

func (e *Engine) run(ticker *clock.Ticker) {
	defer close(e.stopped)
	defer ticker.Stop()
	for {
		select {
		case <-e.quit:
			return
		case fn := <-e.inbox:
			e.step(fn)
		case <-e.kick:
			e.step(e.onKick)
		case <-ticker.C:
			e.step(e.onTick)
		}
	}
}

// step runs fn and keeps the loop alive if it panics.
func (e *Engine) step(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.stats.panics.Add(1)
			logging.Error("engine step panicked", "id", e.id, "panic", r)
			e.events.Emit(otel.Event{Level: otel.LevelError, Kind: otel.KindPanic, Comp: "engine", Extra: map[string]any{"panic": r}})
		}
	}()
	fn()
}

// do runs fn on the loop and waits for it. Returns false once the engine
// is closed.
func (e *Engine) do(fn func()) bool {
	if e.closed.Load() {
		return false
	}
	done := make(chan struct{})
	select {
	case e.inbox <- func() { defer close(done); fn() }:
	case <-e.stopped:
		return false
	}
	select {
	case <-done:
		return true
	case <-e.stopped:
		return false
	}
}

// Ingest queues one interaction. It never fails: unattributable records are
// logged and dropped, other gaps get neutral defaults. Blocks only while
// the inbox is full.
func (e *Engine) Ingest(in signal.Interaction) {
	if e.closed.Load() {
		return
	}
	select {
	case e.inbox <- func() { e.ingest(in) }:
	case <-e.stopped:
	}
}

func (e *Engine) ingest(in signal.Interaction) {
	now := e.clk.Now()
	if in.ObservedAt.IsZero() || in.ObservedAt.After(now) {
		in.ObservedAt = now
	}
	// Same exclusive boundary as eviction: nothing at or before the cutoff
	// reaches the buffer, the smoothed state or the history.
	if cutoff := now.Add(-e.opts.WindowSize); !in.ObservedAt.After(cutoff) {
		e.stats.expired.Add(1)
		e.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindIngestReject, Comp: "engine",
			Participant: in.ParticipantID, Msg: "observed before window start"})
		return
	}

	p, err := e.extract.Extract(in, e.history[strings.TrimSpace(in.ParticipantID)])
	if err != nil {
		e.stats.rejected.Add(1)
		logging.Warn("dropping interaction", "session", in.SessionID, "error", err)
		e.events.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindIngestReject, Comp: "engine", Err: err.Error()})
		return
	}

	e.evict(now)
	if e.buf.Append(p) {
		e.stats.dropped.Add(1)
		e.overflow.Do(func() {
			logging.Warn("window buffer full, dropping oldest points", "max_points", e.opts.MaxPoints, "dropped", e.buf.Dropped())
			e.events.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindBufferOverflow, Comp: "engine", Count: int(e.buf.Dropped())})
		})
	}
	e.dirty = true
	e.remember(p)
	e.agg.Observe(p)
	e.stats.ingested.Add(1)
	e.stats.occupancy(e.buf.Len())

	if otel.TraceEnabled() {
		e.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindIngestAccept, Comp: "engine", Participant: p.ParticipantID, Points: e.buf.Len()})
	}

	if e.agg.Significant(p) {
		e.pending = true
		select {
		case e.kick <- struct{}{}:
		default:
		}
	}
}

// remember appends p to its participant's history, trimmed to depth.
func (e *Engine) remember(p signal.StreamPoint) {
	h := append(e.history[p.ParticipantID], p)
	if over := len(h) - e.opts.Signal.HistoryDepth; over > 0 {
		h = append(h[:0:0], h[over:]...)
	}
	e.history[p.ParticipantID] = h
}

// evict drops expired points and forgets participants with nothing left in
// the window.
func (e *Engine) evict(now time.Time) {
	n := e.buf.EvictExpired(now)
	if n == 0 {
		return
	}
	e.dirty = true
	e.stats.evicted.Add(uint64(n))
	e.stats.occupancy(e.buf.Len())

	active := make(map[string]bool)
	for _, id := range e.buf.Snapshot().Participants() {
		active[id] = true
	}
	for id := range e.history {
		if !active[id] {
			delete(e.history, id)
		}
	}
	e.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindBufferEvict, Comp: "engine", Count: n, Points: e.buf.Len()})
}

// recompute rebuilds the field state from the current window.
func (e *Engine) recompute(now time.Time, reason string) (window.Snapshot, field.State) {
	start := time.Now()
	e.evict(now)
	snap := e.buf.Snapshot()
	e.agg.Recompute(snap, now)
	e.dirty = false
	e.pending = false

	st := e.agg.State()
	e.stats.recomputed(st.LastRecompute, st.Recomputes, snap.Len(), st.TotalParticipants)
	e.events.Emit(otel.Event{
		Level:  otel.LevelDebug,
		Kind:   otel.KindFieldRecompute,
		Comp:   "engine",
		Msg:    reason,
		Dur:    time.Since(start),
		Count:  st.TotalParticipants,
		Points: snap.Len(),
	})
	e.sink.submit(archiveJob{state: &st})
	return snap, st
}

func (e *Engine) onKick() {
	if !e.pending {
		return
	}
	now := e.clk.Now()
	snap, st := e.recompute(now, "significant")
	e.immediate = true
	e.detect(snap, st, now)
}

// onTick recomputes on the interval unless an out-of-band recompute already
// covered this period and nothing changed since.
func (e *Engine) onTick() {
	now := e.clk.Now()
	e.evict(now)
	if !e.dirty && e.immediate {
		e.immediate = false
		e.stats.skipped.Add(1)
		e.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindFieldSkip, Comp: "engine"})
		return
	}
	e.immediate = false
	snap, st := e.recompute(now, "interval")
	e.detect(snap, st, now)
}

// detect runs one detection pass and records its results. Called from the
// loop and from DetectNow callers; it touches only goroutine-safe state.
func (e *Engine) detect(snap window.Snapshot, st field.State, now time.Time) []pattern.Pattern {
	ps := e.detector.Detect(snap, st, now)
	if len(ps) == 0 {
		return ps
	}
	e.ledger.RecordAll(ps, now)
	e.stats.patterns.Add(uint64(len(ps)))

	e.mu.Lock()
	e.passes = append(e.passes, detection{at: now, patterns: ps})
	e.prune(now)
	e.mu.Unlock()

	for _, p := range ps {
		kind := otel.KindPatternDetect
		if p.IsMeta() {
			kind = otel.KindPatternMeta
		}
		e.events.Emit(otel.Event{
			Level:       otel.LevelInfo,
			Kind:        kind,
			Comp:        "engine",
			PatternID:   p.ID,
			PatternType: string(p.Type),
			Count:       len(p.ParticipantIDs),
			Points:      p.Members,
		})
	}
	e.sink.submit(archiveJob{patterns: ps})
	return ps
}

// prune drops passes older than the retention. Caller holds e.mu.
func (e *Engine) prune(now time.Time) {
	cutoff := now.Add(-e.opts.PatternRetention)
	i := 0
	for i < len(e.passes) && e.passes[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		e.passes = append(e.passes[:0:0], e.passes[i:]...)
	}
}

// CurrentFieldState returns a copy of the field state, recomputed first if
// the window changed since the last full recompute.
func (e *Engine) CurrentFieldState() field.State {
	var st field.State
	if !e.do(func() {
		now := e.clk.Now()
		e.evict(now)
		if e.dirty {
			e.recompute(now, "query")
			e.immediate = true
		}
		st = e.agg.State()
	}) {
		return e.lastState()
	}
	return st
}

// Pulse returns the incrementally smoothed state without a recompute.
func (e *Engine) Pulse() field.State {
	var st field.State
	if !e.do(func() { st = e.agg.State() }) {
		return e.lastState()
	}
	return st
}

// lastState is the fallback once the loop is gone. The loop no longer
// writes the aggregator, so reading it here is safe.
func (e *Engine) lastState() field.State {
	<-e.stopped
	return e.agg.State()
}

// DetectNow forces a detection pass against a snapshot taken now. The scan
// runs on the caller's goroutine; ingestion continues meanwhile.
func (e *Engine) DetectNow() []pattern.Pattern {
	var (
		snap window.Snapshot
		st   field.State
		now  time.Time
	)
	if !e.do(func() {
		now = e.clk.Now()
		e.evict(now)
		if e.dirty {
			e.recompute(now, "detect")
			e.immediate = true
		}
		snap = e.buf.Snapshot()
		st = e.agg.State()
	}) {
		return nil
	}
	return e.detect(snap, st, now)
}

// ActivePatterns returns patterns detected within the last timeframe
// (0 = window size), newest pass first. A pattern recurring with the same
// type and participants is reported once, at its latest detection.
func (e *Engine) ActivePatterns(timeframe time.Duration) []pattern.Pattern {
	if timeframe <= 0 {
		timeframe = e.opts.WindowSize
	}
	cutoff := e.clk.Now().Add(-timeframe)

	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]bool)
	var out []pattern.Pattern
	for i := len(e.passes) - 1; i >= 0; i-- {
		pass := e.passes[i]
		if pass.at.Before(cutoff) {
			break
		}
		for _, p := range pass.patterns {
			key := string(p.Type) + "|" + strings.Join(p.ParticipantIDs, ",")
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, p)
		}
	}
	return out
}

// Ledger returns pattern types seen within the last timeframe
// (0 = window size), most recent first.
func (e *Engine) Ledger(timeframe time.Duration) []pattern.LedgerEntry {
	if timeframe <= 0 {
		timeframe = e.opts.WindowSize
	}
	return e.ledger.ActiveSince(e.clk.Now().Add(-timeframe))
}

// Resonance measures how closely the points in the window sit to the
// current field state.
func (e *Engine) Resonance() float64 {
	var r float64
	e.do(func() {
		e.evict(e.clk.Now())
		r = field.Resonance(e.buf.Snapshot().Points, e.agg.State())
	})
	return r
}

// SetGrowthRate supplies the collaborator-computed growth aggregate. It
// takes effect at the next full recompute.
func (e *Engine) SetGrowthRate(v float64) {
	e.do(func() {
		e.agg.SetGrowthRate(v)
		e.dirty = true
	})
}

// Participants returns the ids with points in the window, sorted.
func (e *Engine) Participants() []string {
	var ids []string
	e.do(func() {
		e.evict(e.clk.Now())
		ids = e.buf.Snapshot().Participants()
	})
	sort.Strings(ids)
	return ids
}

// Health returns liveness counters. Safe to call after Close.
func (e *Engine) Health() Health {
	written, dropped, errs := e.sink.stats()
	e.stats.mu.Lock()
	h := Health{
		ID:            e.id,
		Running:       !e.closed.Load(),
		StartedAt:     e.startedAt,
		LastRecompute: e.stats.lastRecompute,
		Recomputes:    e.stats.recomputes,
		BufferLen:     e.stats.bufferLen,
		Participants:  e.stats.participants,
	}
	e.stats.mu.Unlock()
	h.SkippedTicks = e.stats.skipped.Load()
	h.Ingested = e.stats.ingested.Load()
	h.Rejected = e.stats.rejected.Load()
	h.Expired = e.stats.expired.Load()
	h.Dropped = e.stats.dropped.Load()
	h.Evicted = e.stats.evicted.Load()
	h.Panics = e.stats.panics.Load()
	h.Patterns = e.stats.patterns.Load()
	h.ArchiveWritten = written
	h.ArchiveDropped = dropped
	h.ArchiveErrors = errs
	return h
}

// Close stops the loop and the ticker, then flushes the archive. Queued
// but unprocessed interactions are discarded. Idempotent.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.quit)
		<-e.stopped
		e.sink.close()

		h := e.Health()
		logging.Info("engine stopped", "id", e.id, "ingested", h.Ingested, "recomputes", h.Recomputes, "patterns", h.Patterns)
		e.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindShutdown, Comp: "engine", Msg: e.id, Count: int(h.Ingested)})
		if e.ownEvents {
			e.events.Close()
		}
	})
}
