package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abelbrown/collective/internal/field"
	"github.com/abelbrown/collective/internal/logging"
	"github.com/abelbrown/collective/internal/otel"
	"github.com/abelbrown/collective/internal/pattern"
)

// archiveTimeout bounds a single archive write.
const archiveTimeout = 5 * time.Second

type archiveJob struct {
	patterns []pattern.Pattern
	state    *field.State
}

// sink hands finished values to the Archiver on its own goroutine. submit
// never blocks: a full queue drops the job and counts it. The drain
// goroutine is the only caller of the Archiver.
type sink struct {
	arch    Archiver
	events  *otel.Logger
	ch      chan archiveJob
	done    chan struct{}
	closed  atomic.Bool
	once    sync.Once
	written atomic.Uint64
	dropped atomic.Uint64
	errs    atomic.Uint64
}

func newSink(a Archiver, size int, events *otel.Logger) *sink {
	s := &sink{
		arch:   a,
		events: events,
		ch:     make(chan archiveJob, size),
		done:   make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *sink) submit(job archiveJob) {
	if s == nil {
		return
	}
	defer func() {
		// Close raced the closed-flag check.
		if recover() != nil {
			s.dropped.Add(1)
		}
	}()
	if s.closed.Load() {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ch <- job:
	default:
		s.dropped.Add(1)
	}
}

func (s *sink) drain() {
	defer close(s.done)
	for job := range s.ch {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		s.write(ctx, job)
		cancel()
	}
}

func (s *sink) write(ctx context.Context, job archiveJob) {
	if len(job.patterns) > 0 {
		n, err := s.arch.ArchivePatterns(ctx, job.patterns)
		if err != nil {
			s.fail(err)
		} else {
			s.written.Add(uint64(n))
			s.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindArchiveWrite, Comp: "archive", Count: n})
		}
	}
	if job.state != nil {
		if err := s.arch.ArchiveFieldState(ctx, *job.state); err != nil {
			s.fail(err)
		}
	}
}

func (s *sink) fail(err error) {
	s.errs.Add(1)
	logging.Warn("archive write failed", "error", err)
	s.events.Error(otel.KindArchiveError, "archive", err)
}

// close flushes queued jobs and waits for the drain goroutine.
func (s *sink) close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		<-s.done
	})
}

func (s *sink) stats() (written, dropped, errs uint64) {
	if s == nil {
		return 0, 0, 0
	}
	return s.written.Load(), s.dropped.Load(), s.errs.Load()
}
