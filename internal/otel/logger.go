package otel

// The drain goroutine is the sole reader of l.ch and the sole writer to l.w.
// Logger.mu guards the ring pointer, the clock and the level; the ring has
// its own lock. drain releases Logger.mu before calling rb.Push().

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// writerChanSize is the capacity of the async write channel.
const writerChanSize = 4096

// logEntry carries both the serialized line (for disk) and the original
// Event (for the ring), so Dur survives in the ring copy.
type logEntry struct {
	data []byte
	ev   Event
}

// Logger serializes events as JSONL via an async background writer.
// Goroutine-safe. Emit never blocks: a full channel drops the event and
// bumps the drop counter. Lines are buffered and flushed whenever the
// channel runs empty.
type Logger struct {
	mu        sync.Mutex
	buf       *RingBuffer // nil until SetRingBuffer
	clk       clock.Clock
	minLevel  int
	sessionID string
	ch        chan logEntry
	w         io.Writer
	dropped   atomic.Uint64 // full channel, encode failure, or write error
	filtered  atomic.Uint64 // below the minimum level
	closed    atomic.Bool
	done      chan struct{} // closed when drain exits
	closeOnce sync.Once
}

// NewLogger creates a Logger writing JSONL to w asynchronously. Every
// level is written until SetLevel raises the floor.
// Call Close() to flush and stop.
func NewLogger(w io.Writer) *Logger {
	l := &Logger{
		clk:       clock.New(),
		sessionID: uuid.NewString(),
		ch:        make(chan logEntry, writerChanSize),
		w:         w,
		done:      make(chan struct{}),
	}
	go l.drain()
	return l
}

// NewNullLogger creates a Logger that discards output.
// Callers should still call Close() to stop the drain goroutine.
func NewNullLogger() *Logger {
	return NewLogger(io.Discard)
}

func (l *Logger) drain() {
	defer close(l.done)
	bw := bufio.NewWriter(l.w)
	pending := 0
	flush := func() {
		if err := bw.Flush(); err != nil {
			l.dropped.Add(uint64(pending))
		}
		pending = 0
	}

	for entry := range l.ch {
		if _, err := bw.Write(entry.data); err != nil {
			l.dropped.Add(1)
		} else {
			pending++
		}

		l.mu.Lock()
		rb := l.buf
		l.mu.Unlock()
		if rb != nil {
			rb.Push(entry.ev)
		}

		if len(l.ch) == 0 {
			flush()
		}
	}
	flush()
}

// Emit queues an event for the JSONL log (and ring buffer if attached).
// Sets Time (if zero) from the logger's clock and stamps SessionID. Events
// below the minimum level are discarded and counted as filtered.
//
// Safe to call concurrently with Close(). If Close() races between the
// closed-flag check and the channel send, the panic is recovered and the
// event is counted as dropped.
func (l *Logger) Emit(e Event) {
	defer func() {
		if recover() != nil {
			l.dropped.Add(1)
		}
	}()

	if l.closed.Load() {
		l.dropped.Add(1)
		return
	}

	l.mu.Lock()
	floor := l.minLevel
	if e.Time.IsZero() {
		e.Time = l.clk.Now()
	}
	l.mu.Unlock()
	if e.Level.Rank() < floor {
		l.filtered.Add(1)
		return
	}
	e.SessionID = l.sessionID

	data, err := json.Marshal(e)
	if err != nil {
		l.dropped.Add(1)
		return
	}
	data = append(data, '\n')

	select {
	case l.ch <- logEntry{data: data, ev: e}:
	default:
		l.dropped.Add(1)
	}
}

// Log emits an event with a free-text message.
func (l *Logger) Log(level Level, kind EventKind, comp, msg string) {
	l.Emit(Event{Level: level, Kind: kind, Comp: comp, Msg: msg})
}

// Error emits an error-level event. Nil err is safe (logged as empty string).
func (l *Logger) Error(kind EventKind, comp string, err error) {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	l.Emit(Event{Level: LevelError, Kind: kind, Comp: comp, Err: errStr})
}

// SetLevel drops events below level. Unknown levels are rejected.
// An empty level is treated as debug.
func (l *Logger) SetLevel(level Level) error {
	if level == "" {
		level = LevelDebug
	}
	if !level.Valid() {
		return fmt.Errorf("unknown event level %q", level)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level.Rank()
	return nil
}

// SetRingBuffer attaches a ring buffer for live inspection.
func (l *Logger) SetRingBuffer(buf *RingBuffer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = buf
}

// SetClock replaces the clock used to stamp events. Replay runs pass the
// mock clock driving the engine so log times match stream times.
func (l *Logger) SetClock(c clock.Clock) {
	if c == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clk = c
}

// SessionID returns the id stamped on every event.
func (l *Logger) SessionID() string {
	return l.sessionID
}

// Dropped returns the number of events lost since creation.
func (l *Logger) Dropped() uint64 {
	return l.dropped.Load()
}

// Filtered returns the number of events discarded by the level floor.
func (l *Logger) Filtered() uint64 {
	return l.filtered.Load()
}

// Close flushes pending events, stops the drain goroutine, and reports
// any dropped events to stderr. Idempotent.
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.ch)
		<-l.done

		if d := l.dropped.Load(); d > 0 {
			fmt.Fprintf(os.Stderr, "collective: %d events dropped during session %s\n", d, l.sessionID)
		}
	})
}
