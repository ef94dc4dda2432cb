// Package otel provides structured observability for the collective engine.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// An optional RingBuffer keeps the latest events in memory for the debug
// overlay.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var levelRanks = map[Level]int{LevelDebug: 0, LevelInfo: 1, LevelWarn: 2, LevelError: 3}

// Rank orders levels by severity. Unknown and empty levels rank as debug.
func (l Level) Rank() int { return levelRanks[l] }

// Valid reports whether l is one of the four known levels.
func (l Level) Valid() bool {
	_, ok := levelRanks[l]
	return ok
}

// EventKind identifies the category of an observability event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Ingest events
	KindIngestAccept EventKind = "ingest.accept"
	KindIngestReject EventKind = "ingest.reject"

	// Window events
	KindBufferOverflow EventKind = "buffer.overflow"
	KindBufferEvict    EventKind = "buffer.evict"

	// Field events
	KindFieldRecompute EventKind = "field.recompute"
	KindFieldSkip      EventKind = "field.skip"

	// Pattern events
	KindPatternDetect EventKind = "pattern.detect"
	KindPatternMeta   EventKind = "pattern.meta"

	// Archive events
	KindArchiveWrite EventKind = "archive.write"
	KindArchiveError EventKind = "archive.error"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindPanic    EventKind = "sys.panic"
	KindError    EventKind = "sys.error"
)

// Event is the universal observability record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time        time.Time      `json:"t"`
	Level       Level          `json:"level,omitempty"`
	Kind        EventKind      `json:"kind"`
	Comp        string         `json:"comp,omitempty"`       // component: "engine", "store", "ui", "main"
	SessionID   string         `json:"session_id,omitempty"` // uuid, same for entire run
	Participant string         `json:"participant,omitempty"`
	PatternID   string         `json:"pattern_id,omitempty"`
	PatternType string         `json:"pattern_type,omitempty"`
	Dur         time.Duration  `json:"-"`                // not serialized directly
	DurMs       float64        `json:"dur_ms,omitempty"` // computed from Dur at marshal time
	Count       int            `json:"count,omitempty"`
	Points      int            `json:"points,omitempty"` // buffer occupancy at emit time
	Err         string         `json:"err,omitempty"`
	Msg         string         `json:"msg,omitempty"`   // free text
	Extra       map[string]any `json:"extra,omitempty"` // escape hatch for unusual fields
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
