package otel

import (
	"os"
	"strconv"
	"sync/atomic"
)

// tracing gates the per-interaction debug events. Seeded from
// COLLECTIVE_TRACE, read by the engine on every ingest.
var tracing atomic.Bool

func init() {
	tracing.Store(parseTrace(os.Getenv("COLLECTIVE_TRACE")))
}

// parseTrace treats any non-empty value other than a false boolean as on,
// so COLLECTIVE_TRACE=yes works and COLLECTIVE_TRACE=0 does not.
func parseTrace(v string) bool {
	if v == "" {
		return false
	}
	on, err := strconv.ParseBool(v)
	return err != nil || on
}

// TraceEnabled reports whether the engine should emit a debug event for
// every accepted interaction.
func TraceEnabled() bool {
	return tracing.Load()
}

// SetTrace turns per-interaction tracing on or off.
func SetTrace(on bool) {
	tracing.Store(on)
}
