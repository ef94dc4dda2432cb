// Package ui provides the Bubble Tea field monitor for the collective engine.
package ui

import (
	"time"

	"github.com/abelbrown/collective/internal/engine"
	"github.com/abelbrown/collective/internal/field"
	"github.com/abelbrown/collective/internal/pattern"
)

// RefreshTick triggers a periodic read of the engine.
type RefreshTick struct {
	At time.Time
}

// FieldRefreshed carries one read of the engine's query surface.
type FieldRefreshed struct {
	State    field.State
	Pulse    field.State
	Patterns []pattern.Pattern
	Ledger   []pattern.LedgerEntry
	Health   engine.Health
}
