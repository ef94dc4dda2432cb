// Package field maintains the aggregate "field state" over the window.
//
// Two update paths write the state. Observe is the cheap per-point path: it
// exponentially smooths average awareness and the elemental balance so the
// field moves between recomputes. Recompute rebuilds every metric from a
// buffer snapshot and overwrites whatever Observe produced.
package field

import (
	"maps"
	"time"

	"github.com/abelbrown/collective/internal/signal"
)

// State is the aggregate over all stream points in the active window.
// Every scalar is in [0, 1] and ElementalBalance sums to 1.
type State struct {
	Timestamp         time.Time `json:"timestamp"`
	TotalParticipants int       `json:"total_participants"`
	ActiveCount       int       `json:"active_count"`

	ElementalBalance signal.Signature `json:"elemental_balance"`
	AverageAwareness float64          `json:"average_awareness"`
	Coherence        float64          `json:"coherence"`
	Complexity       float64          `json:"complexity"`
	HealingCapacity  float64          `json:"healing_capacity"`

	DominantArchetypes map[string]float64 `json:"dominant_archetypes,omitempty"`
	EmergingArchetypes map[string]float64 `json:"emerging_archetypes,omitempty"`
	ShadowArchetypes   map[string]float64 `json:"shadow_archetypes,omitempty"`

	GrowthRate            float64 `json:"growth_rate"`
	BreakthroughPotential float64 `json:"breakthrough_potential"`
	IntegrationNeed       float64 `json:"integration_need"`

	// Liveness: a stale LastRecompute means the recompute task died.
	LastRecompute time.Time `json:"last_recompute"`
	Recomputes    uint64    `json:"recomputes"`
}

// Neutral returns the state reported before any point has been seen.
func Neutral(t Tuning) State {
	return State{
		ElementalBalance: signal.Uniform(),
		AverageAwareness: 0.5,
		Coherence:        t.NeutralCoherence,
	}
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s State) Clone() State {
	s.DominantArchetypes = maps.Clone(s.DominantArchetypes)
	s.EmergingArchetypes = maps.Clone(s.EmergingArchetypes)
	s.ShadowArchetypes = maps.Clone(s.ShadowArchetypes)
	return s
}

// Tuning holds the product-calibration constants of the aggregator.
type Tuning struct {
	Alpha float64 `json:"alpha"` // smoothing factor for Observe

	SignificantAwareness float64 `json:"significant_awareness"` // immediate-recompute trigger
	SignificantVelocity  float64 `json:"significant_velocity"`

	NeutralCoherence float64 `json:"neutral_coherence"` // coherence with fewer than 2 points

	ParticipantCap int `json:"participant_cap"` // participants for full complexity credit
	ArchetypeCap   int `json:"archetype_cap"`   // archetypes for full complexity credit

	DominantThreshold float64 `json:"dominant_threshold"`
	EmergingThreshold float64 `json:"emerging_threshold"`
	ShadowWeight      float64 `json:"shadow_weight"`

	BreakthroughGain   float64 `json:"breakthrough_gain"`
	BreakthroughCutoff float64 `json:"breakthrough_cutoff"`
	IntegrationGain    float64 `json:"integration_gain"`
	IntegrationCutoff  float64 `json:"integration_cutoff"`
}

// DefaultTuning returns the calibrated defaults.
func DefaultTuning() Tuning {
	return Tuning{
		Alpha:                0.1,
		SignificantAwareness: 0.8,
		SignificantVelocity:  0.8,
		NeutralCoherence:     0.5,
		ParticipantCap:       20,
		ArchetypeCap:         10,
		DominantThreshold:    0.5,
		EmergingThreshold:    0.3,
		ShadowWeight:         0.5,
		BreakthroughGain:     1.5,
		BreakthroughCutoff:   0.7,
		IntegrationGain:      2,
		IntegrationCutoff:    0.8,
	}
}

// WithDefaults fills every zero field from DefaultTuning.
func (t Tuning) WithDefaults() Tuning {
	d := DefaultTuning()
	t.Alpha = signal.Or(t.Alpha, d.Alpha)
	t.SignificantAwareness = signal.Or(t.SignificantAwareness, d.SignificantAwareness)
	t.SignificantVelocity = signal.Or(t.SignificantVelocity, d.SignificantVelocity)
	t.NeutralCoherence = signal.Or(t.NeutralCoherence, d.NeutralCoherence)
	t.ParticipantCap = signal.Or(t.ParticipantCap, d.ParticipantCap)
	t.ArchetypeCap = signal.Or(t.ArchetypeCap, d.ArchetypeCap)
	t.DominantThreshold = signal.Or(t.DominantThreshold, d.DominantThreshold)
	t.EmergingThreshold = signal.Or(t.EmergingThreshold, d.EmergingThreshold)
	t.ShadowWeight = signal.Or(t.ShadowWeight, d.ShadowWeight)
	t.BreakthroughGain = signal.Or(t.BreakthroughGain, d.BreakthroughGain)
	t.BreakthroughCutoff = signal.Or(t.BreakthroughCutoff, d.BreakthroughCutoff)
	t.IntegrationGain = signal.Or(t.IntegrationGain, d.IntegrationGain)
	t.IntegrationCutoff = signal.Or(t.IntegrationCutoff, d.IntegrationCutoff)
	return t
}
