// Package pattern detects emergent multi-participant patterns in a window
// snapshot and keeps a ledger of pattern types over time.
package pattern

import (
	"time"

	"github.com/abelbrown/collective/internal/signal"
)

// Type identifies the category of a detected pattern.
type Type string

const (
	ShadowIntegration      Type = "shadow_integration"
	RapidEvolution         Type = "rapid_evolution"
	ConsciousnessElevation Type = "consciousness_elevation"
	CoherenceBuilding      Type = "coherence_building"

	// ConsciousnessLeap is reserved for meta-patterns: the same first-order
	// type emerging in two or more independent clusters at once.
	ConsciousnessLeap Type = "consciousness_leap"
)

// Timeframe spans the observations behind a pattern.
type Timeframe struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Pattern is an emergent pattern. Immutable once returned by the Detector.
type Pattern struct {
	ID             string             `json:"id"`
	Type           Type               `json:"type"`
	Strength       float64            `json:"strength"`
	Impact         float64            `json:"impact"`
	ParticipantIDs []string           `json:"participant_ids"`
	Members        int                `json:"members"` // stream points behind the pattern
	Timeframe      Timeframe          `json:"timeframe"`
	Signature      signal.Signature   `json:"signature"`
	Archetypes     map[string]float64 `json:"archetypes,omitempty"`
	DetectedAt     time.Time          `json:"detected_at"`

	// Sources lists the first-order pattern ids folded into a meta-pattern.
	Sources []string `json:"sources,omitempty"`

	ProgressionNote string   `json:"progression_note"`
	SupportNeeds    []string `json:"support_needs,omitempty"`
	TimingNote      string   `json:"timing_note"`
}

// IsMeta reports whether p is a second-order pattern.
func (p Pattern) IsMeta() bool {
	return p.Type == ConsciousnessLeap
}

// candidate is a cluster that survived the participant filter, before it is
// scored and turned into a Pattern.
type candidate struct {
	typ          Type
	members      []signal.StreamPoint
	strength     float64
	signature    signal.Signature
	archetypes   map[string]float64
	participants []string
}

// Tuning holds the product-calibration constants of the detector.
type Tuning struct {
	SimilarityThreshold float64 `json:"similarity_threshold"`
	ShadowBonus         float64 `json:"shadow_bonus"` // added to numerator and counter when both points carry shadows
	MinParticipants     int     `json:"min_participants"`

	ShadowShare            float64 `json:"shadow_share"`            // fraction of shadow carriers for shadow_integration
	RapidEvolutionVelocity float64 `json:"rapid_evolution_velocity"` // mean velocity for rapid_evolution
	ElevationAwareness     float64 `json:"elevation_awareness"`      // mean awareness for consciousness_elevation

	StrengthGain float64 `json:"strength_gain"`
	MetaGain     float64 `json:"meta_gain"`
	MetaMinimum  int     `json:"meta_minimum"` // concurrent same-type patterns for a meta-pattern
}

// DefaultTuning returns the calibrated defaults.
func DefaultTuning() Tuning {
	return Tuning{
		SimilarityThreshold:    0.7,
		ShadowBonus:            0.5,
		MinParticipants:        3,
		ShadowShare:            0.7,
		RapidEvolutionVelocity: 0.8,
		ElevationAwareness:     0.8,
		StrengthGain:           1.2,
		MetaGain:               1.2,
		MetaMinimum:            2,
	}
}

// WithDefaults fills every zero field from DefaultTuning.
func (t Tuning) WithDefaults() Tuning {
	d := DefaultTuning()
	t.SimilarityThreshold = signal.Or(t.SimilarityThreshold, d.SimilarityThreshold)
	t.ShadowBonus = signal.Or(t.ShadowBonus, d.ShadowBonus)
	t.MinParticipants = signal.Or(t.MinParticipants, d.MinParticipants)
	t.ShadowShare = signal.Or(t.ShadowShare, d.ShadowShare)
	t.RapidEvolutionVelocity = signal.Or(t.RapidEvolutionVelocity, d.RapidEvolutionVelocity)
	t.ElevationAwareness = signal.Or(t.ElevationAwareness, d.ElevationAwareness)
	t.StrengthGain = signal.Or(t.StrengthGain, d.StrengthGain)
	t.MetaGain = signal.Or(t.MetaGain, d.MetaGain)
	t.MetaMinimum = signal.Or(t.MetaMinimum, d.MetaMinimum)
	return t
}

// descriptor is the fixed guidance attached to each pattern type.
type descriptor struct {
	progression string
	support     []string
	timing      string
}

var descriptors = map[Type]descriptor{
	ShadowIntegration: {
		progression: "Several participants are facing similar shadow material at the same time.",
		support:     []string{"gentle witnessing", "acceptance practices", "grounding"},
		timing:      "Hold space now; integration follows over the next sessions.",
	},
	RapidEvolution: {
		progression: "A group is moving quickly through its current phase.",
		support:     []string{"integration time", "rest", "embodiment"},
		timing:      "Slow the pace soon so changes can settle.",
	},
	ConsciousnessElevation: {
		progression: "Awareness is rising across a cluster of participants.",
		support:     []string{"reflection prompts", "shared insight"},
		timing:      "Good moment for deeper inquiry.",
	},
	CoherenceBuilding: {
		progression: "Participants are converging on a shared state.",
		support:     []string{"steady rhythm", "consistent practice"},
		timing:      "Keep the current cadence.",
	},
	ConsciousnessLeap: {
		progression: "The same shift is emerging in independent groups at once.",
		support:     []string{"field-wide acknowledgement", "collective integration"},
		timing:      "Field-wide; expect ripple effects within the window.",
	},
}
