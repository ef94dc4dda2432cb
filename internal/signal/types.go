// Package signal turns raw interaction records into normalized stream points.
//
// A stream point is the only unit the rest of the engine understands: a
// five-element signature, a lifecycle phase, open-ended archetype
// activations, shadow tags and four scalar indices. Points are immutable
// once extracted.
package signal

import (
	"strings"
	"time"
)

// Element indexes one of the five components of a Signature.
type Element int

const (
	Fire Element = iota
	Water
	Earth
	Air
	Aether
)

// NumElements is the length of every Signature.
const NumElements = 5

// Elements lists every element in signature order.
var Elements = [NumElements]Element{Fire, Water, Earth, Air, Aether}

var elementNames = [NumElements]string{"fire", "water", "earth", "air", "aether"}

func (e Element) String() string {
	if e < 0 || int(e) >= NumElements {
		return "unknown"
	}
	return elementNames[e]
}

// ParseElement maps a name like "Fire" to its Element.
func ParseElement(s string) (Element, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range elementNames {
		if name == s {
			return Element(i), true
		}
	}
	return 0, false
}

// Signature is an elemental profile. After Normalize every component is
// non-negative and the components sum to 1.
type Signature [NumElements]float64

// Uniform returns the neutral signature (0.2 everywhere).
func Uniform() Signature {
	var s Signature
	for i := range s {
		s[i] = 1.0 / NumElements
	}
	return s
}

// Sum returns the component total.
func (s Signature) Sum() float64 {
	var total float64
	for _, v := range s {
		total += v
	}
	return total
}

// Normalize clamps negative or non-finite components to zero and rescales
// to sum 1. A signature with no mass becomes Uniform.
func (s Signature) Normalize() Signature {
	var out Signature
	var total float64
	for i, v := range s {
		v = Sanitize(v)
		if v < 0 {
			v = 0
		}
		out[i] = v
		total += v
	}
	if total <= 0 {
		return Uniform()
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// Closeness is the mean over elements of 1 - |a[e] - b[e]|.
func (s Signature) Closeness(o Signature) float64 {
	var sum float64
	for i := range s {
		d := s[i] - o[i]
		if d < 0 {
			d = -d
		}
		sum += 1 - d
	}
	return Unit(sum / NumElements)
}

// Map renders the signature keyed by element name.
func (s Signature) Map() map[string]float64 {
	m := make(map[string]float64, NumElements)
	for i, v := range s {
		m[elementNames[i]] = v
	}
	return m
}

// Dominant returns the element with the largest component.
func (s Signature) Dominant() Element {
	best := Fire
	for i, v := range s {
		if v > s[best] {
			best = Element(i)
		}
	}
	return best
}

// Phase is an ordered lifecycle stage. The zero value is PhaseUnknown.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseInitiation
	PhaseExploration
	PhaseChallenge
	PhaseTransformation
	PhaseIntegration
	PhaseMastery
	PhaseTranscendence
)

var phaseNames = []string{
	"unknown", "initiation", "exploration", "challenge",
	"transformation", "integration", "mastery", "transcendence",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// ParsePhase maps a name to its Phase. Unrecognized names yield PhaseUnknown.
func ParsePhase(s string) Phase {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range phaseNames {
		if name == s {
			return Phase(i)
		}
	}
	return PhaseUnknown
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(b []byte) error {
	*p = ParsePhase(string(b))
	return nil
}

// ShadowTag marks an unintegrated pattern a participant is working with.
type ShadowTag struct {
	Kind        string  `json:"kind"`
	Intensity   float64 `json:"intensity"`
	Acceptance  float64 `json:"acceptance"`
	Integration float64 `json:"integration"`
}

// StreamPoint is one normalized observation derived from a single
// interaction. Window snapshots deep-copy its Archetypes map and Shadows
// slice.
type StreamPoint struct {
	ParticipantID string    `json:"participant_id"`
	SourceID      string    `json:"source_id"`
	ObservedAt    time.Time `json:"observed_at"`

	Signature  Signature          `json:"signature"`
	Phase      Phase              `json:"phase"`
	Archetypes map[string]float64 `json:"archetypes,omitempty"`
	Shadows    []ShadowTag        `json:"shadows,omitempty"`

	Awareness         float64 `json:"awareness"`
	IntegrationDepth  float64 `json:"integration_depth"`
	EvolutionVelocity float64 `json:"evolution_velocity"`
	Authenticity      float64 `json:"authenticity"`
}

// HasShadow reports whether the point carries at least one shadow tag.
func (p StreamPoint) HasShadow() bool {
	return len(p.Shadows) > 0
}

// Intensity is awareness × evolution velocity, the per-point energy used by
// pattern strength and impact.
func (p StreamPoint) Intensity() float64 {
	return Unit(p.Awareness) * Unit(p.EvolutionVelocity)
}

// Interaction is the raw record handed to the engine by its caller.
type Interaction struct {
	ParticipantID string    `json:"participant_id"`
	SessionID     string    `json:"session_id,omitempty"`
	Text          string    `json:"text,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	ObservedAt    time.Time `json:"observed_at,omitempty"`
	Meta          Metadata  `json:"meta,omitempty"`
}

// Metadata carries per-call processing results from upstream collaborators.
// Nil pointers and empty collections mean "not measured".
type Metadata struct {
	Phase      string             `json:"phase,omitempty"`
	Elements   map[string]float64 `json:"elements,omitempty"`
	Archetypes map[string]float64 `json:"archetypes,omitempty"`
	Shadows    []ShadowTag        `json:"shadows,omitempty"`

	Awareness         *float64 `json:"awareness,omitempty"`
	IntegrationDepth  *float64 `json:"integration_depth,omitempty"`
	EvolutionVelocity *float64 `json:"evolution_velocity,omitempty"`
	Authenticity      *float64 `json:"authenticity,omitempty"`
}
