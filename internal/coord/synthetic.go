package coord

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/abelbrown/collective/internal/signal"
)

// phrases per element, indexed like signal.Elements.
var phrases = [signal.NumElements][]string{
	signal.Fire:   {"I feel the passion to create", "something wants to transform", "the energy is ready to ignite"},
	signal.Water:  {"I let the grief flow", "my intuition says release it", "I want to connect and heal"},
	signal.Earth:  {"I need to ground this", "building a stable foundation", "my body wants something real"},
	signal.Air:    {"I think I finally understand", "there's clarity in this perspective", "I need space to breathe"},
	signal.Aether: {"it all feels like unity", "holding the paradox", "something sacred and beyond"},
}

var shadowKinds = []string{"fear", "anger", "shame", "grief", "control"}

var phaseOrder = []string{
	"initiation", "exploration", "challenge",
	"transformation", "integration", "mastery", "transcendence",
}

// Synthetic is a simulated participant. Each poll yields one interaction
// whose indices drift as a bounded random walk.
type Synthetic struct {
	id string

	mu      sync.Mutex
	rng     *rand.Rand
	favored signal.Element
	phase   int
	aw, vel float64
	seq     int
}

// NewSynthetic creates a participant. The same seed yields the same
// sequence of interactions.
func NewSynthetic(id string, seed int64) *Synthetic {
	rng := rand.New(rand.NewSource(seed))
	return &Synthetic{
		id:      id,
		rng:     rng,
		favored: signal.Elements[rng.Intn(signal.NumElements)],
		phase:   rng.Intn(3),
		aw:      0.3 + 0.4*rng.Float64(),
		vel:     0.2 + 0.4*rng.Float64(),
	}
}

// Name implements Source.
func (s *Synthetic) Name() string { return s.id }

// Poll implements Source.
func (s *Synthetic) Poll(ctx context.Context) ([]signal.Interaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.aw = walk(s.rng, s.aw, 0.08)
	s.vel = walk(s.rng, s.vel, 0.12)
	if s.rng.Float64() < 0.1 && s.phase < len(phaseOrder)-1 {
		s.phase++
	}
	s.seq++

	el := s.favored
	if s.rng.Float64() < 0.3 {
		el = signal.Elements[s.rng.Intn(signal.NumElements)]
	}
	bank := phrases[el]
	text := []string{bank[s.rng.Intn(len(bank))], bank[s.rng.Intn(len(bank))]}
	if s.aw > 0.6 {
		text = append(text, "I notice it more now")
	}

	aw, vel := s.aw, s.vel
	depth := 0.3 + 0.4*s.rng.Float64()
	in := signal.Interaction{
		ParticipantID: s.id,
		SessionID:     fmt.Sprintf("%s-%d", s.id, s.seq),
		Text:          strings.Join(text, ". "),
		Meta: signal.Metadata{
			Phase:             phaseOrder[s.phase],
			Awareness:         &aw,
			EvolutionVelocity: &vel,
			IntegrationDepth:  &depth,
		},
	}
	if s.rng.Float64() < 0.2 {
		in.Meta.Shadows = []signal.ShadowTag{{
			Kind:       shadowKinds[s.rng.Intn(len(shadowKinds))],
			Intensity:  0.3 + 0.5*s.rng.Float64(),
			Acceptance: s.rng.Float64(),
		}}
	}
	return []signal.Interaction{in}, nil
}

// walk steps v by at most step and keeps it in [0.05, 0.95].
func walk(rng *rand.Rand, v, step float64) float64 {
	v += (rng.Float64()*2 - 1) * step
	if v < 0.05 {
		return 0.05
	}
	if v > 0.95 {
		return 0.95
	}
	return v
}
