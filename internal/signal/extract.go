package signal

import (
	"errors"
	"strconv"
	"strings"
)

// ErrNoParticipant is returned for interactions that cannot be attributed.
var ErrNoParticipant = errors.New("interaction has no participant id")

// Config holds tuning knobs for extraction heuristics.
type Config struct {
	HistoryDepth  int     `json:"history_depth"`  // points of per-participant history the engine keeps
	NeutralIndex  float64 `json:"neutral_index"`  // default for unmeasured awareness/integration/authenticity
	KeywordStep   float64 `json:"keyword_step"`   // awareness gained per reflective keyword hit
	PhaseStep     float64 `json:"phase_step"`     // velocity gained per forward phase step
	ShadowDefault float64 `json:"shadow_default"` // intensity for a bare shadow:<kind> tag
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HistoryDepth:  5,
		NeutralIndex:  0.5,
		KeywordStep:   0.1,
		PhaseStep:     0.25,
		ShadowDefault: 0.5,
	}
}

// WithDefaults fills every zero field from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	c.HistoryDepth = Or(c.HistoryDepth, d.HistoryDepth)
	c.NeutralIndex = Or(c.NeutralIndex, d.NeutralIndex)
	c.KeywordStep = Or(c.KeywordStep, d.KeywordStep)
	c.PhaseStep = Or(c.PhaseStep, d.PhaseStep)
	c.ShadowDefault = Or(c.ShadowDefault, d.ShadowDefault)
	return c
}

// Extractor converts raw interactions into stream points. It is stateless;
// callers pass the participant's recent history explicitly.
type Extractor struct {
	config Config
}

// NewExtractor creates an Extractor.
func NewExtractor(config Config) *Extractor {
	if config.NeutralIndex <= 0 || config.NeutralIndex > 1 {
		config.NeutralIndex = DefaultConfig().NeutralIndex
	}
	return &Extractor{config: config}
}

// Extract builds a StreamPoint from in. history holds the participant's
// previous points, oldest first. Missing fields get neutral defaults; only an
// empty participant id is an error.
func (x *Extractor) Extract(in Interaction, history []StreamPoint) (StreamPoint, error) {
	pid := strings.TrimSpace(in.ParticipantID)
	if pid == "" {
		return StreamPoint{}, ErrNoParticipant
	}

	tags := parseTags(in.Tags, x.config.ShadowDefault)
	tokens := tokenize(in.Text)

	var last *StreamPoint
	if len(history) > 0 {
		last = &history[len(history)-1]
	}

	p := StreamPoint{
		ParticipantID: pid,
		SourceID:      in.SessionID,
		ObservedAt:    in.ObservedAt,
		Signature:     x.signature(in, tokens, tags),
		Phase:         x.phase(in, tags, last),
		Archetypes:    x.archetypes(in, tags),
		Shadows:       x.shadows(in, tags),
	}

	p.Awareness = x.awareness(in, tokens)
	p.IntegrationDepth = x.integrationDepth(in, history)
	p.EvolutionVelocity = x.velocity(in, p, last)
	p.Authenticity = x.authenticity(in, tokens)
	return p, nil
}

func (x *Extractor) signature(in Interaction, tokens []string, tags parsedTags) Signature {
	var sig Signature
	if len(in.Meta.Elements) > 0 {
		for name, w := range in.Meta.Elements {
			if e, ok := ParseElement(name); ok {
				sig[e] += Sanitize(w)
			}
		}
		return sig.Normalize()
	}
	for _, e := range Elements {
		sig[e] = float64(countHits(tokens, elementLexicon[e]))
	}
	for _, e := range tags.elements {
		sig[e]++
	}
	return sig.Normalize()
}

func (x *Extractor) phase(in Interaction, tags parsedTags, last *StreamPoint) Phase {
	if ph := ParsePhase(in.Meta.Phase); ph != PhaseUnknown {
		return ph
	}
	if tags.phase != PhaseUnknown {
		return tags.phase
	}
	if last != nil {
		return last.Phase
	}
	return PhaseUnknown
}

func (x *Extractor) archetypes(in Interaction, tags parsedTags) map[string]float64 {
	if len(in.Meta.Archetypes) == 0 && len(tags.archetypes) == 0 {
		return nil
	}
	out := make(map[string]float64, len(in.Meta.Archetypes)+len(tags.archetypes))
	for name, v := range in.Meta.Archetypes {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out[name] = Unit(v)
	}
	for name, v := range tags.archetypes {
		if v > out[name] {
			out[name] = v
		}
	}
	return out
}

func (x *Extractor) shadows(in Interaction, tags parsedTags) []ShadowTag {
	var out []ShadowTag
	seen := make(map[string]bool)
	for _, s := range in.Meta.Shadows {
		kind := strings.TrimSpace(s.Kind)
		if kind == "" {
			kind = "unnamed"
		}
		seen[kind] = true
		out = append(out, ShadowTag{
			Kind:        kind,
			Intensity:   Unit(s.Intensity),
			Acceptance:  Unit(s.Acceptance),
			Integration: Unit(s.Integration),
		})
	}
	for _, s := range tags.shadows {
		if seen[s.Kind] {
			continue
		}
		seen[s.Kind] = true
		out = append(out, s)
	}
	return out
}

func (x *Extractor) awareness(in Interaction, tokens []string) float64 {
	if in.Meta.Awareness != nil {
		return Unit(*in.Meta.Awareness)
	}
	hits := countHits(tokens, reflectiveWords)
	return Unit(x.config.NeutralIndex + x.config.KeywordStep*float64(hits))
}

func (x *Extractor) integrationDepth(in Interaction, history []StreamPoint) float64 {
	if in.Meta.IntegrationDepth != nil {
		return Unit(*in.Meta.IntegrationDepth)
	}
	if len(history) == 0 {
		return x.config.NeutralIndex
	}
	vals := make([]float64, len(history))
	for i, h := range history {
		vals[i] = Unit(h.IntegrationDepth)
	}
	return Unit(Mean(vals))
}

// velocity measures how far the participant moved since their last point.
func (x *Extractor) velocity(in Interaction, p StreamPoint, last *StreamPoint) float64 {
	if in.Meta.EvolutionVelocity != nil {
		return Unit(*in.Meta.EvolutionVelocity)
	}
	if last == nil {
		return 0
	}
	delta := p.Awareness - last.Awareness
	if delta < 0 {
		delta = -delta
	}
	if p.Phase != PhaseUnknown && last.Phase != PhaseUnknown && p.Phase > last.Phase {
		delta += x.config.PhaseStep * float64(p.Phase-last.Phase)
	}
	return Unit(delta)
}

func (x *Extractor) authenticity(in Interaction, tokens []string) float64 {
	if in.Meta.Authenticity != nil {
		return Unit(*in.Meta.Authenticity)
	}
	if len(tokens) == 0 {
		return x.config.NeutralIndex
	}
	owned := countHits(tokens, ownershipWords)
	hedges := countHits(tokens, hedgeWords)
	return Unit(x.config.NeutralIndex + 0.1*float64(owned) - 0.15*float64(hedges))
}

// parsedTags is the structured view of an interaction's tag list.
type parsedTags struct {
	phase      Phase
	elements   []Element
	archetypes map[string]float64
	shadows    []ShadowTag
}

// parseTags reads "phase:x", "element:x", "archetype:x[=v]" and
// "shadow:x[=v]" tags. Anything else is ignored.
func parseTags(tags []string, shadowDefault float64) parsedTags {
	var out parsedTags
	for _, raw := range tags {
		key, rest, ok := strings.Cut(strings.TrimSpace(raw), ":")
		if !ok {
			continue
		}
		name, val, hasVal := strings.Cut(rest, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		weight := 1.0
		if hasVal {
			if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				weight = Unit(f)
			}
		}

		switch strings.ToLower(key) {
		case "phase":
			if ph := ParsePhase(name); ph != PhaseUnknown {
				out.phase = ph
			}
		case "element":
			if e, ok := ParseElement(name); ok {
				out.elements = append(out.elements, e)
			}
		case "archetype":
			if out.archetypes == nil {
				out.archetypes = make(map[string]float64)
			}
			if weight > out.archetypes[name] {
				out.archetypes[name] = weight
			}
		case "shadow":
			intensity := Unit(shadowDefault)
			if hasVal {
				intensity = weight
			}
			out.shadows = append(out.shadows, ShadowTag{Kind: name, Intensity: intensity})
		}
	}
	return out
}
