package pattern

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/abelbrown/collective/internal/field"
	"github.com/abelbrown/collective/internal/signal"
	"github.com/abelbrown/collective/internal/window"
)

// Detector clusters stream points by similarity and classifies the clusters.
// It holds no mutable state and is safe for concurrent use.
type Detector struct {
	tuning Tuning
	newID  func() string
}

// NewDetector creates a Detector.
func NewDetector(t Tuning) *Detector {
	if t.MinParticipants < 1 {
		t.MinParticipants = 1
	}
	if t.MetaMinimum < 2 {
		t.MetaMinimum = 2
	}
	return &Detector{tuning: t, newID: uuid.NewString}
}

// Tuning returns the constants in use.
func (d *Detector) Tuning() Tuning {
	return d.tuning
}

// Detect runs one detection pass over snap against the field state s and
// returns first-order patterns followed by any meta-patterns. now stamps
// DetectedAt. Detect never fails: malformed points score with neutral
// values and are never dropped.
func (d *Detector) Detect(snap window.Snapshot, s field.State, now time.Time) []Pattern {
	var patterns []Pattern
	for _, group := range d.Cluster(snap.Points) {
		c, ok := d.candidate(group)
		if !ok {
			continue
		}
		patterns = append(patterns, d.finish(c, s, now))
	}
	return append(patterns, d.meta(patterns, now)...)
}

// Similarity scores how alike two points are, in [0, 1]. The factors are
// phase equality, awareness closeness and signature closeness, plus the
// shadow bonus (weighted into the counter too) when both carry shadows.
// Symmetric in a and b.
func (d *Detector) Similarity(a, b signal.StreamPoint) float64 {
	var sum, factors float64

	if a.Phase == b.Phase {
		sum++
	}
	factors++

	sum += 1 - absDiff(signal.Unit(a.Awareness), signal.Unit(b.Awareness))
	factors++

	sum += a.Signature.Normalize().Closeness(b.Signature.Normalize())
	factors++

	if a.HasShadow() && b.HasShadow() {
		sum += d.tuning.ShadowBonus
		factors += d.tuning.ShadowBonus
	}
	if factors <= 0 {
		return 0
	}
	return signal.Unit(sum / factors)
}

// Cluster groups points greedily in buffer order: each unclustered point
// seeds a group and absorbs every later unclustered point whose similarity
// to the seed exceeds the threshold. Singletons are discarded. O(n²); the
// window bounds n by time, and a metric index can replace this loop without
// changing Similarity.
func (d *Detector) Cluster(pts []signal.StreamPoint) [][]signal.StreamPoint {
	used := make([]bool, len(pts))
	var groups [][]signal.StreamPoint
	for i := range pts {
		if used[i] {
			continue
		}
		used[i] = true
		group := []signal.StreamPoint{pts[i]}
		for j := i + 1; j < len(pts); j++ {
			if used[j] {
				continue
			}
			if d.Similarity(pts[i], pts[j]) > d.tuning.SimilarityThreshold {
				used[j] = true
				group = append(group, pts[j])
			}
		}
		if len(group) > 1 {
			groups = append(groups, group)
		}
	}
	return groups
}

// Classify assigns a pattern type by fixed priority: shadow integration,
// rapid evolution, consciousness elevation, then coherence building.
func (d *Detector) Classify(group []signal.StreamPoint) Type {
	if len(group) == 0 {
		return CoherenceBuilding
	}
	var shadows int
	aw := make([]float64, len(group))
	vel := make([]float64, len(group))
	for i, p := range group {
		if p.HasShadow() {
			shadows++
		}
		aw[i] = signal.Unit(p.Awareness)
		vel[i] = signal.Unit(p.EvolutionVelocity)
	}
	t := d.tuning
	switch {
	case float64(shadows)/float64(len(group)) >= t.ShadowShare:
		return ShadowIntegration
	case signal.Mean(vel) > t.RapidEvolutionVelocity:
		return RapidEvolution
	case signal.Mean(aw) > t.ElevationAwareness:
		return ConsciousnessElevation
	default:
		return CoherenceBuilding
	}
}

// Strength scores a group: the amplified mean of its coherence (uniformity
// of awareness, velocity and integration depth) and its mean intensity.
func (d *Detector) Strength(group []signal.StreamPoint) float64 {
	if len(group) == 0 {
		return 0
	}
	aw := make([]float64, len(group))
	vel := make([]float64, len(group))
	depth := make([]float64, len(group))
	for i, p := range group {
		aw[i] = signal.Unit(p.Awareness)
		vel[i] = signal.Unit(p.EvolutionVelocity)
		depth[i] = signal.Unit(p.IntegrationDepth)
	}
	coherence := (signal.Uniformity(aw) + signal.Uniformity(vel) + signal.Uniformity(depth)) / 3
	return signal.Unit(d.tuning.StrengthGain * (coherence + meanIntensity(group)) / 2)
}

// Impact weighs a pattern by how strongly its members move and how well the
// group aligns with the current field.
func (d *Detector) Impact(group []signal.StreamPoint, sig signal.Signature, strength float64, s field.State) float64 {
	if len(group) == 0 {
		return 0
	}
	aw := make([]float64, len(group))
	for i, p := range group {
		aw[i] = signal.Unit(p.Awareness)
	}
	alignment := (sig.Closeness(s.ElementalBalance) +
		(1 - absDiff(signal.Mean(aw), signal.Unit(s.AverageAwareness)))) / 2
	return signal.Unit(meanIntensity(group) * alignment * signal.Unit(strength))
}

// candidate applies the participant filter and classifies the group.
func (d *Detector) candidate(group []signal.StreamPoint) (candidate, bool) {
	participants := distinctParticipants(group)
	if len(participants) < d.tuning.MinParticipants {
		return candidate{}, false
	}
	return candidate{
		typ:          d.Classify(group),
		members:      group,
		strength:     d.Strength(group),
		signature:    meanSignature(group),
		archetypes:   meanArchetypes(group),
		participants: participants,
	}, true
}

func (d *Detector) finish(c candidate, s field.State, now time.Time) Pattern {
	desc := descriptors[c.typ]
	return Pattern{
		ID:              d.newID(),
		Type:            c.typ,
		Strength:        c.strength,
		Impact:          d.Impact(c.members, c.signature, c.strength, s),
		ParticipantIDs:  c.participants,
		Members:         len(c.members),
		Timeframe:       span(c.members),
		Signature:       c.signature,
		Archetypes:      c.archetypes,
		DetectedAt:      now,
		ProgressionNote: desc.progression,
		SupportNeeds:    append([]string(nil), desc.support...),
		TimingNote:      desc.timing,
	}
}

// meta folds concurrent same-type first-order patterns into one
// consciousness_leap each: union of participants, amplified mean strength,
// capped sum of impacts.
func (d *Detector) meta(first []Pattern, now time.Time) []Pattern {
	byType := make(map[Type][]Pattern)
	var order []Type
	for _, p := range first {
		if p.IsMeta() {
			continue
		}
		if _, ok := byType[p.Type]; !ok {
			order = append(order, p.Type)
		}
		byType[p.Type] = append(byType[p.Type], p)
	}

	desc := descriptors[ConsciousnessLeap]
	var out []Pattern
	for _, typ := range order {
		group := byType[typ]
		if len(group) < d.tuning.MetaMinimum {
			continue
		}
		var (
			strengths []float64
			impact    float64
			members   int
			sig       signal.Signature
			ids       []string
			tf        = group[0].Timeframe
			seen      = make(map[string]bool)
			people    []string
			arch      = make(map[string]float64)
		)
		for _, p := range group {
			strengths = append(strengths, p.Strength)
			impact += p.Impact
			members += p.Members
			ids = append(ids, p.ID)
			for e := range sig {
				sig[e] += p.Signature[e]
			}
			for k, v := range p.Archetypes {
				arch[k] += v / float64(len(group))
			}
			for _, id := range p.ParticipantIDs {
				if !seen[id] {
					seen[id] = true
					people = append(people, id)
				}
			}
			if p.Timeframe.Start.Before(tf.Start) {
				tf.Start = p.Timeframe.Start
			}
			if p.Timeframe.End.After(tf.End) {
				tf.End = p.Timeframe.End
			}
		}
		sort.Strings(people)
		if len(arch) == 0 {
			arch = nil
		}
		out = append(out, Pattern{
			ID:              d.newID(),
			Type:            ConsciousnessLeap,
			Strength:        signal.Unit(d.tuning.MetaGain * signal.Mean(strengths)),
			Impact:          signal.Unit(impact),
			ParticipantIDs:  people,
			Members:         members,
			Timeframe:       tf,
			Signature:       sig.Normalize(),
			Archetypes:      arch,
			DetectedAt:      now,
			Sources:         ids,
			ProgressionNote: desc.progression + " (" + string(typ) + ")",
			SupportNeeds:    append([]string(nil), desc.support...),
			TimingNote:      desc.timing,
		})
	}
	return out
}

func meanIntensity(group []signal.StreamPoint) float64 {
	vals := make([]float64, len(group))
	for i, p := range group {
		vals[i] = p.Intensity()
	}
	return signal.Mean(vals)
}

func meanSignature(group []signal.StreamPoint) signal.Signature {
	var sig signal.Signature
	for _, p := range group {
		n := p.Signature.Normalize()
		for e := range sig {
			sig[e] += n[e]
		}
	}
	return sig.Normalize()
}

func meanArchetypes(group []signal.StreamPoint) map[string]float64 {
	var out map[string]float64
	for _, p := range group {
		for k, v := range p.Archetypes {
			if out == nil {
				out = make(map[string]float64)
			}
			out[k] += signal.Unit(v) / float64(len(group))
		}
	}
	return out
}

// distinctParticipants returns the sorted unique participant ids.
func distinctParticipants(group []signal.StreamPoint) []string {
	seen := make(map[string]bool, len(group))
	var ids []string
	for _, p := range group {
		if !seen[p.ParticipantID] {
			seen[p.ParticipantID] = true
			ids = append(ids, p.ParticipantID)
		}
	}
	sort.Strings(ids)
	return ids
}

func span(group []signal.StreamPoint) Timeframe {
	if len(group) == 0 {
		return Timeframe{}
	}
	tf := Timeframe{Start: group[0].ObservedAt, End: group[0].ObservedAt}
	for _, p := range group[1:] {
		if p.ObservedAt.Before(tf.Start) {
			tf.Start = p.ObservedAt
		}
		if p.ObservedAt.After(tf.End) {
			tf.End = p.ObservedAt
		}
	}
	return tf
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
