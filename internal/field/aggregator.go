package field

import (
	"time"

	"github.com/abelbrown/collective/internal/signal"
	"github.com/abelbrown/collective/internal/window"
)

// Aggregator owns the current field state. Not safe for concurrent use; the
// engine loop is its only writer and hands out State copies.
type Aggregator struct {
	tuning     Tuning
	state      State
	growthRate float64
}

// NewAggregator creates an aggregator in the neutral state.
func NewAggregator(t Tuning) *Aggregator {
	return &Aggregator{tuning: t, state: Neutral(t)}
}

// Tuning returns the constants in use.
func (a *Aggregator) Tuning() Tuning {
	return a.tuning
}

// State returns a copy of the current field state.
func (a *Aggregator) State() State {
	return a.state.Clone()
}

// SetGrowthRate records the evolution-velocity aggregate supplied by a
// collaborator. It is picked up by the next Recompute.
func (a *Aggregator) SetGrowthRate(v float64) {
	a.growthRate = signal.Unit(v)
}

// Significant reports whether p should trigger an immediate recompute.
func (a *Aggregator) Significant(p signal.StreamPoint) bool {
	return p.Awareness > a.tuning.SignificantAwareness ||
		p.EvolutionVelocity > a.tuning.SignificantVelocity
}

// Observe applies the O(1) incremental update for one ingested point:
// exponential smoothing of AverageAwareness and each balance component.
func (a *Aggregator) Observe(p signal.StreamPoint) {
	alpha := signal.Unit(a.tuning.Alpha)
	s := &a.state
	s.AverageAwareness = signal.Unit((1-alpha)*s.AverageAwareness + alpha*signal.Unit(p.Awareness))

	sig := p.Signature.Normalize()
	var blended signal.Signature
	for i := range blended {
		blended[i] = (1-alpha)*s.ElementalBalance[i] + alpha*sig[i]
	}
	s.ElementalBalance = blended.Normalize()
}

// Recompute rebuilds every metric from snap as of now. An empty snapshot
// keeps the previously derived metrics but zeroes the counts, since nothing
// is left in the window. Returns false when the snapshot was empty.
func (a *Aggregator) Recompute(snap window.Snapshot, now time.Time) bool {
	t := a.tuning
	a.state.Timestamp = now
	a.state.LastRecompute = now
	a.state.Recomputes++

	pts := snap.Points
	n := len(pts)
	if n == 0 {
		a.state.TotalParticipants = 0
		a.state.ActiveCount = 0
		return false
	}

	s := State{
		Timestamp:     now,
		LastRecompute: now,
		Recomputes:    a.state.Recomputes,
		ActiveCount:   n,
	}

	participants := make(map[string]struct{}, n)
	awareness := make([]float64, n)
	var (
		sigSum        signal.Signature
		velocitySum   float64
		authSum       float64
		integrSum     float64
		shadowCarrier int
		highAware     int
		highVelocity  int
		breakthroughs int
		phaseCounts   = make(map[signal.Phase]int)
	)

	for i, p := range pts {
		participants[p.ParticipantID] = struct{}{}
		aw := signal.Unit(p.Awareness)
		vel := signal.Unit(p.EvolutionVelocity)
		awareness[i] = aw
		sig := p.Signature.Normalize()
		for e := range sigSum {
			sigSum[e] += sig[e]
		}
		velocitySum += vel
		authSum += signal.Unit(p.Authenticity)
		integrSum += signal.Unit(p.IntegrationDepth)
		phaseCounts[p.Phase]++
		if p.HasShadow() {
			shadowCarrier++
		}
		if aw > t.BreakthroughCutoff {
			highAware++
		}
		if vel > t.BreakthroughCutoff {
			highVelocity++
		}
		if vel > t.IntegrationCutoff {
			breakthroughs++
		}
	}

	count := float64(n)
	s.TotalParticipants = len(participants)

	// Mean signature, renormalized.
	for e := range sigSum {
		sigSum[e] /= count
	}
	s.ElementalBalance = sigSum.Normalize()
	s.AverageAwareness = signal.Unit(signal.Mean(awareness))

	s.Coherence = a.coherence(awareness, s.ElementalBalance, phaseCounts, n)

	s.DominantArchetypes, s.EmergingArchetypes, s.ShadowArchetypes = a.archetypes(pts)

	s.Complexity = signal.Unit((ratio(s.TotalParticipants, t.ParticipantCap) +
		ratio(len(s.DominantArchetypes)+len(s.EmergingArchetypes), t.ArchetypeCap) +
		velocitySum/count) / 3)

	s.HealingCapacity = signal.Unit((float64(shadowCarrier)/count + authSum/count + s.Coherence) / 3)

	s.GrowthRate = a.growthRate

	s.BreakthroughPotential = signal.Unit(t.BreakthroughGain * s.Coherence *
		float64(highAware+highVelocity) / (2 * count))

	s.IntegrationNeed = signal.Unit(t.IntegrationGain * (float64(breakthroughs) / count) *
		(1 - integrSum/count))

	a.state = s
	return true
}

// coherence averages awareness uniformity, elemental harmony and phase
// alignment. Fewer than two points yield the neutral value.
func (a *Aggregator) coherence(awareness []float64, balance signal.Signature, phases map[signal.Phase]int, n int) float64 {
	if n < 2 {
		return signal.Unit(a.tuning.NeutralCoherence)
	}
	awarenessScore := signal.Uniformity(awareness)
	harmony := signal.Unit(1 - 2*signal.StdDev(balance[:]))

	var top int
	for _, c := range phases {
		if c > top {
			top = c
		}
	}
	alignment := float64(top) / float64(n)
	return signal.Unit((awarenessScore + harmony + alignment) / 3)
}

// archetypes buckets mean activations into dominant and emerging maps and
// builds the shadow-weighted map from shadow-carrying points only.
func (a *Aggregator) archetypes(pts []signal.StreamPoint) (dominant, emerging, shadow map[string]float64) {
	t := a.tuning
	totals := make(map[string]float64)
	shadowTotals := make(map[string]float64)
	for _, p := range pts {
		for name, v := range p.Archetypes {
			v = signal.Unit(v)
			totals[name] += v
			if p.HasShadow() {
				shadowTotals[name] += v * t.ShadowWeight
			}
		}
	}

	count := float64(max(len(pts), 1))
	for name, sum := range totals {
		mean := signal.Unit(sum / count)
		switch {
		case mean > t.DominantThreshold:
			if dominant == nil {
				dominant = make(map[string]float64)
			}
			dominant[name] = mean
		case mean > t.EmergingThreshold:
			if emerging == nil {
				emerging = make(map[string]float64)
			}
			emerging[name] = mean
		}
	}
	for name, sum := range shadowTotals {
		if mean := signal.Unit(sum / count); mean > 0 {
			if shadow == nil {
				shadow = make(map[string]float64)
			}
			shadow[name] = mean
		}
	}
	return dominant, emerging, shadow
}

// Resonance measures how close individual points sit to the aggregate:
// per point, the mean of signature closeness and awareness closeness,
// averaged over all points. An empty slice yields 0.
func Resonance(pts []signal.StreamPoint, s State) float64 {
	if len(pts) == 0 {
		return 0
	}
	var total float64
	for _, p := range pts {
		elem := p.Signature.Normalize().Closeness(s.ElementalBalance)
		d := signal.Unit(p.Awareness) - s.AverageAwareness
		if d < 0 {
			d = -d
		}
		total += (elem + (1 - d)) / 2
	}
	return signal.Unit(total / float64(len(pts)))
}

// ratio returns n/limit capped at 1. A non-positive limit counts as 1.
func ratio(n, limit int) float64 {
	if limit <= 0 {
		limit = 1
	}
	return signal.Unit(float64(n) / float64(limit))
}
