package replay

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelbrown/collective/internal/engine"
	"github.com/abelbrown/collective/internal/pattern"
	"github.com/abelbrown/collective/internal/signal"
	"github.com/abelbrown/collective/internal/store"
)

var t0 = time.Date(2026, 5, 4, 20, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

func record(t *testing.T, id string, at time.Time, aw float64, shadow bool) string {
	t.Helper()
	in := signal.Interaction{
		ParticipantID: id,
		ObservedAt:    at,
		Meta: signal.Metadata{
			Phase:             "challenge",
			Awareness:         f(aw),
			EvolutionVelocity: f(0.5),
			IntegrationDepth:  f(0.5),
			Authenticity:      f(0.5),
		},
	}
	if shadow {
		in.Meta.Shadows = []signal.ShadowTag{{Kind: "fear", Intensity: 0.6}}
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	return string(b)
}

func shadowLines(t *testing.T) []string {
	return []string{
		record(t, "a", t0, 0.75, true),
		record(t, "b", t0.Add(time.Second), 0.78, true),
		record(t, "c", t0.Add(2*time.Second), 0.82, true),
		record(t, "d", t0.Add(3*time.Second), 0.85, true),
	}
}

func testOptions() engine.Options {
	opts := engine.DefaultOptions()
	opts.WindowSize = 5 * time.Minute
	opts.RecomputeInterval = 10 * time.Second
	return opts
}

func TestReplayDetectsPattern(t *testing.T) {
	input := strings.Join(shadowLines(t), "\n")

	res, err := Run(context.Background(), strings.NewReader(input), testOptions())
	require.NoError(t, err)

	assert.Equal(t, 4, res.Records)
	assert.Zero(t, res.Skipped)
	assert.True(t, res.Start.Equal(t0))
	assert.True(t, res.End.Equal(t0.Add(3*time.Second)))
	assert.Equal(t, 4, res.State.TotalParticipants)

	require.Len(t, res.Patterns, 1)
	assert.Equal(t, pattern.ShadowIntegration, res.Patterns[0].Type)
	assert.Equal(t, []string{"a", "b", "c", "d"}, res.Patterns[0].ParticipantIDs)
	assert.NotEmpty(t, res.Active)
	assert.NotEmpty(t, res.Ledger)
	assert.Equal(t, uint64(4), res.Health.Ingested)
	assert.False(t, res.Health.Running)
}

func TestReplaySkipsMalformedLines(t *testing.T) {
	lines := shadowLines(t)
	input := strings.Join([]string{
		"# recorded 2026-05-04",
		lines[0],
		"",
		"{not json",
		lines[1],
		"   ",
		lines[2],
	}, "\n")

	res, err := Run(context.Background(), strings.NewReader(input), testOptions())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Records)
	assert.Equal(t, 1, res.Skipped)
}

func TestReplayEmptyInput(t *testing.T) {
	res, err := Run(context.Background(), strings.NewReader(""), testOptions())
	require.NoError(t, err)
	assert.Zero(t, res.Records)
	assert.Equal(t, 0.5, res.State.Coherence)
	assert.Empty(t, res.Patterns)
}

// A record far past the window evicts everything before it.
func TestReplayAdvancesClockAndEvicts(t *testing.T) {
	lines := append(shadowLines(t), record(t, "late", t0.Add(10*time.Minute), 0.5, false))

	res, err := Run(context.Background(), strings.NewReader(strings.Join(lines, "\n")), testOptions())
	require.NoError(t, err)

	assert.True(t, res.End.Equal(t0.Add(10*time.Minute)))
	assert.Equal(t, 1, res.State.ActiveCount)
	assert.Equal(t, 1, res.State.TotalParticipants)
	assert.Empty(t, res.Patterns)
	assert.Greater(t, res.Health.Evicted, uint64(0))
}

func TestReplayStampsUntimedRecords(t *testing.T) {
	untimed, err := json.Marshal(signal.Interaction{ParticipantID: "z"})
	require.NoError(t, err)
	lines := []string{record(t, "a", t0, 0.5, false), string(untimed)}

	res, err := Run(context.Background(), strings.NewReader(strings.Join(lines, "\n")), testOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 2, res.State.TotalParticipants)
	assert.True(t, res.End.Equal(t0))
}

func TestReplaySeedsClockFromFirstTimestamp(t *testing.T) {
	untimed, err := json.Marshal(signal.Interaction{ParticipantID: "early"})
	require.NoError(t, err)
	lines := []string{string(untimed), record(t, "a", t0, 0.5, false), record(t, "b", t0.Add(time.Minute), 0.5, false)}

	res, err := Run(context.Background(), strings.NewReader(strings.Join(lines, "\n")), testOptions())
	require.NoError(t, err)
	assert.True(t, res.Start.Equal(t0), "start = %v", res.Start)
	assert.True(t, res.End.Equal(t0.Add(time.Minute)))
	assert.Equal(t, 3, res.Records)
	assert.Equal(t, 3, res.State.TotalParticipants)
	assert.Zero(t, res.Health.Expired)
}

func TestReplayArchives(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	opts := testOptions()
	opts.Archive = st
	res, err := Run(context.Background(), strings.NewReader(strings.Join(shadowLines(t), "\n")), opts)
	require.NoError(t, err)
	assert.Greater(t, res.Health.ArchiveWritten, uint64(0))

	got, err := st.RecentPatterns(context.Background(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, pattern.ShadowIntegration, got[0].Type)
}

func TestReplayCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, strings.NewReader(strings.Join(shadowLines(t), "\n")), testOptions())
	assert.ErrorIs(t, err, context.Canceled)
}
