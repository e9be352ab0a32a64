package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/kinetic/internal/domain"
	"example.com/kinetic/internal/persistence/memory"
)

func TestBestMeanPowersHourWithTwentyMinutePeak(t *testing.T) {
	// One hour at 200W average holding 250W for the middle twenty minutes.
	power := make([]float64, 3600)
	for i := range power {
		power[i] = 175
	}
	for i := 1200; i < 2400; i++ {
		power[i] = 250
	}

	best := bestMeanPowers(power, CurveDurations)

	assert.InDelta(t, 250, best[1200], 1)
	assert.InDelta(t, 200, best[3600], 1)
	// Nothing in the series spans ninety minutes.
	_, ok := best[5400]
	assert.False(t, ok)
}

func TestBestMeanPowersMonotonicByDuration(t *testing.T) {
	power := make([]float64, 2000)
	for i := range power {
		power[i] = float64(100 + (i*37)%200)
	}

	best := bestMeanPowers(power, CurveDurations)

	prev := best[CurveDurations[0]]
	for _, d := range CurveDurations[1:] {
		w, ok := best[d]
		if !ok {
			continue
		}
		assert.LessOrEqual(t, w, prev, "duration %d", d)
		prev = w
	}
}

func TestBestMeanPowersEmptySeries(t *testing.T) {
	assert.Empty(t, bestMeanPowers(nil, CurveDurations))
}

func seedActivity(t *testing.T, store *memory.Store, id, userID string, start time.Time, power []float64) {
	t.Helper()
	streams := make([]domain.StreamSample, len(power))
	for i := range power {
		w := int(power[i])
		streams[i] = domain.StreamSample{
			Time:       start.Add(time.Duration(i) * time.Second),
			ActivityID: id,
			Sequence:   i,
			PowerW:     &w,
		}
	}
	require.NoError(t, store.UpsertActivity(context.Background(), domain.ActivityBundle{
		Activity: domain.Activity{ID: id, UserID: userID, StartDate: start, SportType: "cycling", DurationS: float64(len(power))},
		Streams:  streams,
	}))
}

func constantPower(n int, watts float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = watts
	}
	return out
}

func TestRecomputePowerCurveMergesAcrossActivities(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertUser(ctx, domain.User{ID: "user-1"}))

	base := time.Date(2024, 7, 1, 6, 0, 0, 0, time.UTC)
	// Short hard effort and a long steady one: each should own part of the curve.
	seedActivity(t, store, "act-short", "user-1", base, constantPower(120, 400))
	seedActivity(t, store, "act-long", "user-1", base.AddDate(0, 0, 1), constantPower(1500, 260))

	engine := NewEngine(store)
	require.NoError(t, engine.RecomputePowerCurve(ctx, "user-1", "cycling"))

	curve, err := store.GetPowerCurve(ctx, "user-1", "cycling")
	require.NoError(t, err)

	byDuration := make(map[int]float64, len(curve))
	for _, p := range curve {
		byDuration[p.DurationS] = p.Watts
	}
	assert.InDelta(t, 400, byDuration[60], 0.5)
	assert.InDelta(t, 400, byDuration[120], 0.5)
	assert.InDelta(t, 260, byDuration[300], 0.5)
	assert.InDelta(t, 260, byDuration[1200], 0.5)
	_, ok := byDuration[3600]
	assert.False(t, ok, "no activity spans an hour")

	// Monotonicity must survive the merge.
	for i := 1; i < len(curve); i++ {
		assert.LessOrEqual(t, curve[i].Watts, curve[i-1].Watts)
	}
}

func TestRecomputePowerCurveReplacesPrevious(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertUser(ctx, domain.User{ID: "user-1"}))

	stale := []domain.PowerCurvePoint{{DurationS: 9999, Watts: 999, ComputedAt: time.Now().UTC()}}
	require.NoError(t, store.ReplacePowerCurve(ctx, "user-1", "cycling", stale))

	base := time.Date(2024, 7, 1, 6, 0, 0, 0, time.UTC)
	seedActivity(t, store, "act-1", "user-1", base, constantPower(60, 300))

	engine := NewEngine(store)
	require.NoError(t, engine.RecomputePowerCurve(ctx, "user-1", "cycling"))

	curve, err := store.GetPowerCurve(ctx, "user-1", "cycling")
	require.NoError(t, err)
	for _, p := range curve {
		assert.NotEqual(t, 9999, p.DurationS, "stale entries must not survive a recompute")
	}
}

func TestRecomputePowerCurveHonorsCancellation(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertUser(ctx, domain.User{ID: "user-1"}))
	seedActivity(t, store, "act-1", "user-1", time.Date(2024, 7, 1, 6, 0, 0, 0, time.UTC), constantPower(60, 300))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	err := NewEngine(store).RecomputePowerCurve(cancelled, "user-1", "cycling")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecomputePowerCurveHonorsConfiguredTimeout(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertUser(ctx, domain.User{ID: "user-1"}))
	seedActivity(t, store, "act-1", "user-1", time.Date(2024, 7, 1, 6, 0, 0, 0, time.UTC), constantPower(60, 300))

	engine := NewEngine(store, WithRecomputeTimeout(time.Nanosecond))
	err := engine.RecomputePowerCurve(ctx, "user-1", "cycling")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
