package analytics

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/kinetic/internal/domain"
	"example.com/kinetic/internal/persistence/memory"
)

func syntheticCurve(cp, wp, k float64) []domain.PowerCurvePoint {
	now := time.Now().UTC()
	points := make([]domain.PowerCurvePoint, 0, len(CurveDurations))
	for _, d := range CurveDurations {
		points = append(points, domain.PowerCurvePoint{
			DurationS:  d,
			Watts:      cp + wp/(float64(d)-k),
			ComputedAt: now,
		})
	}
	return points
}

func TestFitCriticalPowerRecoversKnownModel(t *testing.T) {
	model, err := FitCriticalPower(syntheticCurve(280, 20000, 0))
	require.NoError(t, err)

	assert.InDelta(t, 280, model.CriticalPower, 2)
	assert.InDelta(t, 20000, model.WPrime, 500)
	assert.InDelta(t, 0, model.K, 1)
	assert.Less(t, model.MSE, 1.0)
}

func TestFitCriticalPowerRecoversShiftedAsymptote(t *testing.T) {
	model, err := FitCriticalPower(syntheticCurve(250, 18000, -30))
	require.NoError(t, err)

	assert.InDelta(t, 250, model.CriticalPower, 3)
	assert.InDelta(t, -30, model.K, 2)
}

func TestFitCriticalPowerNeedsAllEffortBands(t *testing.T) {
	now := time.Now().UTC()
	shortOnly := []domain.PowerCurvePoint{
		{DurationS: 5, Watts: 900, ComputedAt: now},
		{DurationS: 30, Watts: 600, ComputedAt: now},
		{DurationS: 60, Watts: 450, ComputedAt: now},
	}
	_, err := FitCriticalPower(shortOnly)
	assert.ErrorIs(t, err, ErrInsufficientCurve)
}

func TestRefreshCriticalPowerUpdatesProfile(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.UpsertUser(ctx, domain.User{ID: "user-1", WeightKG: 70}))
	require.NoError(t, store.ReplacePowerCurve(ctx, "user-1", "cycling", syntheticCurve(280, 20000, 0)))

	engine := NewEngine(store, WithLogger(log.New(io.Discard, "", 0)))
	require.NoError(t, engine.RefreshCriticalPower(ctx, "user-1", "cycling"))

	user, err := store.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 280, user.CriticalPower, 2)
	assert.InDelta(t, 20000, user.WPrime, 500)
	assert.InDelta(t, 70, user.WeightKG, 0.001)
}

func TestRefreshCriticalPowerSkipsSparseCurve(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.UpsertUser(ctx, domain.User{ID: "user-1", CriticalPower: 260}))

	engine := NewEngine(store, WithLogger(log.New(io.Discard, "", 0)))
	require.NoError(t, engine.RefreshCriticalPower(ctx, "user-1", "cycling"))

	user, err := store.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 260, user.CriticalPower, 0.001, "no curve leaves the profile untouched")
}

func TestCPModelPowerAt(t *testing.T) {
	model := CPModel{CriticalPower: 300, WPrime: 15000, K: 0}
	assert.InDelta(t, 350, model.PowerAt(300), 0.01)
	assert.InDelta(t, 304.17, model.PowerAt(3600), 0.01)
}
