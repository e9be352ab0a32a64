package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/kinetic/internal/domain"
	"example.com/kinetic/internal/persistence/memory"
	"example.com/kinetic/internal/query"
)

func newFixture(t *testing.T) (*query.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertUser(ctx, domain.User{ID: "user-1"}))

	base := time.Date(2024, 7, 1, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		hr := 150
		power := 220
		id := "act-" + string(rune('1'+i))
		bundle := domain.ActivityBundle{
			Activity: domain.Activity{
				ID:        id,
				UserID:    "user-1",
				StartDate: base.AddDate(0, 0, i),
				SportType: "cycling",
				DurationS: 3600,
			},
			Streams: []domain.StreamSample{
				{Time: base.AddDate(0, 0, i), ActivityID: id, Sequence: 0, HeartRate: &hr, PowerW: &power},
			},
		}
		require.NoError(t, store.UpsertActivity(ctx, bundle))
	}
	return query.NewService(store), store
}

func TestListActivitiesDefaultsAndOrder(t *testing.T) {
	svc, _ := newFixture(t)

	acts, err := svc.ListActivities(context.Background(), domain.ActivityFilter{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, acts, 3)
	assert.Equal(t, "act-3", acts[0].ID, "newest first")
}

func TestListActivitiesRejectsBadPagination(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	_, err := svc.ListActivities(ctx, domain.ActivityFilter{Limit: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = svc.ListActivities(ctx, domain.ActivityFilter{Limit: query.MaxListLimit + 1})
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = svc.ListActivities(ctx, domain.ActivityFilter{Offset: -5})
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}

func TestListActivitiesRejectsInvertedWindow(t *testing.T) {
	svc, _ := newFixture(t)
	start := time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC)

	_, err := svc.ListActivities(context.Background(), domain.ActivityFilter{
		Start: start,
		End:   start.AddDate(0, 0, -1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}

func TestGetActivity(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	act, err := svc.GetActivity(ctx, "act-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", act.UserID)

	_, err = svc.GetActivity(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetActivity(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}

func TestGetStreamsValidatesProjection(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	streams, err := svc.GetStreams(ctx, "act-1", domain.StreamQuery{
		Fields: []string{domain.FieldHeartRate, domain.FieldPower},
	})
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.NotNil(t, streams[0].HeartRate)
	assert.NotNil(t, streams[0].PowerW)

	_, err = svc.GetStreams(ctx, "act-1", domain.StreamQuery{Fields: []string{"watts"}})
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = svc.GetStreams(ctx, "", domain.StreamQuery{})
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}

func TestGetPowerCurveRequiresKeys(t *testing.T) {
	svc, store := newFixture(t)
	ctx := context.Background()

	_, err := svc.GetPowerCurve(ctx, "", "cycling")
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = svc.GetPowerCurve(ctx, "user-1", "cycling")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	now := time.Now().UTC()
	require.NoError(t, store.ReplacePowerCurve(ctx, "user-1", "cycling", []domain.PowerCurvePoint{
		{DurationS: 60, Watts: 320, ComputedAt: now},
	}))
	curve, err := svc.GetPowerCurve(ctx, "user-1", "cycling")
	require.NoError(t, err)
	assert.Len(t, curve, 1)
}
