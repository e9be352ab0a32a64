package export

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"

	"example.com/kinetic/internal/domain"
	"example.com/kinetic/internal/persistence/memory"
)

func TestPowerCurveDatasetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.UpsertUser(ctx, domain.User{ID: "user-1"}))

	computed := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.ReplacePowerCurve(ctx, "user-1", "cycling", []domain.PowerCurvePoint{
		{DurationS: 60, Watts: 380, ComputedAt: computed},
		{DurationS: 300, Watts: 310, ComputedAt: computed},
		{DurationS: 1200, Watts: 270, ComputedAt: computed},
	}))

	data, err := NewExporter(store).PowerCurveDataset(ctx, "user-1", "cycling")
	require.NoError(t, err)
	require.NotEmpty(t, data)

	rows := readRows[powerCurveRow](t, data)
	require.Len(t, rows, 3)
	assert.Equal(t, "user-1", rows[0].UserID)
	assert.Equal(t, "cycling", rows[0].Sport)
	assert.Equal(t, int64(60), rows[0].DurationS)
	assert.InDelta(t, 380, rows[0].Watts, 0.001)
	assert.Equal(t, computed.Format(time.RFC3339), rows[0].ComputedAt)
}

func TestActivitySummaryDatasetFiltersWindow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.UpsertUser(ctx, domain.User{ID: "user-1"}))

	addActivity := func(id string, start time.Time) {
		require.NoError(t, store.UpsertActivity(ctx, domain.ActivityBundle{
			Activity: domain.Activity{
				ID: id, UserID: "user-1", StartDate: start, SportType: "running",
				DurationS: 3600, DistanceM: 12000, NormalizedPower: 280, TrainingLoad: 85,
			},
		}))
	}
	addActivity("act-jan", time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC))
	addActivity("act-jun", time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC))

	data, err := NewExporter(store).ActivitySummaryDataset(ctx, "user-1",
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	rows := readRows[activitySummaryRow](t, data)
	require.Len(t, rows, 1)
	assert.Equal(t, "act-jun", rows[0].ActivityID)
	assert.InDelta(t, 280, rows[0].NormalizedPowerW, 0.001)
	assert.InDelta(t, 85, rows[0].TrainingLoad, 0.001)
}

func TestActivitySummaryDatasetEmptyUser(t *testing.T) {
	store := memory.NewStore()
	data, err := NewExporter(store).ActivitySummaryDataset(context.Background(), "nobody", time.Time{}, time.Time{})
	require.NoError(t, err)

	rows := readRows[activitySummaryRow](t, data)
	assert.Empty(t, rows)
}

func readRows[T any](t *testing.T, data []byte) []T {
	t.Helper()

	source := parquetbuffer.NewBufferFileFromBytes(data)
	pr, err := reader.NewParquetReader(source, new(T), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	rows := make([]T, pr.GetNumRows())
	if len(rows) > 0 {
		require.NoError(t, pr.Read(&rows))
	}
	return rows
}
