package normalize_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/kinetic/internal/domain"
	"example.com/kinetic/internal/normalize"
	"example.com/kinetic/internal/telemetry"
	"example.com/kinetic/internal/telemetry/telemetrytest"
)

func cyclingFile(start time.Time, seconds int) *telemetrytest.ActivityFile {
	file := telemetrytest.NewActivityFile(start)
	for i := 0; i < seconds; i++ {
		power := 180.0
		if (i/60)%2 == 0 {
			power = 240.0
		}
		file.AddRecord(telemetrytest.Record{
			Time:      start.Add(time.Duration(i) * time.Second),
			Power:     telemetrytest.F(power),
			HeartRate: telemetrytest.F(140),
			Cadence:   telemetrytest.F(90),
			SpeedMPS:  telemetrytest.F(8.0),
			DistanceM: telemetrytest.F(float64(i) * 8.0),
			AltitudeM: telemetrytest.F(100 + float64(i)*0.05),
		})
	}
	file.AddLap(telemetrytest.Lap{
		Start:     start,
		DurationS: float64(seconds),
		DistanceM: float64(seconds) * 8.0,
		AvgSpeed:  8.0,
		AvgHR:     140,
		AvgPower:  210,
		Intensity: telemetrytest.IntensityActive,
	})
	file.AddSession(telemetrytest.Session{
		Start:     start,
		Sport:     telemetrytest.SportCycling,
		DurationS: float64(seconds),
		DistanceM: float64(seconds) * 8.0,
		Calories:  450,
		AvgSpeed:  8.0,
		AvgHR:     140,
		AvgPower:  210,
	})
	return file
}

func TestNormalizeProducesCanonicalUnits(t *testing.T) {
	start := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	data := cyclingFile(start, 600).Bytes()

	n := normalize.New()
	bundle, err := n.Normalize("user-1", data)
	require.NoError(t, err)

	act := bundle.Activity
	assert.Len(t, act.ID, 64)
	assert.Equal(t, "user-1", act.UserID)
	assert.Equal(t, "cycling", act.SportType)
	assert.Equal(t, start, act.StartDate)
	assert.InDelta(t, 600, act.DurationS, 0.01)
	assert.InDelta(t, 4800, act.DistanceM, 0.5)
	assert.InDelta(t, 8.0, act.AverageSpeed, 0.01)
	assert.InDelta(t, 140, act.AverageHeartRate, 0.5)
	assert.InDelta(t, 210, act.AveragePower, 0.5)
	assert.Equal(t, 450, act.Calories)
	assert.Equal(t, data, act.SourceFile)

	require.Len(t, bundle.Streams, 600)
	for i, s := range bundle.Streams {
		assert.Equal(t, i, s.Sequence)
		if i > 0 {
			assert.False(t, s.Time.Before(bundle.Streams[i-1].Time))
		}
	}
	first := bundle.Streams[0]
	require.NotNil(t, first.PowerW)
	assert.Equal(t, 240, *first.PowerW)
	require.NotNil(t, first.SpeedMPS)
	assert.InDelta(t, 8.0, *first.SpeedMPS, 0.001)
	require.NotNil(t, first.AltitudeM)
	assert.InDelta(t, 100, *first.AltitudeM, 0.2)

	require.Len(t, bundle.Laps, 1)
	lap := bundle.Laps[0]
	assert.Equal(t, 0, lap.Sequence)
	assert.Equal(t, act.ID, lap.ActivityID)
	assert.InDelta(t, 600, lap.DurationS, 0.01)
	assert.Equal(t, "active", lap.Intensity)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	start := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	data := cyclingFile(start, 120).Bytes()

	n := normalize.New()
	first, err := n.Normalize("user-1", data)
	require.NoError(t, err)
	second, err := n.Normalize("user-1", data)
	require.NoError(t, err)

	assert.Equal(t, first.Activity.ID, second.Activity.ID)
	assert.Equal(t, first.Activity.NormalizedPower, second.Activity.NormalizedPower)
	assert.Equal(t, first.Activity.TrainingLoad, second.Activity.TrainingLoad)
	assert.Len(t, second.Streams, len(first.Streams))
}

func TestNormalizeDerivedMetrics(t *testing.T) {
	start := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	data := cyclingFile(start, 600).Bytes()

	n := normalize.New(normalize.WithUserParams(func(userID string) (normalize.UserParams, bool) {
		return normalize.UserParams{CriticalPower: 250, WeightKG: 70}, true
	}))
	bundle, err := n.Normalize("user-1", data)
	require.NoError(t, err)

	act := bundle.Activity
	// Alternating minutes of 240W and 180W: the 4th-power weighting must
	// score above the plain average.
	assert.Greater(t, act.NormalizedPower, act.AveragePower)
	assert.Less(t, act.NormalizedPower, 240.0)

	intensity := act.NormalizedPower / 250
	assert.InDelta(t, 600.0/3600*intensity*intensity*100, act.TrainingLoad, 0.1)

	// The hard minutes fall 240/180/240/180/240 in the first half and
	// 180/240/180/240/180 in the second, so power:HR drifts by 12/216.
	assert.InDelta(t, 5.56, act.Decoupling, 0.05)
}

func TestNormalizeGradeAdjustedPaceForRunning(t *testing.T) {
	start := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	file := telemetrytest.NewActivityFile(start)
	for i := 0; i < 300; i++ {
		file.AddRecord(telemetrytest.Record{
			Time:      start.Add(time.Duration(i) * time.Second),
			HeartRate: telemetrytest.F(155),
			SpeedMPS:  telemetrytest.F(2.5),
			GradePct:  telemetrytest.F(8),
		})
	}
	file.AddSession(telemetrytest.Session{
		Start:     start,
		Sport:     telemetrytest.SportRunning,
		DurationS: 300,
		DistanceM: 750,
		AvgSpeed:  2.5,
		AvgHR:     155,
	})

	bundle, err := normalize.New().Normalize("user-1", file.Bytes())
	require.NoError(t, err)

	act := bundle.Activity
	assert.Equal(t, "running", act.SportType)
	// A steady 8% climb must grade-adjust to a faster equivalent pace.
	assert.Greater(t, act.AverageGAP, act.AverageSpeed)
}

func TestNormalizeSkipsUnsupportedMessages(t *testing.T) {
	start := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	file := telemetrytest.NewActivityFile(start)
	file.AddUnknownMessage(131)
	file.AddRecord(telemetrytest.Record{Time: start, Power: telemetrytest.F(200)})

	bundle, err := normalize.New().Normalize("user-1", file.Bytes())
	require.NoError(t, err)
	assert.Len(t, bundle.Streams, 1)
}

func TestNormalizeMalformedInput(t *testing.T) {
	_, err := normalize.New().Normalize("user-1", []byte("not a container"))
	require.Error(t, err)

	var ingErr *domain.IngestionError
	require.ErrorAs(t, err, &ingErr)
	assert.ErrorIs(t, err, telemetry.ErrMalformedContainer)
}

func TestNormalizeRejectsEmptyActivity(t *testing.T) {
	start := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	data := telemetrytest.NewActivityFile(start).Bytes()

	_, err := normalize.New().Normalize("user-1", data)
	var ingErr *domain.IngestionError
	require.ErrorAs(t, err, &ingErr)
}
