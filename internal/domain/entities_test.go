package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/kinetic/internal/domain"
)

func validBundle(start time.Time, samples int) domain.ActivityBundle {
	streams := make([]domain.StreamSample, samples)
	for i := range streams {
		streams[i] = domain.StreamSample{
			Time:       start.Add(time.Duration(i) * time.Second),
			ActivityID: "act-1",
			Sequence:   i,
		}
	}
	return domain.ActivityBundle{
		Activity: domain.Activity{ID: "act-1", UserID: "user-1", StartDate: start},
		Laps: []domain.Lap{
			{ActivityID: "act-1", Sequence: 0, StartDate: start},
		},
		Streams: streams,
	}
}

func TestBundleValidateAcceptsContiguousSequences(t *testing.T) {
	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, validBundle(start, 5).Validate())
	require.NoError(t, validBundle(start, 0).Validate())
}

func TestBundleValidateRejectsBrokenBundles(t *testing.T) {
	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	bundle := validBundle(start, 5)
	bundle.Laps[0].Sequence = 1
	assert.ErrorIs(t, bundle.Validate(), domain.ErrReferentialViolation)

	bundle = validBundle(start, 5)
	bundle.Laps[0].ActivityID = "other"
	assert.ErrorIs(t, bundle.Validate(), domain.ErrReferentialViolation)

	bundle = validBundle(start, 5)
	bundle.Streams[2].Sequence = 4
	assert.ErrorIs(t, bundle.Validate(), domain.ErrReferentialViolation)

	bundle = validBundle(start, 5)
	bundle.Streams[2].ActivityID = "other"
	assert.ErrorIs(t, bundle.Validate(), domain.ErrReferentialViolation)

	bundle = validBundle(start, 5)
	bundle.Streams[3].Time = start.Add(-time.Second)
	assert.ErrorIs(t, bundle.Validate(), domain.ErrReferentialViolation)
}
