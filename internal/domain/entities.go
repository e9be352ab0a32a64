// Package domain defines the entities, storage contracts and business logic
// of the training-history core. All quantities are stored in canonical metric
// units: meters, seconds, watts, bpm, degrees Celsius.
package domain

import (
	"fmt"
	"time"
)

// User is the athlete identity owning all other entities.
type User struct {
	ID        string
	FirstName string
	LastName  string

	// Physiological parameters used by the analytics engine. Zero means
	// unknown; the engine falls back to activity-derived values.
	WeightKG             float64
	CriticalPower        float64 // watts
	WPrime               float64 // joules
	TimeToExhaustion     float64 // seconds
	RunningEffectiveness float64 // (m/s) per (W/kg)
	RiegelExponent       float64
}

// Gear is a piece of equipment referenced by activities. Distance and Time
// accumulate additively with every referencing activity.
type Gear struct {
	ID        string
	UserID    string
	Name      string
	Brand     string
	Model     string
	Type      string
	DistanceM float64
	TimeS     float64
}

// Activity is one recorded session. ID is derived from the source file
// content so re-ingesting the same file maps to the same row.
type Activity struct {
	ID          string
	UserID      string
	GearID      string // optional
	StartDate   time.Time
	Name        string
	Description string
	SportType   string

	DurationS      float64
	DistanceM      float64
	ElevationGainM float64

	AverageSpeed     float64 // m/s
	AverageHeartRate float64 // bpm
	AverageCadence   float64 // rpm or spm
	AveragePower     float64 // watts
	AverageLRBalance float64 // percent left
	AverageGAP       float64 // grade-adjusted m/s

	NormalizedPower   float64
	TrainingLoad      float64
	Decoupling        float64 // percent drift, positive means fading
	PolarizationIndex float64

	Calories          int
	PerceivedExertion int
	CarbsIngested     float64

	// Raw container bytes retained verbatim for reprocessing.
	SourceFile []byte
}

// Lap is a sub-interval of an activity. Sequence is contiguous from zero.
type Lap struct {
	ActivityID       string
	Sequence         int
	StartDate        time.Time
	DurationS        float64
	DistanceM        float64
	AverageSpeed     float64
	AverageHeartRate float64
	AverageCadence   float64
	AveragePower     float64
	AverageLRBalance float64
	Intensity        string // active, rest, warmup, cooldown
}

// StreamSample is one high-frequency sample. Every channel is optional since
// devices vary in what they record; nil means the channel was absent.
type StreamSample struct {
	Time       time.Time
	ActivityID string
	Sequence   int

	Latitude            *float64
	Longitude           *float64
	AltitudeM           *float64
	HeartRate           *int
	Cadence             *int
	PowerW              *int
	DistanceM           *float64
	SpeedMPS            *float64
	GradePct            *float64
	TemperatureC        *float64
	Humidity            *float64
	VerticalOscillation *float64
	GroundContactTime   *float64
	LeftRightBalance    *float64
	FormPower           *int
	LegSpringStiffness  *float64
	AirPower            *int
	DFAAlpha1           *float64
	RespirationRate     *float64
	FrontGear           *int
	RearGear            *int
}

// ActivityBundle groups everything written for one ingested file. The store
// commits it atomically.
type ActivityBundle struct {
	Activity Activity
	Laps     []Lap
	Streams  []StreamSample
}

// Validate checks the bundle's internal consistency: laps and streams must
// reference the bundle's activity with sequences contiguous from zero, and
// stream time must never decrease. Every store runs this before writing.
func (b ActivityBundle) Validate() error {
	for i, lap := range b.Laps {
		if lap.ActivityID != b.Activity.ID || lap.Sequence != i {
			return fmt.Errorf("%w: lap %d breaks the sequence", ErrReferentialViolation, i)
		}
	}
	var prev time.Time
	for i, sample := range b.Streams {
		if sample.ActivityID != b.Activity.ID || sample.Sequence != i {
			return fmt.Errorf("%w: stream sample %d breaks the sequence", ErrReferentialViolation, i)
		}
		if i > 0 && sample.Time.Before(prev) {
			return fmt.Errorf("%w: stream time decreases at sample %d", ErrReferentialViolation, i)
		}
		prev = sample.Time
	}
	return nil
}

// PowerCurvePoint is the best mean power sustained for DurationS across the
// user's history for one sport.
type PowerCurvePoint struct {
	DurationS  int
	Watts      float64
	ComputedAt time.Time
}

// Race is a planned event with model-predicted finish time and power.
type Race struct {
	ID              string
	UserID          string
	GearID          string // optional
	Name            string
	Sport           string
	DistanceM       float64
	StartDate       time.Time
	PredictedTimeS  float64
	PredictedPowerW float64
	UpdatedAt       time.Time
}
