package domain

import (
	"context"
	"time"
)

// ActivityFilter narrows ListActivities. Zero time values mean unbounded.
type ActivityFilter struct {
	UserID    string
	Start     time.Time
	End       time.Time
	SportType string
	Limit     int
	Offset    int
}

// StreamQuery selects which channels and time window GetStreams returns.
// Empty Fields means all channels; zero times mean the full activity span.
type StreamQuery struct {
	Fields []string
	Start  time.Time
	End    time.Time
}

// Stream channel names accepted in a StreamQuery projection.
const (
	FieldLatitude            = "latitude"
	FieldLongitude           = "longitude"
	FieldAltitude            = "altitude"
	FieldHeartRate           = "heart_rate"
	FieldCadence             = "cadence"
	FieldPower               = "power"
	FieldDistance            = "distance"
	FieldSpeed               = "speed"
	FieldGrade               = "grade"
	FieldTemperature         = "temperature"
	FieldHumidity            = "humidity"
	FieldVerticalOscillation = "vertical_oscillation"
	FieldGroundContactTime   = "ground_contact_time"
	FieldLeftRightBalance    = "left_right_balance"
	FieldFormPower           = "form_power"
	FieldLegSpringStiffness  = "leg_spring_stiffness"
	FieldAirPower            = "air_power"
	FieldDFAAlpha1           = "dfa_a1"
	FieldRespirationRate     = "respiration_rate"
	FieldFrontGear           = "front_gear"
	FieldRearGear            = "rear_gear"
)

// StreamFields lists every projectable channel name.
func StreamFields() []string {
	return []string{
		FieldLatitude, FieldLongitude, FieldAltitude, FieldHeartRate,
		FieldCadence, FieldPower, FieldDistance, FieldSpeed, FieldGrade,
		FieldTemperature, FieldHumidity, FieldVerticalOscillation,
		FieldGroundContactTime, FieldLeftRightBalance, FieldFormPower,
		FieldLegSpringStiffness, FieldAirPower, FieldDFAAlpha1,
		FieldRespirationRate, FieldFrontGear, FieldRearGear,
	}
}

// KnownStreamField reports whether name is a projectable channel.
func KnownStreamField(name string) bool {
	for _, f := range StreamFields() {
		if f == name {
			return true
		}
	}
	return false
}

// ProjectStream returns a copy of s holding only the requested channels.
// Identity columns (time, activity id, sequence) are always kept. An empty
// field list keeps everything.
func ProjectStream(s StreamSample, fields []string) StreamSample {
	if len(fields) == 0 {
		return s
	}
	out := StreamSample{Time: s.Time, ActivityID: s.ActivityID, Sequence: s.Sequence}
	for _, f := range fields {
		switch f {
		case FieldLatitude:
			out.Latitude = s.Latitude
		case FieldLongitude:
			out.Longitude = s.Longitude
		case FieldAltitude:
			out.AltitudeM = s.AltitudeM
		case FieldHeartRate:
			out.HeartRate = s.HeartRate
		case FieldCadence:
			out.Cadence = s.Cadence
		case FieldPower:
			out.PowerW = s.PowerW
		case FieldDistance:
			out.DistanceM = s.DistanceM
		case FieldSpeed:
			out.SpeedMPS = s.SpeedMPS
		case FieldGrade:
			out.GradePct = s.GradePct
		case FieldTemperature:
			out.TemperatureC = s.TemperatureC
		case FieldHumidity:
			out.Humidity = s.Humidity
		case FieldVerticalOscillation:
			out.VerticalOscillation = s.VerticalOscillation
		case FieldGroundContactTime:
			out.GroundContactTime = s.GroundContactTime
		case FieldLeftRightBalance:
			out.LeftRightBalance = s.LeftRightBalance
		case FieldFormPower:
			out.FormPower = s.FormPower
		case FieldLegSpringStiffness:
			out.LegSpringStiffness = s.LegSpringStiffness
		case FieldAirPower:
			out.AirPower = s.AirPower
		case FieldDFAAlpha1:
			out.DFAAlpha1 = s.DFAAlpha1
		case FieldRespirationRate:
			out.RespirationRate = s.RespirationRate
		case FieldFrontGear:
			out.FrontGear = s.FrontGear
		case FieldRearGear:
			out.RearGear = s.RearGear
		}
	}
	return out
}

// Store captures persistence for all entities. Writes enforce referential
// integrity, composite-key uniqueness and sequence monotonicity; callers do
// not re-check them. UpsertActivity is transactional across the activity,
// its laps and its streams.
type Store interface {
	UpsertUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (*User, error)
	// DeleteUser removes the user and cascades to everything it owns.
	DeleteUser(ctx context.Context, id string) error

	UpsertGear(ctx context.Context, gear Gear) error
	GetGear(ctx context.Context, id string) (*Gear, error)
	// AddGearUsage accumulates distance and time onto existing gear totals.
	AddGearUsage(ctx context.Context, gearID string, distanceM, timeS float64) error

	// UpsertActivity commits the bundle atomically. When the activity id
	// is new the referenced gear's usage totals accumulate in the same
	// transaction; a replacing upsert leaves gear totals alone.
	UpsertActivity(ctx context.Context, bundle ActivityBundle) error
	GetActivity(ctx context.Context, id string) (*Activity, error)
	ListActivities(ctx context.Context, filter ActivityFilter) ([]Activity, error)
	GetLaps(ctx context.Context, activityID string) ([]Lap, error)
	GetStreams(ctx context.Context, activityID string, query StreamQuery) ([]StreamSample, error)

	// ReplacePowerCurve swaps the full curve for (user, sport) atomically.
	ReplacePowerCurve(ctx context.Context, userID, sport string, points []PowerCurvePoint) error
	GetPowerCurve(ctx context.Context, userID, sport string) ([]PowerCurvePoint, error)

	UpsertRace(ctx context.Context, race Race) error
	ListRaces(ctx context.Context, userID string, after time.Time) ([]Race, error)
}
