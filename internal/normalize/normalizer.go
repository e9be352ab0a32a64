// Package normalize turns decoded telemetry into storable activity bundles.
// It owns all unit conversion: everything downstream of this package sees
// canonical metric units only.
package normalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"time"

	"example.com/kinetic/internal/domain"
	"example.com/kinetic/internal/telemetry"
)

const semicircleDegrees = 180.0 / 2147483648.0

// UserParams supplies the athlete physiology derived metrics depend on.
type UserParams struct {
	CriticalPower float64 // watts
	WeightKG      float64
}

// ParamsFunc resolves UserParams for a user id. ok is false when the user is
// unknown or has no recorded physiology.
type ParamsFunc func(userID string) (UserParams, bool)

// Option configures optional Normalizer behaviour.
type Option func(*Normalizer)

// WithUserParams installs the physiology lookup.
func WithUserParams(fn ParamsFunc) Option {
	return func(n *Normalizer) {
		n.params = fn
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(n *Normalizer) {
		n.logger = logger
	}
}

// Normalizer implements domain.Normalizer for the binary container format.
type Normalizer struct {
	params ParamsFunc
	logger *log.Logger
}

// New constructs a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		params: func(string) (UserParams, bool) { return UserParams{}, false },
		logger: log.New(log.Writer(), "[normalize] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize decodes source and produces the bundle for one activity. The
// activity id is the hex SHA-256 of the source bytes, so the same file always
// normalizes to the same id. Unsupported message kinds are skipped; any other
// decode failure aborts with an *domain.IngestionError.
func (n *Normalizer) Normalize(userID string, source []byte) (*domain.ActivityBundle, error) {
	sum := sha256.Sum256(source)
	id := hex.EncodeToString(sum[:])

	dec := telemetry.NewDecoder(bytes.NewReader(source))

	var (
		records []*telemetry.Message
		laps    []*telemetry.Message
		session *telemetry.Message
		skipped int
	)
	for {
		msg, err := dec.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, telemetry.ErrUnsupportedMessage) {
			skipped++
			continue
		}
		if err != nil {
			return nil, &domain.IngestionError{ActivityID: id, Err: err}
		}
		switch msg.Kind {
		case telemetry.KindRecord:
			records = append(records, msg)
		case telemetry.KindLap:
			laps = append(laps, msg)
		case telemetry.KindSession:
			session = msg
		}
	}
	if skipped > 0 {
		n.logger.Printf("activity %s: skipped %d unsupported messages", id, skipped)
	}
	if len(records) == 0 {
		return nil, &domain.IngestionError{ActivityID: id, Err: errors.New("no samples in container")}
	}

	streams := buildStreams(id, records, n.logger)

	activity := domain.Activity{
		ID:         id,
		UserID:     userID,
		SourceFile: source,
	}
	summarize(&activity, session, streams)
	n.deriveMetrics(&activity, streams)

	bundle := &domain.ActivityBundle{
		Activity: activity,
		Laps:     buildLaps(id, laps),
		Streams:  streams,
	}
	return bundle, nil
}

// buildStreams converts record messages to samples with contiguous sequence
// numbers. Samples whose timestamp runs backwards are dropped so stored
// stream time is always non-decreasing.
func buildStreams(activityID string, records []*telemetry.Message, logger *log.Logger) []domain.StreamSample {
	streams := make([]domain.StreamSample, 0, len(records))
	var last time.Time
	dropped := 0
	for _, msg := range records {
		ts, ok := msg.Timestamp(telemetry.FieldTimestamp)
		if !ok {
			dropped++
			continue
		}
		if !last.IsZero() && ts.Before(last) {
			dropped++
			continue
		}
		last = ts

		s := domain.StreamSample{
			Time:       ts,
			ActivityID: activityID,
			Sequence:   len(streams),
		}
		s.Latitude = semicircles(msg, telemetry.RecPositionLat)
		s.Longitude = semicircles(msg, telemetry.RecPositionLong)
		if v, ok := msg.Value(telemetry.RecAltitude); ok {
			alt := v/5 - 500
			s.AltitudeM = &alt
		}
		s.HeartRate = intValue(msg, telemetry.RecHeartRate, 1)
		s.Cadence = intValue(msg, telemetry.RecCadence, 1)
		s.PowerW = intValue(msg, telemetry.RecPower, 1)
		s.DistanceM = scaled(msg, telemetry.RecDistance, 100)
		s.SpeedMPS = scaled(msg, telemetry.RecSpeed, 1000)
		s.GradePct = scaled(msg, telemetry.RecGrade, 100)
		s.TemperatureC = scaled(msg, telemetry.RecTemperature, 1)
		if v, ok := msg.Uint(telemetry.RecLeftRightBalance); ok {
			bal := float64(v & 0x7F)
			s.LeftRightBalance = &bal
		}
		s.VerticalOscillation = scaled(msg, telemetry.RecVerticalOscillation, 10)
		s.GroundContactTime = scaled(msg, telemetry.RecStanceTime, 10)

		streams = append(streams, s)
	}
	if dropped > 0 {
		logger.Printf("activity %s: dropped %d out-of-order or untimed samples", activityID, dropped)
	}
	return streams
}

func buildLaps(activityID string, msgs []*telemetry.Message) []domain.Lap {
	laps := make([]domain.Lap, 0, len(msgs))
	for _, msg := range msgs {
		lap := domain.Lap{
			ActivityID: activityID,
			Sequence:   len(laps),
			Intensity:  "active",
		}
		if ts, ok := msg.Timestamp(telemetry.LapStartTime); ok {
			lap.StartDate = ts
		}
		if v, ok := msg.Value(telemetry.LapTotalTimerTime); ok {
			lap.DurationS = v / 1000
		} else if v, ok := msg.Value(telemetry.LapTotalElapsedTime); ok {
			lap.DurationS = v / 1000
		}
		if v, ok := msg.Value(telemetry.LapTotalDistance); ok {
			lap.DistanceM = v / 100
		}
		if v, ok := msg.Value(telemetry.LapAvgSpeed); ok {
			lap.AverageSpeed = v / 1000
		}
		if v, ok := msg.Value(telemetry.LapAvgHeartRate); ok {
			lap.AverageHeartRate = v
		}
		if v, ok := msg.Value(telemetry.LapAvgCadence); ok {
			lap.AverageCadence = v
		}
		if v, ok := msg.Value(telemetry.LapAvgPower); ok {
			lap.AveragePower = v
		}
		if v, ok := msg.Uint(telemetry.LapLeftRightBalance); ok {
			lap.AverageLRBalance = float64(v & 0x7F)
		}
		if v, ok := msg.Uint(telemetry.LapIntensity); ok {
			lap.Intensity = intensityName(uint8(v))
		}
		laps = append(laps, lap)
	}
	return laps
}

// summarize fills activity summary fields from the session message when
// present, falling back to values computed from the samples.
func summarize(activity *domain.Activity, session *telemetry.Message, streams []domain.StreamSample) {
	activity.SportType = "other"
	if session != nil {
		if v, ok := session.Uint(telemetry.SessionSport); ok {
			activity.SportType = sportName(uint8(v))
		}
		if ts, ok := session.Timestamp(telemetry.SessionStartTime); ok {
			activity.StartDate = ts
		}
		if v, ok := session.Value(telemetry.SessionTotalTimerTime); ok {
			activity.DurationS = v / 1000
		} else if v, ok := session.Value(telemetry.SessionTotalElapsedTime); ok {
			activity.DurationS = v / 1000
		}
		if v, ok := session.Value(telemetry.SessionTotalDistance); ok {
			activity.DistanceM = v / 100
		}
		if v, ok := session.Value(telemetry.SessionTotalAscent); ok {
			activity.ElevationGainM = v
		}
		if v, ok := session.Value(telemetry.SessionAvgSpeed); ok {
			activity.AverageSpeed = v / 1000
		}
		if v, ok := session.Value(telemetry.SessionAvgHeartRate); ok {
			activity.AverageHeartRate = v
		}
		if v, ok := session.Value(telemetry.SessionAvgCadence); ok {
			activity.AverageCadence = v
		}
		if v, ok := session.Value(telemetry.SessionAvgPower); ok {
			activity.AveragePower = v
		}
		if v, ok := session.Value(telemetry.SessionTotalCalories); ok {
			activity.Calories = int(v)
		}
	}
	if len(streams) == 0 {
		return
	}

	first, lastSample := streams[0], streams[len(streams)-1]
	if activity.StartDate.IsZero() {
		activity.StartDate = first.Time
	}
	if activity.DurationS == 0 {
		activity.DurationS = lastSample.Time.Sub(first.Time).Seconds()
	}
	if activity.DistanceM == 0 && lastSample.DistanceM != nil {
		activity.DistanceM = *lastSample.DistanceM
	}
	if activity.ElevationGainM == 0 {
		activity.ElevationGainM = elevationGain(streams)
	}
	if activity.AverageSpeed == 0 && activity.DurationS > 0 {
		activity.AverageSpeed = activity.DistanceM / activity.DurationS
	}
	if activity.AverageHeartRate == 0 {
		activity.AverageHeartRate = meanInt(streams, func(s domain.StreamSample) *int { return s.HeartRate })
	}
	if activity.AverageCadence == 0 {
		activity.AverageCadence = meanInt(streams, func(s domain.StreamSample) *int { return s.Cadence })
	}
	if activity.AveragePower == 0 {
		activity.AveragePower = meanInt(streams, func(s domain.StreamSample) *int { return s.PowerW })
	}
	activity.AverageLRBalance = meanFloat(streams, func(s domain.StreamSample) *float64 { return s.LeftRightBalance })
}

// deriveMetrics computes the analytics summary fields from the sample
// channels. Metrics whose inputs are absent stay zero.
func (n *Normalizer) deriveMetrics(activity *domain.Activity, streams []domain.StreamSample) {
	power := channelFloat(streams, func(s domain.StreamSample) *float64 {
		if s.PowerW == nil {
			return nil
		}
		v := float64(*s.PowerW)
		return &v
	})
	hr := channelFloat(streams, func(s domain.StreamSample) *float64 {
		if s.HeartRate == nil {
			return nil
		}
		v := float64(*s.HeartRate)
		return &v
	})
	speed := channelFloat(streams, func(s domain.StreamSample) *float64 { return s.SpeedMPS })
	grade := channelFloat(streams, func(s domain.StreamSample) *float64 { return s.GradePct })

	activity.NormalizedPower = normalizedPower(compact(power))

	params, _ := n.params(activity.UserID)
	cp := params.CriticalPower
	if cp <= 0 {
		cp = activity.NormalizedPower
	}
	activity.TrainingLoad = trainingLoad(activity.DurationS, activity.NormalizedPower, cp)
	activity.PolarizationIndex = polarizationIndex(compact(power), cp)

	if d := efficiencyDrift(power, hr); d != 0 {
		activity.Decoupling = d
	} else {
		activity.Decoupling = efficiencyDrift(speed, hr)
	}

	if activity.SportType == "running" {
		gap := gradeAdjustedSpeed(speed, grade)
		activity.AverageGAP = meanValid(gap)
	}
}

func elevationGain(streams []domain.StreamSample) float64 {
	gain := 0.0
	var prev *float64
	for i := range streams {
		alt := streams[i].AltitudeM
		if alt == nil {
			continue
		}
		if prev != nil && *alt > *prev {
			gain += *alt - *prev
		}
		prev = alt
	}
	return gain
}

func sportName(v uint8) string {
	switch v {
	case 1:
		return "running"
	case 2:
		return "cycling"
	case 3:
		return "transition"
	case 4:
		return "fitness_equipment"
	case 5:
		return "swimming"
	case 11:
		return "walking"
	case 17:
		return "hiking"
	default:
		return "other"
	}
}

func intensityName(v uint8) string {
	switch v {
	case 1:
		return "rest"
	case 2:
		return "warmup"
	case 3:
		return "cooldown"
	default:
		return "active"
	}
}

func scaled(msg *telemetry.Message, field uint8, scale float64) *float64 {
	v, ok := msg.Value(field)
	if !ok {
		return nil
	}
	out := v / scale
	return &out
}

func intValue(msg *telemetry.Message, field uint8, scale float64) *int {
	v, ok := msg.Value(field)
	if !ok {
		return nil
	}
	out := int(v / scale)
	return &out
}

func semicircles(msg *telemetry.Message, field uint8) *float64 {
	v, ok := msg.Value(field)
	if !ok {
		return nil
	}
	deg := v * semicircleDegrees
	return &deg
}

func meanInt(streams []domain.StreamSample, get func(domain.StreamSample) *int) float64 {
	sum, count := 0.0, 0
	for _, s := range streams {
		if v := get(s); v != nil {
			sum += float64(*v)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func meanFloat(streams []domain.StreamSample, get func(domain.StreamSample) *float64) float64 {
	sum, count := 0.0, 0
	for _, s := range streams {
		if v := get(s); v != nil {
			sum += *v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// channelFloat extracts one channel as a positional slice; absent samples
// become NaN so paired channels stay aligned.
func channelFloat(streams []domain.StreamSample, get func(domain.StreamSample) *float64) []float64 {
	out := make([]float64, len(streams))
	for i, s := range streams {
		if v := get(s); v != nil {
			out[i] = *v
		} else {
			out[i] = nan
		}
	}
	return out
}
