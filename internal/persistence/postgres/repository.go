// Package postgres implements domain.Store on PostgreSQL. Activity streams
// live in a time-partitioned hypertable; activity writes are serialized per
// activity id with an advisory lock and publish an outbox event in the same
// transaction.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/kinetic/internal/domain"
	"example.com/kinetic/internal/events"
	"example.com/kinetic/internal/observability"
)

const fkViolation = "23503"

// Store provides Postgres-backed persistence for all core entities.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// UpsertUser implements domain.Store.
func (s *Store) UpsertUser(ctx context.Context, user domain.User) error {
	const stmt = `INSERT INTO users (id, first_name, last_name, weight_kg, critical_power, w_prime, time_to_exhaustion, running_effectiveness, riegel_exponent)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (id) DO UPDATE SET
            first_name=EXCLUDED.first_name, last_name=EXCLUDED.last_name,
            weight_kg=EXCLUDED.weight_kg, critical_power=EXCLUDED.critical_power,
            w_prime=EXCLUDED.w_prime, time_to_exhaustion=EXCLUDED.time_to_exhaustion,
            running_effectiveness=EXCLUDED.running_effectiveness, riegel_exponent=EXCLUDED.riegel_exponent`

	_, err := s.pool.Exec(ctx, stmt,
		user.ID, user.FirstName, user.LastName, user.WeightKG, user.CriticalPower,
		user.WPrime, user.TimeToExhaustion, user.RunningEffectiveness, user.RiegelExponent)
	return mapError(err)
}

// GetUser implements domain.Store.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, first_name, last_name, weight_kg, critical_power, w_prime, time_to_exhaustion, running_effectiveness, riegel_exponent
        FROM users WHERE id=$1`

	var user domain.User
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.WeightKG, &user.CriticalPower,
		&user.WPrime, &user.TimeToExhaustion, &user.RunningEffectiveness, &user.RiegelExponent)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes a user row and cascades the user's activities.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpsertGear implements domain.Store.
func (s *Store) UpsertGear(ctx context.Context, gear domain.Gear) error {
	const stmt = `INSERT INTO gear (id, user_id, name, brand, model, type, distance_m, time_s)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (id) DO UPDATE SET
            name=EXCLUDED.name, brand=EXCLUDED.brand, model=EXCLUDED.model, type=EXCLUDED.type`

	_, err := s.pool.Exec(ctx, stmt,
		gear.ID, gear.UserID, gear.Name, gear.Brand, gear.Model, gear.Type, gear.DistanceM, gear.TimeS)
	return mapError(err)
}

// GetGear implements domain.Store.
func (s *Store) GetGear(ctx context.Context, id string) (*domain.Gear, error) {
	const query = `SELECT id, user_id, name, brand, model, type, distance_m, time_s FROM gear WHERE id=$1`

	var gear domain.Gear
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&gear.ID, &gear.UserID, &gear.Name, &gear.Brand, &gear.Model, &gear.Type, &gear.DistanceM, &gear.TimeS)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &gear, nil
}

// AddGearUsage implements domain.Store.
func (s *Store) AddGearUsage(ctx context.Context, gearID string, distanceM, timeS float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE gear SET distance_m = distance_m + $2, time_s = time_s + $3 WHERE id=$1`,
		gearID, distanceM, timeS)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpsertActivity implements domain.Store. The whole bundle commits in one
// transaction: the activity row is upserted, the lap and stream sets are
// replaced, gear usage accumulates when the activity is new, and an
// activity_ingested outbox row is queued. Concurrent writes for the same
// activity id serialize on an advisory lock.
func (s *Store) UpsertActivity(ctx context.Context, bundle domain.ActivityBundle) (err error) {
	if err = bundle.Validate(); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	act := bundle.Activity
	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, act.ID); err != nil {
		return err
	}

	var existed bool
	if err = tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM activities WHERE id=$1)`, act.ID).Scan(&existed); err != nil {
		return err
	}

	const insertActivity = `INSERT INTO activities (
            id, user_id, gear_id, start_date, name, description, sport_type,
            duration_s, distance_m, elevation_gain_m,
            average_speed, average_heart_rate, average_cadence, average_power, average_lr_balance, average_gap,
            normalized_power, training_load, decoupling, polarization_index,
            calories, perceived_exertion, carbs_ingested, source_file, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,now())
        ON CONFLICT (id) DO UPDATE SET
            user_id=EXCLUDED.user_id, gear_id=EXCLUDED.gear_id, start_date=EXCLUDED.start_date,
            name=EXCLUDED.name, description=EXCLUDED.description, sport_type=EXCLUDED.sport_type,
            duration_s=EXCLUDED.duration_s, distance_m=EXCLUDED.distance_m, elevation_gain_m=EXCLUDED.elevation_gain_m,
            average_speed=EXCLUDED.average_speed, average_heart_rate=EXCLUDED.average_heart_rate,
            average_cadence=EXCLUDED.average_cadence, average_power=EXCLUDED.average_power,
            average_lr_balance=EXCLUDED.average_lr_balance, average_gap=EXCLUDED.average_gap,
            normalized_power=EXCLUDED.normalized_power, training_load=EXCLUDED.training_load,
            decoupling=EXCLUDED.decoupling, polarization_index=EXCLUDED.polarization_index,
            calories=EXCLUDED.calories, perceived_exertion=EXCLUDED.perceived_exertion,
            carbs_ingested=EXCLUDED.carbs_ingested, source_file=EXCLUDED.source_file, updated_at=now()`

	_, err = tx.Exec(ctx, insertActivity,
		act.ID, act.UserID, nullIfEmpty(act.GearID), act.StartDate, act.Name, act.Description, act.SportType,
		act.DurationS, act.DistanceM, act.ElevationGainM,
		act.AverageSpeed, act.AverageHeartRate, act.AverageCadence, act.AveragePower, act.AverageLRBalance, act.AverageGAP,
		act.NormalizedPower, act.TrainingLoad, act.Decoupling, act.PolarizationIndex,
		act.Calories, act.PerceivedExertion, act.CarbsIngested, act.SourceFile)
	if err != nil {
		return mapError(err)
	}

	if _, err = tx.Exec(ctx, `DELETE FROM activity_laps WHERE activity_id=$1`, act.ID); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM activity_streams WHERE activity_id=$1`, act.ID); err != nil {
		return err
	}

	const insertLap = `INSERT INTO activity_laps (activity_id, sequence, start_date, duration_s, distance_m, average_speed, average_heart_rate, average_cadence, average_power, average_lr_balance, intensity)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	for _, lap := range bundle.Laps {
		_, err = tx.Exec(ctx, insertLap,
			lap.ActivityID, lap.Sequence, lap.StartDate, lap.DurationS, lap.DistanceM,
			lap.AverageSpeed, lap.AverageHeartRate, lap.AverageCadence, lap.AveragePower,
			lap.AverageLRBalance, lap.Intensity)
		if err != nil {
			return mapError(err)
		}
	}

	if err = copyStreams(ctx, tx, bundle.Streams); err != nil {
		return mapError(err)
	}

	// Gear totals accumulate only when the activity row is first created;
	// re-ingesting the same file replaces the row without counting again.
	if !existed && act.GearID != "" {
		_, err = tx.Exec(ctx,
			`UPDATE gear SET distance_m = distance_m + $2, time_s = time_s + $3 WHERE id=$1`,
			act.GearID, act.DistanceM, act.DurationS)
		if err != nil {
			return mapError(err)
		}
	}

	if err = insertOutbox(ctx, tx, act); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordActivityPersisted(act.SportType, len(bundle.Streams))
	return nil
}

var streamColumns = []string{
	"time", "activity_id", "sequence",
	"latitude", "longitude", "altitude", "heart_rate", "cadence", "power",
	"distance", "speed", "grade", "temperature", "humidity",
	"vertical_oscillation", "ground_contact_time", "left_right_balance",
	"form_power", "leg_spring_stiffness", "air_power", "dfa_a1",
	"respiration_rate", "front_gear", "rear_gear",
}

// copyStreams bulk-loads samples with the COPY protocol.
func copyStreams(ctx context.Context, tx pgx.Tx, streams []domain.StreamSample) error {
	if len(streams) == 0 {
		return nil
	}
	_, err := tx.CopyFrom(ctx, pgx.Identifier{"activity_streams"}, streamColumns,
		pgx.CopyFromSlice(len(streams), func(i int) ([]interface{}, error) {
			s := streams[i]
			return []interface{}{
				s.Time, s.ActivityID, s.Sequence,
				s.Latitude, s.Longitude, s.AltitudeM, s.HeartRate, s.Cadence, s.PowerW,
				s.DistanceM, s.SpeedMPS, s.GradePct, s.TemperatureC, s.Humidity,
				s.VerticalOscillation, s.GroundContactTime, s.LeftRightBalance,
				s.FormPower, s.LegSpringStiffness, s.AirPower, s.DFAAlpha1,
				s.RespirationRate, s.FrontGear, s.RearGear,
			}, nil
		}))
	return err
}

func insertOutbox(ctx context.Context, tx pgx.Tx, act domain.Activity) error {
	payload, err := json.Marshal(events.ActivityIngested{
		ActivityID: act.ID,
		UserID:     act.UserID,
		SportType:  act.SportType,
		StartDate:  act.StartDate,
		DurationS:  act.DurationS,
		DistanceM:  act.DistanceM,
		IngestedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (dedupe_key) DO UPDATE SET payload=EXCLUDED.payload, published_at=NULL`

	dedupeKey := fmt.Sprintf("%s:%s", act.ID, events.TopicActivityIngested)
	_, err = tx.Exec(ctx, stmt,
		"activity", act.ID, "activity.ingested", events.TopicActivityIngested,
		act.UserID, payload, dedupeKey)
	return err
}

const activityColumns = `id, user_id, COALESCE(gear_id, ''), start_date, name, description, sport_type,
        duration_s, distance_m, elevation_gain_m,
        average_speed, average_heart_rate, average_cadence, average_power, average_lr_balance, average_gap,
        normalized_power, training_load, decoupling, polarization_index,
        calories, perceived_exertion, carbs_ingested, source_file`

func scanActivity(row pgx.Row) (*domain.Activity, error) {
	var act domain.Activity
	err := row.Scan(
		&act.ID, &act.UserID, &act.GearID, &act.StartDate, &act.Name, &act.Description, &act.SportType,
		&act.DurationS, &act.DistanceM, &act.ElevationGainM,
		&act.AverageSpeed, &act.AverageHeartRate, &act.AverageCadence, &act.AveragePower,
		&act.AverageLRBalance, &act.AverageGAP,
		&act.NormalizedPower, &act.TrainingLoad, &act.Decoupling, &act.PolarizationIndex,
		&act.Calories, &act.PerceivedExertion, &act.CarbsIngested, &act.SourceFile)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &act, nil
}

// GetActivity implements domain.Store.
func (s *Store) GetActivity(ctx context.Context, id string) (*domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE id=$1`
	return scanActivity(s.pool.QueryRow(ctx, query, id))
}

// ListActivities implements domain.Store. Results are ordered newest first.
func (s *Store) ListActivities(ctx context.Context, filter domain.ActivityFilter) ([]domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE 1=1`
	args := []interface{}{}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND user_id=$%d", len(args))
	}
	if filter.SportType != "" {
		args = append(args, filter.SportType)
		query += fmt.Sprintf(" AND sport_type=$%d", len(args))
	}
	if !filter.Start.IsZero() {
		args = append(args, filter.Start)
		query += fmt.Sprintf(" AND start_date >= $%d", len(args))
	}
	if !filter.End.IsZero() {
		args = append(args, filter.End)
		query += fmt.Sprintf(" AND start_date <= $%d", len(args))
	}
	query += " ORDER BY start_date DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0)
	for rows.Next() {
		act, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *act)
	}
	return results, rows.Err()
}

// GetLaps implements domain.Store.
func (s *Store) GetLaps(ctx context.Context, activityID string) ([]domain.Lap, error) {
	if err := s.requireActivity(ctx, activityID); err != nil {
		return nil, err
	}

	const query = `SELECT activity_id, sequence, start_date, duration_s, distance_m, average_speed, average_heart_rate, average_cadence, average_power, average_lr_balance, intensity
        FROM activity_laps WHERE activity_id=$1 ORDER BY sequence`

	rows, err := s.pool.Query(ctx, query, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	laps := make([]domain.Lap, 0)
	for rows.Next() {
		var lap domain.Lap
		if err := rows.Scan(&lap.ActivityID, &lap.Sequence, &lap.StartDate, &lap.DurationS, &lap.DistanceM,
			&lap.AverageSpeed, &lap.AverageHeartRate, &lap.AverageCadence, &lap.AveragePower,
			&lap.AverageLRBalance, &lap.Intensity); err != nil {
			return nil, err
		}
		laps = append(laps, lap)
	}
	return laps, rows.Err()
}

// columnForField maps projection names onto activity_streams columns.
var columnForField = map[string]string{
	domain.FieldLatitude:            "latitude",
	domain.FieldLongitude:           "longitude",
	domain.FieldAltitude:            "altitude",
	domain.FieldHeartRate:           "heart_rate",
	domain.FieldCadence:             "cadence",
	domain.FieldPower:               "power",
	domain.FieldDistance:            "distance",
	domain.FieldSpeed:               "speed",
	domain.FieldGrade:               "grade",
	domain.FieldTemperature:         "temperature",
	domain.FieldHumidity:            "humidity",
	domain.FieldVerticalOscillation: "vertical_oscillation",
	domain.FieldGroundContactTime:   "ground_contact_time",
	domain.FieldLeftRightBalance:    "left_right_balance",
	domain.FieldFormPower:           "form_power",
	domain.FieldLegSpringStiffness:  "leg_spring_stiffness",
	domain.FieldAirPower:            "air_power",
	domain.FieldDFAAlpha1:           "dfa_a1",
	domain.FieldRespirationRate:     "respiration_rate",
	domain.FieldFrontGear:           "front_gear",
	domain.FieldRearGear:            "rear_gear",
}

// GetStreams implements domain.Store. The projection is pushed down into the
// SELECT column list; identity columns always come back.
func (s *Store) GetStreams(ctx context.Context, activityID string, query domain.StreamQuery) ([]domain.StreamSample, error) {
	if err := s.requireActivity(ctx, activityID); err != nil {
		return nil, err
	}

	fields := query.Fields
	if len(fields) == 0 {
		fields = domain.StreamFields()
	}
	columns := []string{"time", "activity_id", "sequence"}
	for _, f := range fields {
		col, ok := columnForField[f]
		if !ok {
			return nil, domain.ErrInvalidRange
		}
		columns = append(columns, col)
	}

	stmt := "SELECT " + joinColumns(columns) + " FROM activity_streams WHERE activity_id=$1"
	args := []interface{}{activityID}
	if !query.Start.IsZero() {
		args = append(args, query.Start)
		stmt += fmt.Sprintf(" AND time >= $%d", len(args))
	}
	if !query.End.IsZero() {
		args = append(args, query.End)
		stmt += fmt.Sprintf(" AND time <= $%d", len(args))
	}
	stmt += " ORDER BY sequence"

	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := make([]domain.StreamSample, 0)
	for rows.Next() {
		var sample domain.StreamSample
		dests := []interface{}{&sample.Time, &sample.ActivityID, &sample.Sequence}
		for _, f := range fields {
			dests = append(dests, destForField(&sample, f))
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

func destForField(s *domain.StreamSample, field string) interface{} {
	switch field {
	case domain.FieldLatitude:
		return &s.Latitude
	case domain.FieldLongitude:
		return &s.Longitude
	case domain.FieldAltitude:
		return &s.AltitudeM
	case domain.FieldHeartRate:
		return &s.HeartRate
	case domain.FieldCadence:
		return &s.Cadence
	case domain.FieldPower:
		return &s.PowerW
	case domain.FieldDistance:
		return &s.DistanceM
	case domain.FieldSpeed:
		return &s.SpeedMPS
	case domain.FieldGrade:
		return &s.GradePct
	case domain.FieldTemperature:
		return &s.TemperatureC
	case domain.FieldHumidity:
		return &s.Humidity
	case domain.FieldVerticalOscillation:
		return &s.VerticalOscillation
	case domain.FieldGroundContactTime:
		return &s.GroundContactTime
	case domain.FieldLeftRightBalance:
		return &s.LeftRightBalance
	case domain.FieldFormPower:
		return &s.FormPower
	case domain.FieldLegSpringStiffness:
		return &s.LegSpringStiffness
	case domain.FieldAirPower:
		return &s.AirPower
	case domain.FieldDFAAlpha1:
		return &s.DFAAlpha1
	case domain.FieldRespirationRate:
		return &s.RespirationRate
	case domain.FieldFrontGear:
		return &s.FrontGear
	default:
		return &s.RearGear
	}
}

// ReplacePowerCurve implements domain.Store.
func (s *Store) ReplacePowerCurve(ctx context.Context, userID, sport string, points []domain.PowerCurvePoint) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM power_curves WHERE user_id=$1 AND sport=$2`, userID, sport); err != nil {
		return err
	}

	const stmt = `INSERT INTO power_curves (user_id, sport, duration_s, watts, computed_at) VALUES ($1,$2,$3,$4,$5)`
	for _, p := range points {
		if _, err = tx.Exec(ctx, stmt, userID, sport, p.DurationS, p.Watts, p.ComputedAt); err != nil {
			return mapError(err)
		}
	}
	return tx.Commit(ctx)
}

// GetPowerCurve implements domain.Store.
func (s *Store) GetPowerCurve(ctx context.Context, userID, sport string) ([]domain.PowerCurvePoint, error) {
	const query = `SELECT duration_s, watts, computed_at FROM power_curves
        WHERE user_id=$1 AND sport=$2 ORDER BY duration_s`

	rows, err := s.pool.Query(ctx, query, userID, sport)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]domain.PowerCurvePoint, 0)
	for rows.Next() {
		var p domain.PowerCurvePoint
		if err := rows.Scan(&p.DurationS, &p.Watts, &p.ComputedAt); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, domain.ErrNotFound
	}
	return points, nil
}

// UpsertRace implements domain.Store.
func (s *Store) UpsertRace(ctx context.Context, race domain.Race) error {
	const stmt = `INSERT INTO races (id, user_id, gear_id, name, sport, distance_m, start_date, predicted_time_s, predicted_power_w, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (id) DO UPDATE SET
            name=EXCLUDED.name, sport=EXCLUDED.sport, distance_m=EXCLUDED.distance_m,
            start_date=EXCLUDED.start_date, predicted_time_s=EXCLUDED.predicted_time_s,
            predicted_power_w=EXCLUDED.predicted_power_w, updated_at=EXCLUDED.updated_at`

	updatedAt := race.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, stmt,
		race.ID, race.UserID, nullIfEmpty(race.GearID), race.Name, race.Sport,
		race.DistanceM, race.StartDate, race.PredictedTimeS, race.PredictedPowerW, updatedAt)
	return mapError(err)
}

// ListRaces implements domain.Store.
func (s *Store) ListRaces(ctx context.Context, userID string, after time.Time) ([]domain.Race, error) {
	query := `SELECT id, user_id, COALESCE(gear_id, ''), name, sport, distance_m, start_date, predicted_time_s, predicted_power_w, updated_at
        FROM races WHERE user_id=$1`
	args := []interface{}{userID}
	if !after.IsZero() {
		args = append(args, after)
		query += " AND start_date >= $2"
	}
	query += " ORDER BY start_date"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	races := make([]domain.Race, 0)
	for rows.Next() {
		var race domain.Race
		if err := rows.Scan(&race.ID, &race.UserID, &race.GearID, &race.Name, &race.Sport,
			&race.DistanceM, &race.StartDate, &race.PredictedTimeS, &race.PredictedPowerW, &race.UpdatedAt); err != nil {
			return nil, err
		}
		races = append(races, race)
	}
	return races, rows.Err()
}

func (s *Store) requireActivity(ctx context.Context, activityID string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM activities WHERE id=$1)`, activityID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return nil
}

func joinColumns(columns []string) string {
	out := columns[0]
	for _, c := range columns[1:] {
		out += ", " + c
	}
	return out
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// mapError translates foreign key violations into the domain error.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == fkViolation {
		return fmt.Errorf("%w: %s", domain.ErrReferentialViolation, pgErr.ConstraintName)
	}
	return err
}
