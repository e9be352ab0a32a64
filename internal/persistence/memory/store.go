// Package memory provides an in-memory Store for tests and local development.
// It enforces the same referential and ordering invariants as the postgres
// store so either can back the services interchangeably.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/kinetic/internal/domain"
)

type curveKey struct {
	userID string
	sport  string
}

// Store keeps all entities in maps guarded by one RWMutex.
type Store struct {
	mu         sync.RWMutex
	users      map[string]domain.User
	gear       map[string]domain.Gear
	activities map[string]domain.Activity
	laps       map[string][]domain.Lap
	streams    map[string][]domain.StreamSample
	curves     map[curveKey][]domain.PowerCurvePoint
	races      map[string]domain.Race
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		users:      make(map[string]domain.User),
		gear:       make(map[string]domain.Gear),
		activities: make(map[string]domain.Activity),
		laps:       make(map[string][]domain.Lap),
		streams:    make(map[string][]domain.StreamSample),
		curves:     make(map[curveKey][]domain.PowerCurvePoint),
		races:      make(map[string]domain.Race),
	}
}

// UpsertUser implements domain.Store.
func (s *Store) UpsertUser(ctx context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(user.ID) == "" {
		user.ID = uuid.NewString()
	}
	s.users[user.ID] = user
	return nil
}

// GetUser implements domain.Store.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &user, nil
}

// DeleteUser removes a user and cascades that user's activities, laps and
// streams, matching the postgres schema.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.users, id)
	for actID, act := range s.activities {
		if act.UserID != id {
			continue
		}
		delete(s.activities, actID)
		delete(s.laps, actID)
		delete(s.streams, actID)
	}
	return nil
}

// UpsertGear implements domain.Store.
func (s *Store) UpsertGear(ctx context.Context, gear domain.Gear) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[gear.UserID]; !ok {
		return domain.ErrReferentialViolation
	}
	if strings.TrimSpace(gear.ID) == "" {
		gear.ID = uuid.NewString()
	}
	s.gear[gear.ID] = gear
	return nil
}

// GetGear implements domain.Store.
func (s *Store) GetGear(ctx context.Context, id string) (*domain.Gear, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	gear, ok := s.gear[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &gear, nil
}

// AddGearUsage implements domain.Store.
func (s *Store) AddGearUsage(ctx context.Context, gearID string, distanceM, timeS float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gear, ok := s.gear[gearID]
	if !ok {
		return domain.ErrNotFound
	}
	gear.DistanceM += distanceM
	gear.TimeS += timeS
	s.gear[gearID] = gear
	return nil
}

// UpsertActivity implements domain.Store. The bundle commits atomically
// under the write lock: either every check passes and all three entity sets
// are swapped in, or nothing changes.
func (s *Store) UpsertActivity(ctx context.Context, bundle domain.ActivityBundle) error {
	if err := bundle.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	act := bundle.Activity
	if _, ok := s.users[act.UserID]; !ok {
		return domain.ErrReferentialViolation
	}
	if act.GearID != "" {
		if _, ok := s.gear[act.GearID]; !ok {
			return domain.ErrReferentialViolation
		}
	}

	_, existed := s.activities[act.ID]
	s.activities[act.ID] = act
	s.laps[act.ID] = append([]domain.Lap(nil), bundle.Laps...)
	s.streams[act.ID] = append([]domain.StreamSample(nil), bundle.Streams...)

	// Gear totals count each activity once; a replacing upsert of the same
	// id must not accumulate again.
	if !existed && act.GearID != "" {
		gear := s.gear[act.GearID]
		gear.DistanceM += act.DistanceM
		gear.TimeS += act.DurationS
		s.gear[act.GearID] = gear
	}
	return nil
}

// GetActivity implements domain.Store.
func (s *Store) GetActivity(ctx context.Context, id string) (*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	act, ok := s.activities[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &act, nil
}

// ListActivities implements domain.Store. Results are ordered by start date
// descending, then paged by limit/offset.
func (s *Store) ListActivities(ctx context.Context, filter domain.ActivityFilter) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Activity, 0)
	for _, act := range s.activities {
		if filter.UserID != "" && act.UserID != filter.UserID {
			continue
		}
		if filter.SportType != "" && act.SportType != filter.SportType {
			continue
		}
		if !filter.Start.IsZero() && act.StartDate.Before(filter.Start) {
			continue
		}
		if !filter.End.IsZero() && act.StartDate.After(filter.End) {
			continue
		}
		out = append(out, act)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartDate.After(out[j].StartDate)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []domain.Activity{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// GetLaps implements domain.Store.
func (s *Store) GetLaps(ctx context.Context, activityID string) ([]domain.Lap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.activities[activityID]; !ok {
		return nil, domain.ErrNotFound
	}
	return append([]domain.Lap(nil), s.laps[activityID]...), nil
}

// GetStreams implements domain.Store.
func (s *Store) GetStreams(ctx context.Context, activityID string, query domain.StreamQuery) ([]domain.StreamSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.activities[activityID]; !ok {
		return nil, domain.ErrNotFound
	}
	for _, f := range query.Fields {
		if !domain.KnownStreamField(f) {
			return nil, domain.ErrInvalidRange
		}
	}

	out := make([]domain.StreamSample, 0, len(s.streams[activityID]))
	for _, sample := range s.streams[activityID] {
		if !query.Start.IsZero() && sample.Time.Before(query.Start) {
			continue
		}
		if !query.End.IsZero() && sample.Time.After(query.End) {
			continue
		}
		out = append(out, domain.ProjectStream(sample, query.Fields))
	}
	return out, nil
}

// ReplacePowerCurve implements domain.Store.
func (s *Store) ReplacePowerCurve(ctx context.Context, userID, sport string, points []domain.PowerCurvePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return domain.ErrReferentialViolation
	}
	sorted := append([]domain.PowerCurvePoint(nil), points...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].DurationS < sorted[j].DurationS
	})
	s.curves[curveKey{userID: userID, sport: sport}] = sorted
	return nil
}

// GetPowerCurve implements domain.Store. Points come back ordered by
// duration ascending; a curve with no points reads as absent, matching the
// postgres store.
func (s *Store) GetPowerCurve(ctx context.Context, userID, sport string) ([]domain.PowerCurvePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points, ok := s.curves[curveKey{userID: userID, sport: sport}]
	if !ok || len(points) == 0 {
		return nil, domain.ErrNotFound
	}
	return append([]domain.PowerCurvePoint(nil), points...), nil
}

// UpsertRace implements domain.Store.
func (s *Store) UpsertRace(ctx context.Context, race domain.Race) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[race.UserID]; !ok {
		return domain.ErrReferentialViolation
	}
	if race.GearID != "" {
		if _, ok := s.gear[race.GearID]; !ok {
			return domain.ErrReferentialViolation
		}
	}
	if strings.TrimSpace(race.ID) == "" {
		race.ID = uuid.NewString()
	}
	if race.UpdatedAt.IsZero() {
		race.UpdatedAt = time.Now().UTC()
	}
	s.races[race.ID] = race
	return nil
}

// ListRaces implements domain.Store. Races are ordered by start date
// ascending; zero after means all races.
func (s *Store) ListRaces(ctx context.Context, userID string, after time.Time) ([]domain.Race, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Race, 0)
	for _, race := range s.races {
		if race.UserID != userID {
			continue
		}
		if !after.IsZero() && race.StartDate.Before(after) {
			continue
		}
		out = append(out, race)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartDate.Before(out[j].StartDate)
	})
	return out, nil
}
