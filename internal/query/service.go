// Package query is the read surface over the store. It validates filters,
// windows and projections before touching storage so callers get
// ErrInvalidRange instead of silent empty results.
package query

import (
	"context"
	"fmt"
	"log"
	"time"

	"example.com/kinetic/internal/domain"
)

// Pagination bounds for ListActivities.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Option configures the Service.
type Option func(*Service)

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service answers read queries against a Store.
type Service struct {
	store  domain.Store
	logger *log.Logger
}

// NewService constructs a Service.
func NewService(store domain.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: log.New(log.Writer(), "[query] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetActivity returns one activity by id.
func (s *Service) GetActivity(ctx context.Context, id string) (*domain.Activity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty activity id", domain.ErrInvalidRange)
	}
	return s.store.GetActivity(ctx, id)
}

// ListActivities returns activities matching the filter, newest first. The
// limit defaults to DefaultListLimit and is capped at MaxListLimit.
func (s *Service) ListActivities(ctx context.Context, filter domain.ActivityFilter) ([]domain.Activity, error) {
	if filter.Limit == 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit < 0 || filter.Limit > MaxListLimit {
		return nil, fmt.Errorf("%w: limit %d outside 1..%d", domain.ErrInvalidRange, filter.Limit, MaxListLimit)
	}
	if filter.Offset < 0 {
		return nil, fmt.Errorf("%w: negative offset", domain.ErrInvalidRange)
	}
	if err := validateWindow(filter.Start, filter.End); err != nil {
		return nil, err
	}
	return s.store.ListActivities(ctx, filter)
}

// GetLaps returns the activity's laps ordered by sequence.
func (s *Service) GetLaps(ctx context.Context, activityID string) ([]domain.Lap, error) {
	if activityID == "" {
		return nil, fmt.Errorf("%w: empty activity id", domain.ErrInvalidRange)
	}
	return s.store.GetLaps(ctx, activityID)
}

// GetStreams returns the activity's samples, restricted to the requested
// channels and time window. Unknown channel names are rejected up front.
func (s *Service) GetStreams(ctx context.Context, activityID string, query domain.StreamQuery) ([]domain.StreamSample, error) {
	if activityID == "" {
		return nil, fmt.Errorf("%w: empty activity id", domain.ErrInvalidRange)
	}
	for _, f := range query.Fields {
		if !domain.KnownStreamField(f) {
			return nil, fmt.Errorf("%w: unknown stream field %q", domain.ErrInvalidRange, f)
		}
	}
	if err := validateWindow(query.Start, query.End); err != nil {
		return nil, err
	}
	return s.store.GetStreams(ctx, activityID, query)
}

// GetPowerCurve returns the derived curve for one user and sport.
func (s *Service) GetPowerCurve(ctx context.Context, userID, sport string) ([]domain.PowerCurvePoint, error) {
	if userID == "" || sport == "" {
		return nil, fmt.Errorf("%w: user id and sport required", domain.ErrInvalidRange)
	}
	return s.store.GetPowerCurve(ctx, userID, sport)
}

// ListRaces returns the user's planned races starting at or after the given
// time; a zero time lists all of them.
func (s *Service) ListRaces(ctx context.Context, userID string, after time.Time) ([]domain.Race, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", domain.ErrInvalidRange)
	}
	return s.store.ListRaces(ctx, userID, after)
}

func validateWindow(start, end time.Time) error {
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return fmt.Errorf("%w: window end precedes start", domain.ErrInvalidRange)
	}
	return nil
}
