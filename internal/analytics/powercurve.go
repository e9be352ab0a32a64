// Package analytics computes derived performance models: per-duration best
// mean power curves, critical power estimation and race prediction.
package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"example.com/kinetic/internal/domain"
	"example.com/kinetic/internal/observability"
)

// CurveDurations are the window lengths, in seconds, tracked by the power
// curve. Ordered ascending.
var CurveDurations = []int{5, 15, 30, 60, 120, 300, 600, 1200, 3600, 5400}

// listPageSize bounds how many activities one store call returns while the
// engine walks a user's history.
const listPageSize = 200

// Option configures the Engine.
type Option func(*Engine)

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithDurations overrides the tracked curve durations.
func WithDurations(durations []int) Option {
	return func(e *Engine) {
		e.durations = durations
	}
}

// WithRecomputeTimeout bounds one full power-curve recompute. Zero disables
// the bound.
func WithRecomputeTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithCoefficients overrides the race-prediction coefficient table.
func WithCoefficients(table CoefficientTable) Option {
	return func(e *Engine) {
		e.coefficients = table
	}
}

// Engine runs derived-analytics computations against a Store.
type Engine struct {
	store        domain.Store
	durations    []int
	coefficients CoefficientTable
	timeout      time.Duration
	logger       *log.Logger
}

// NewEngine constructs an Engine.
func NewEngine(store domain.Store, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		durations:    CurveDurations,
		coefficients: DefaultCoefficients(),
		timeout:      2 * time.Minute,
		logger:       log.New(log.Writer(), "[analytics] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RecomputePowerCurve rebuilds the full curve for one user and sport from
// every stored activity, then replaces the stored curve atomically. Partial
// per-activity reductions merge by max, so the result is independent of
// activity order.
func (e *Engine) RecomputePowerCurve(ctx context.Context, userID, sport string) error {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	best := make(map[int]float64, len(e.durations))
	scanned := 0

	offset := 0
	for {
		page, err := e.store.ListActivities(ctx, domain.ActivityFilter{
			UserID:    userID,
			SportType: sport,
			Limit:     listPageSize,
			Offset:    offset,
		})
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		for _, act := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			partial, err := e.activityBest(ctx, act.ID)
			if err != nil {
				return fmt.Errorf("power curve for activity %s: %w", act.ID, err)
			}
			for d, w := range partial {
				if w > best[d] {
					best[d] = w
				}
			}
			scanned++
		}
		if len(page) < listPageSize {
			break
		}
		offset += len(page)
	}

	now := time.Now().UTC()
	points := make([]domain.PowerCurvePoint, 0, len(best))
	for _, d := range e.durations {
		if w, ok := best[d]; ok {
			points = append(points, domain.PowerCurvePoint{DurationS: d, Watts: w, ComputedAt: now})
		}
	}

	if err := e.store.ReplacePowerCurve(ctx, userID, sport, points); err != nil {
		return err
	}
	observability.RecordPowerCurveRecompute(scanned)
	e.logger.Printf("recomputed power curve for user %s sport %s: %d activities, %d durations",
		userID, sport, scanned, len(points))
	return nil
}

func (e *Engine) activityBest(ctx context.Context, activityID string) (map[int]float64, error) {
	streams, err := e.store.GetStreams(ctx, activityID, domain.StreamQuery{
		Fields: []string{domain.FieldPower},
	})
	if err != nil {
		return nil, err
	}
	power := make([]float64, len(streams))
	for i, s := range streams {
		if s.PowerW != nil {
			power[i] = float64(*s.PowerW)
		}
	}
	return bestMeanPowers(power, e.durations), nil
}

// bestMeanPowers finds, for each duration, the maximum mean over any
// contiguous window of that many samples. Prefix sums keep the scan linear
// per duration. Durations longer than the series produce no entry.
func bestMeanPowers(power []float64, durations []int) map[int]float64 {
	out := make(map[int]float64, len(durations))
	if len(power) == 0 {
		return out
	}
	prefix := make([]float64, len(power)+1)
	for i, p := range power {
		prefix[i+1] = prefix[i] + p
	}
	for _, d := range durations {
		if d <= 0 || d > len(power) {
			continue
		}
		best := 0.0
		for i := d; i <= len(power); i++ {
			if sum := prefix[i] - prefix[i-d]; sum > best {
				best = sum
			}
		}
		out[d] = best / float64(d)
	}
	return out
}
