package analytics

import (
	"context"
	"errors"
	"math"

	"example.com/kinetic/internal/domain"
)

// Morton 3-parameter critical power model: P(t) = CP + W'/(t - k).
//
// Fit bounds follow the established physiological ranges.
const (
	cpMin, cpMax = 100.0, 400.0
	wpMin, wpMax = 5000.0, 50000.0
	kMin, kMax   = -120.0, 120.0

	// Curve points are grouped into short, medium and long efforts; a fit
	// needs at least one point in each band.
	shortBandMax = 180
	longBandMin  = 720
)

// ErrInsufficientCurve means the power curve does not span enough effort
// durations to constrain the model.
var ErrInsufficientCurve = errors.New("power curve lacks short, medium and long efforts")

// CPModel is a fitted Morton model.
type CPModel struct {
	CriticalPower float64 // watts
	WPrime        float64 // joules
	K             float64 // seconds
	MSE           float64
}

// PowerAt evaluates the model at duration t seconds.
func (m CPModel) PowerAt(t float64) float64 {
	return m.CriticalPower + m.WPrime/(t-m.K)
}

// FitCriticalPower fits the Morton model to a power curve. The time
// asymptote k is swept over its bounded range; for each k the remaining two
// parameters have a closed-form least-squares solution in x = 1/(t-k). The
// sweep keeps the best in-bounds fit by mean squared error over all points.
func FitCriticalPower(points []domain.PowerCurvePoint) (CPModel, error) {
	var short, medium, long int
	for _, p := range points {
		switch {
		case p.DurationS < shortBandMax:
			short++
		case p.DurationS < longBandMin:
			medium++
		default:
			long++
		}
	}
	if short == 0 || medium == 0 || long == 0 {
		return CPModel{}, ErrInsufficientCurve
	}

	minT := math.Inf(1)
	for _, p := range points {
		if t := float64(p.DurationS); t < minT {
			minT = t
		}
	}

	best := CPModel{MSE: math.Inf(1)}
	for k := kMin; k <= kMax; k += 0.5 {
		if k >= minT {
			break
		}
		cp, wp, ok := solveLinear(points, k)
		if !ok {
			continue
		}
		if cp < cpMin || cp > cpMax || wp < wpMin || wp > wpMax {
			continue
		}
		mse := 0.0
		for _, p := range points {
			pred := cp + wp/(float64(p.DurationS)-k)
			diff := pred - p.Watts
			mse += diff * diff
		}
		mse /= float64(len(points))
		if mse < best.MSE {
			best = CPModel{CriticalPower: cp, WPrime: wp, K: k, MSE: mse}
		}
	}
	if math.IsInf(best.MSE, 1) {
		return CPModel{}, ErrInsufficientCurve
	}
	return best, nil
}

// RefreshCriticalPower refits the Morton model from the stored power curve
// and writes the estimated CP and W' back onto the user's profile. A curve
// too sparse to constrain the model leaves the profile untouched.
func (e *Engine) RefreshCriticalPower(ctx context.Context, userID, sport string) error {
	points, err := e.store.GetPowerCurve(ctx, userID, sport)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	model, err := FitCriticalPower(points)
	if err != nil {
		if errors.Is(err, ErrInsufficientCurve) {
			e.logger.Printf("user %s sport %s: %v", userID, sport, err)
			return nil
		}
		return err
	}

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	user.CriticalPower = model.CriticalPower
	user.WPrime = model.WPrime
	if err := e.store.UpsertUser(ctx, *user); err != nil {
		return err
	}
	e.logger.Printf("user %s sport %s: cp=%.0fW wprime=%.0fJ (mse %.1f)",
		userID, sport, model.CriticalPower, model.WPrime, model.MSE)
	return nil
}

// solveLinear least-squares fits P = cp + wp*x with x = 1/(t-k).
func solveLinear(points []domain.PowerCurvePoint, k float64) (cp, wp float64, ok bool) {
	n := float64(len(points))
	var sumX, sumY, sumXX, sumXY float64
	for _, p := range points {
		x := 1 / (float64(p.DurationS) - k)
		y := p.Watts
		sumX += x
		sumY += y
		sumXX += x * x
		sumXY += x * y
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, 0, false
	}
	wp = (n*sumXY - sumX*sumY) / denom
	cp = (sumY - wp*sumX) / n
	return cp, wp, true
}
