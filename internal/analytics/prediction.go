package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"example.com/kinetic/internal/domain"
)

const predictionIterations = 10

// Athlete carries the physiological inputs race prediction needs.
type Athlete struct {
	CriticalPower        float64 // watts
	TimeToExhaustion     float64 // seconds CP is sustainable
	RunningEffectiveness float64 // (m/s) per (W/kg)
	RiegelExponent       float64 // negative: power decays past TTE
	WeightKG             float64
}

// PredictRace estimates finish time and sustainable power for a race
// distance. Finish time and power are coupled, so the solver iterates to a
// fixed point: guess a power, derive the finish time from speed, then derive
// the power sustainable for that long from the Riegel decay anchored at
// (TTE, CP). Ten iterations converge well inside a watt.
func PredictRace(distanceM float64, athlete Athlete) (timeS, powerW float64, err error) {
	if distanceM <= 0 {
		return 0, 0, fmt.Errorf("%w: non-positive race distance", domain.ErrInvalidRange)
	}
	if athlete.CriticalPower <= 0 || athlete.TimeToExhaustion <= 0 ||
		athlete.RunningEffectiveness <= 0 || athlete.WeightKG <= 0 {
		return 0, 0, fmt.Errorf("%w: athlete physiology incomplete", domain.ErrInvalidRange)
	}
	if athlete.RiegelExponent >= 0 {
		return 0, 0, fmt.Errorf("%w: riegel exponent must be negative", domain.ErrInvalidRange)
	}

	perWatt := athlete.RunningEffectiveness / athlete.WeightKG // (m/s) per watt

	powerFor := func(duration float64) (float64, error) {
		if duration < athlete.TimeToExhaustion {
			return 0, fmt.Errorf("%w: predicted duration %.0fs shorter than time to exhaustion",
				domain.ErrInvalidRange, duration)
		}
		if duration == athlete.TimeToExhaustion {
			return athlete.CriticalPower, nil
		}
		return athlete.CriticalPower * math.Pow(duration/athlete.TimeToExhaustion, athlete.RiegelExponent), nil
	}

	power := athlete.CriticalPower * 0.9
	var predicted float64
	for i := 0; i < predictionIterations; i++ {
		predicted = distanceM / (power * perWatt)
		power, err = powerFor(predicted)
		if err != nil {
			return 0, 0, err
		}
	}
	return predicted, power, nil
}

// UpdateRacePredictions re-predicts every upcoming race for the user from
// their current physiology and stores the results. Races whose inputs are
// unusable are skipped, not failed, so one bad row never blocks the rest.
func (e *Engine) UpdateRacePredictions(ctx context.Context, userID string) error {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	athlete := Athlete{
		CriticalPower:        user.CriticalPower,
		TimeToExhaustion:     user.TimeToExhaustion,
		RunningEffectiveness: user.RunningEffectiveness,
		RiegelExponent:       user.RiegelExponent,
		WeightKG:             user.WeightKG,
	}
	if athlete.RiegelExponent == 0 {
		athlete.RiegelExponent = e.coefficients.RiegelExponent
	}

	races, err := e.store.ListRaces(ctx, userID, time.Now().UTC())
	if err != nil {
		return err
	}
	for _, race := range races {
		adjusted := athlete
		adjusted.RunningEffectiveness *= e.coefficients.Factor(race.Sport)

		timeS, powerW, err := PredictRace(race.DistanceM, adjusted)
		if err != nil {
			e.logger.Printf("skipping prediction for race %s: %v", race.ID, err)
			continue
		}
		race.PredictedTimeS = timeS
		race.PredictedPowerW = powerW
		race.UpdatedAt = time.Now().UTC()
		if err := e.store.UpsertRace(ctx, race); err != nil {
			return err
		}
	}
	return nil
}
