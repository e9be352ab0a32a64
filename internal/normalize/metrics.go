package normalize

import "math"

var nan = math.NaN()

const (
	rollingWindow = 30 // seconds of power smoothed before the 4th-power mean

	// Intensity zone boundaries as fractions of critical power.
	lowIntensityCeil   = 0.75
	highIntensityFloor = 0.90
)

// normalizedPower computes the rolling 4th-power-mean intensity metric: power
// is smoothed over a 30 sample window, each windowed mean is raised to the
// 4th power, and the result is the 4th root of their average. Activities
// shorter than one window fall back to the plain average.
func normalizedPower(power []float64) float64 {
	if len(power) == 0 {
		return 0
	}
	if len(power) < rollingWindow {
		return meanValid(power)
	}
	sum := 0.0
	for i := 0; i < rollingWindow; i++ {
		sum += power[i]
	}
	totalFourth := 0.0
	count := 0
	for i := rollingWindow - 1; i < len(power); i++ {
		if i >= rollingWindow {
			sum += power[i] - power[i-rollingWindow]
		}
		roll := sum / float64(rollingWindow)
		totalFourth += math.Pow(roll, 4)
		count++
	}
	if count == 0 {
		return meanValid(power)
	}
	return math.Pow(totalFourth/float64(count), 0.25)
}

// trainingLoad is the duration-weighted intensity integral: one hour at
// critical power scores 100.
func trainingLoad(durationS, np, cp float64) float64 {
	if durationS <= 0 || np <= 0 || cp <= 0 {
		return 0
	}
	intensity := np / cp
	return durationS / 3600 * intensity * intensity * 100
}

// polarizationIndex is the ratio of time spent below the low-intensity
// ceiling to time spent above the high-intensity floor, both relative to
// critical power. Zero when no high-intensity time exists.
func polarizationIndex(power []float64, cp float64) float64 {
	if cp <= 0 {
		return 0
	}
	low, high := 0, 0
	for _, p := range power {
		switch {
		case p < lowIntensityCeil*cp:
			low++
		case p > highIntensityFloor*cp:
			high++
		}
	}
	if high == 0 {
		return 0
	}
	return float64(low) / float64(high)
}

// efficiencyDrift compares the num:den ratio between the first and second
// half of the activity. Positive values mean the second half was less
// efficient (fading); the result is a percentage. Samples where either
// channel is absent are ignored, and the metric is zero unless both halves
// have usable data.
func efficiencyDrift(num, den []float64) float64 {
	n := len(num)
	if len(den) < n {
		n = len(den)
	}
	half := n / 2

	ratioOf := func(lo, hi int) (float64, bool) {
		sumN, sumD, count := 0.0, 0.0, 0
		for i := lo; i < hi; i++ {
			if math.IsNaN(num[i]) || math.IsNaN(den[i]) || den[i] <= 0 {
				continue
			}
			sumN += num[i]
			sumD += den[i]
			count++
		}
		if count == 0 || sumD == 0 {
			return 0, false
		}
		return sumN / sumD, true
	}

	first, ok1 := ratioOf(0, half)
	second, ok2 := ratioOf(half, n)
	if !ok1 || !ok2 || first == 0 {
		return 0
	}
	return (first - second) / first * 100
}

// gradeAdjustedSpeed corrects each speed sample for the metabolic cost of
// its grade. Grade is smoothed with a centered 5 sample window first; the
// relative cost curve is quadratic in the grade fraction and increases with
// steeper climbs. Samples missing either channel come back as NaN.
func gradeAdjustedSpeed(speed, grade []float64) []float64 {
	n := len(speed)
	if len(grade) < n {
		n = len(grade)
	}
	smoothed := smooth(grade[:n], 5)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(speed[i]) || math.IsNaN(smoothed[i]) {
			out[i] = nan
			continue
		}
		g := smoothed[i] / 100
		cost := 15.14*g*g - 2.896*g
		if cost < -0.9 {
			cost = -0.9
		}
		out[i] = speed[i] / (1 + cost)
	}
	return out
}

// smooth applies a centered rolling mean, skipping NaN entries.
func smooth(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	half := window / 2
	for i := range values {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half + 1
		if hi > len(values) {
			hi = len(values)
		}
		sum, count := 0.0, 0
		for j := lo; j < hi; j++ {
			if math.IsNaN(values[j]) {
				continue
			}
			sum += values[j]
			count++
		}
		if count == 0 {
			out[i] = nan
		} else {
			out[i] = sum / float64(count)
		}
	}
	return out
}

// compact drops NaN entries, keeping order.
func compact(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func meanValid(values []float64) float64 {
	sum, count := 0.0, 0
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
