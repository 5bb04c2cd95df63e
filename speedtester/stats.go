package speedtester

import "math"

// Mean is the arithmetic mean of values, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Jitter is the mean of absolute differences between adjacent readings.
// Fewer than two readings give 0.
func Jitter(readings []float64) float64 {
	if len(readings) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(readings); i++ {
		sum += math.Abs(readings[i] - readings[i-1])
	}
	return sum / float64(len(readings)-1)
}

// MinMax returns the smallest and largest reading.
func MinMax(readings []float64) (float64, float64) {
	if len(readings) == 0 {
		return 0, 0
	}
	lo, hi := readings[0], readings[0]
	for _, v := range readings[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// Round2 rounds to two decimal places and clamps negatives, NaN and Inf to 0.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return math.Round(v*100) / 100
}

// Mbps converts a transfer of n bytes over seconds to megabits per second
// using a 2^20 megabit.
func Mbps(n int64, seconds float64) float64 {
	if n <= 0 || seconds <= 0 {
		return 0
	}
	return float64(n*8) / seconds / 1_048_576
}
