package signal

import "math"

// Or returns v, or def when v is the zero value.
func Or[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// Sanitize maps NaN and ±Inf to 0 and leaves finite values alone.
func Sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Unit restricts v to [0, 1]. Non-finite input yields 0.
func Unit(v float64) float64 {
	v = Sanitize(v)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// StdDev returns the population standard deviation, or 0 for fewer than
// two values.
func StdDev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	mean := Mean(vals)
	var variance float64
	for _, v := range vals {
		d := v - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(vals)))
}

// Uniformity is 1 - stddev clamped to [0, 1]; 1 means every value agrees.
func Uniformity(vals []float64) float64 {
	return Unit(1 - StdDev(vals))
}
