package mathutil

import (
	"math"
	"sort"
)

type EMA struct {
	alpha, prev float64
	ok          bool
}

func NewEMA(alpha float64) *EMA { return &EMA{alpha: alpha} }
func (e *EMA) Next(v float64) float64 {
	if !e.ok {
		e.prev, e.ok = v, true
		return v
	}
	e.prev = e.alpha*v + (1-e.alpha)*e.prev
	return e.prev
}

func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	// guard against NaN
	if math.IsNaN(x) {
		return 0
	}
	return x
}

// Median ignores NaN entries. Returns NaN when no finite values remain.
func Median(xs []float64) float64 {
	vals := make([]float64, 0, len(xs))
	for _, v := range xs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return 0.5 * (vals[n/2-1] + vals[n/2])
}

// MAD returns the median absolute deviation scaled by 1.4826 so that it
// estimates the standard deviation under normality.
func MAD(xs []float64) float64 {
	med := Median(xs)
	if math.IsNaN(med) {
		return math.NaN()
	}
	dev := make([]float64, 0, len(xs))
	for _, v := range xs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			dev = append(dev, math.Abs(v-med))
		}
	}
	return 1.4826 * Median(dev)
}

// FillGaps forward-fills then back-fills NaN entries in place, substituting
// fallback when the whole series is NaN. Returns xs for chaining.
func FillGaps(xs []float64, fallback float64) []float64 {
	last := math.NaN()
	for i, v := range xs {
		if math.IsNaN(v) {
			xs[i] = last
		} else {
			last = v
		}
	}
	next := math.NaN()
	for i := len(xs) - 1; i >= 0; i-- {
		if math.IsNaN(xs[i]) {
			xs[i] = next
		} else {
			next = xs[i]
		}
	}
	for i, v := range xs {
		if math.IsNaN(v) {
			xs[i] = fallback
		}
	}
	return xs
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
