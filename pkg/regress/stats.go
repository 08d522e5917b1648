package regress

import (
	"math"

	"github.com/battlab/socfit/pkg/mathutil"
)

// Pearson returns the correlation coefficient over finite pairs. Fewer than
// three finite pairs, or a zero-variance input, yields NaN.
func Pearson(x, y []float64) float64 {
	var sx, sy, n float64
	for i := range x {
		if mathutil.IsFinite(x[i]) && mathutil.IsFinite(y[i]) {
			sx += x[i]
			sy += y[i]
			n++
		}
	}
	if n < 3 {
		return math.NaN()
	}
	mx, my := sx/n, sy/n

	var sxy, sxx, syy float64
	for i := range x {
		if mathutil.IsFinite(x[i]) && mathutil.IsFinite(y[i]) {
			dx, dy := x[i]-mx, y[i]-my
			sxy += dx * dy
			sxx += dx * dx
			syy += dy * dy
		}
	}
	den := math.Sqrt(sxx / n * (syy / n))
	if den <= 0 {
		return math.NaN()
	}
	return (sxy / n) / den
}

// Metrics summarizes a residual vector in mW.
type Metrics struct {
	N      int
	MAEmW  float64
	RMSEmW float64
	BiasmW float64
}

// Summarize computes residual metrics over the finite entries.
func Summarize(resid []float64) Metrics {
	var absSum, sqSum, sum float64
	var n int
	for _, r := range resid {
		if !mathutil.IsFinite(r) {
			continue
		}
		absSum += math.Abs(r)
		sqSum += r * r
		sum += r
		n++
	}
	if n == 0 {
		return Metrics{N: 0, MAEmW: math.NaN(), RMSEmW: math.NaN(), BiasmW: math.NaN()}
	}
	fn := float64(n)
	return Metrics{
		N:      n,
		MAEmW:  absSum / fn,
		RMSEmW: math.Sqrt(sqSum / fn),
		BiasmW: sum / fn,
	}
}
