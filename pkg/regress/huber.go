package regress

import (
	"math"

	"github.com/battlab/socfit/pkg/mathutil"
	"gonum.org/v1/gonum/mat"
)

// HuberOptions controls the IRLS loop.
type HuberOptions struct {
	C       float64 // threshold in scaled-residual units
	MaxIter int
	Tol     float64 // convergence on max |Δβ|
}

// DefaultHuber returns the standard 95%-efficiency tuning.
func DefaultHuber() HuberOptions {
	return HuberOptions{C: 1.5, MaxIter: 30, Tol: 1e-9}
}

// HuberIRLS fits y ~ Xβ with Huber weights via iteratively reweighted least
// squares. X should include an intercept column if one is wanted. The residual
// scale is re-estimated each iteration from the MAD, falling back to the
// standard deviation and then to 1 for degenerate residuals.
func HuberIRLS(x *mat.Dense, y []float64, opt HuberOptions) ([]float64, error) {
	if opt.C <= 0 {
		opt.C = 1.5
	}
	if opt.MaxIter <= 0 {
		opt.MaxIter = 30
	}
	if opt.Tol <= 0 {
		opt.Tol = 1e-9
	}

	beta, err := LeastSquares(x, y)
	if err != nil {
		return nil, err
	}

	n, p := x.Dims()
	resid := make([]float64, n)
	xw := mat.NewDense(n, p, nil)
	yw := make([]float64, n)

	for iter := 0; iter < opt.MaxIter; iter++ {
		yhat := Predict(x, beta)
		for i := range resid {
			resid[i] = y[i] - yhat[i]
		}

		s := mathutil.MAD(resid)
		if !(s > 0) {
			s = stddev(resid)
		}
		if !(s > 0) {
			s = 1
		}

		for i := 0; i < n; i++ {
			w := 1.0
			if u := math.Abs(resid[i] / s); u > opt.C {
				w = opt.C / u
			}
			sw := math.Sqrt(w)
			for j := 0; j < p; j++ {
				xw.Set(i, j, x.At(i, j)*sw)
			}
			yw[i] = y[i] * sw
		}

		next, err := LeastSquares(xw, yw)
		if err != nil {
			// Keep the last stable iterate rather than failing mid-loop.
			return beta, nil
		}

		var maxDelta float64
		for i := range next {
			if d := math.Abs(next[i] - beta[i]); d > maxDelta {
				maxDelta = d
			}
		}
		beta = next
		if maxDelta < opt.Tol {
			break
		}
	}
	return beta, nil
}

func stddev(xs []float64) float64 {
	var sum, n float64
	for _, v := range xs {
		if mathutil.IsFinite(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / n
	var ss float64
	for _, v := range xs {
		if mathutil.IsFinite(v) {
			ss += (v - mean) * (v - mean)
		}
	}
	return math.Sqrt(ss / n)
}
