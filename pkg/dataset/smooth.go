package dataset

import (
	"fmt"
	"math"

	"github.com/pconstantinou/savitzkygolay"
	"gonum.org/v1/gonum/floats"

	"github.com/battlab/socfit/pkg/mathutil"
)

// SmoothMethod selects the power-trace smoother.
type SmoothMethod string

const (
	SmoothSavGol SmoothMethod = "savgol"
	SmoothEMA    SmoothMethod = "ema"
	SmoothNone   SmoothMethod = "none"
)

// SmoothOptions configures SmoothPower. Zero fields take defaults.
type SmoothOptions struct {
	Method SmoothMethod
	// Window is the Savitzky-Golay window length, forced odd and >= 5.
	Window int
	// PolyOrder is the Savitzky-Golay polynomial order.
	PolyOrder int
	// Alpha is the EMA smoothing factor in (0, 1].
	Alpha float64
}

func (o *SmoothOptions) withDefaults() {
	if o.Method == "" {
		o.Method = SmoothSavGol
	}
	if o.Window <= 0 {
		o.Window = 21
	}
	if o.Window%2 == 0 {
		o.Window++
	}
	if o.Window < 5 {
		o.Window = 5
	}
	if o.PolyOrder <= 0 {
		o.PolyOrder = 2
	}
	if o.Alpha <= 0 || o.Alpha > 1 {
		o.Alpha = 0.2
	}
}

// SmoothPower returns a smoothed copy of the run's total power trace.
// Gaps are forward/backward filled before smoothing so the filter never
// sees NaN.
func SmoothPower(r Run, opts SmoothOptions) ([]float64, error) {
	opts.withDefaults()

	p := r.Column(func(s Sample) float64 { return s.PowerTotalMW })
	mathutil.FillGaps(p, 0)

	switch opts.Method {
	case SmoothNone:
		return p, nil

	case SmoothEMA:
		out := make([]float64, len(p))
		ema := mathutil.NewEMA(opts.Alpha)
		for i, v := range p {
			out[i] = ema.Next(v)
		}
		return out, nil

	case SmoothSavGol:
		if len(p) < opts.Window {
			// Short runs pass through untouched.
			return p, nil
		}
		f, err := savitzkygolay.NewFilter(opts.Window, 0, opts.PolyOrder)
		if err != nil {
			return nil, fmt.Errorf("smooth power: %w", err)
		}
		t := timeAxis(r)
		out, err := f.Process(p, t)
		if err != nil {
			return nil, fmt.Errorf("smooth power: %w", err)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("smooth power: unknown method %q", opts.Method)
	}
}

// timeAxis returns the run's sample times, rebuilt from dt when t is
// missing.
func timeAxis(r Run) []float64 {
	t := r.Column(func(s Sample) float64 { return s.T })
	for _, v := range t {
		if math.IsNaN(v) {
			dt := r.Column(func(s Sample) float64 { return s.Dt })
			mathutil.FillGaps(dt, 1)
			floats.CumSum(dt, dt)
			first := dt[0]
			for i := range dt {
				dt[i] -= first
			}
			return dt
		}
	}
	return t
}
