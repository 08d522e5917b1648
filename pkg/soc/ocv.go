package soc

import (
	"errors"

	"github.com/SeanJxie/polygo"
	"github.com/openacid/slimarray/polyfit"

	"github.com/battlab/socfit/pkg/mathutil"
)

// ErrTooFewPoints indicates a voltage curve needs more observations.
var ErrTooFewPoints = errors.New("soc: too few points for voltage curve")

// VoltageCurve maps state of charge to terminal voltage with a cubic fit
// over observed (SOC, voltage) pairs. It stands in for runs whose voltage
// telemetry is missing.
type VoltageCurve struct {
	Coeffs []float64
	poly   *polygo.RealPolynomial
	minV   float64
	maxV   float64
}

// NewVoltageCurve fits the curve from paired SOC (0..100) and voltage (mV)
// series. Non-finite pairs are dropped; at least eight remaining pairs over
// at least four distinct SOC levels are required so the cubic is not
// underdetermined by a flat discharge segment.
func NewVoltageCurve(socPct, voltageMV []float64) (*VoltageCurve, error) {
	var xs, ys []float64
	levels := map[float64]struct{}{}
	for i := range socPct {
		if i >= len(voltageMV) {
			break
		}
		if mathutil.IsFinite(socPct[i]) && mathutil.IsFinite(voltageMV[i]) && voltageMV[i] > 0 {
			xs = append(xs, socPct[i]/100.0)
			ys = append(ys, voltageMV[i]/1000.0)
			levels[socPct[i]] = struct{}{}
		}
	}
	if len(xs) < 8 || len(levels) < 4 {
		return nil, ErrTooFewPoints
	}

	f := polyfit.NewFit(xs, ys, 3)
	coeffs := f.Solve()

	p, err := polygo.NewRealPolynomial(coeffs)
	if err != nil {
		return nil, err
	}

	minV, maxV := ys[0], ys[0]
	for _, v := range ys {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	return &VoltageCurve{Coeffs: coeffs, poly: p, minV: minV, maxV: maxV}, nil
}

// VoltageV evaluates the curve at a 0..1 state of charge, clamped to the
// observed voltage range so the cubic tails cannot run away.
func (c *VoltageCurve) VoltageV(soc float64) float64 {
	v := c.poly.At(mathutil.Clamp01(soc))
	if v < c.minV {
		return c.minV
	}
	if v > c.maxV {
		return c.maxV
	}
	return v
}
