package soc

import (
	"math"

	"github.com/battlab/socfit/pkg/dataset"
	"github.com/battlab/socfit/pkg/mathutil"
)

// Options configures the charge integrator. Zero fields take defaults.
type Options struct {
	// CEffMAh is the effective battery capacity.
	CEffMAh float64

	// FallbackVoltageV substitutes for samples with no usable voltage when
	// no curve is available.
	FallbackVoltageV float64

	// EmptySOCPct is the level treated as empty for time-to-empty.
	EmptySOCPct float64

	// Curve, when set, supplies voltage from the simulated state of charge
	// for samples whose voltage telemetry is missing.
	Curve *VoltageCurve
}

func (o Options) withDefaults() Options {
	if o.CEffMAh <= 0 {
		o.CEffMAh = 4410
	}
	if o.FallbackVoltageV <= 0 {
		o.FallbackVoltageV = 3.85
	}
	if o.EmptySOCPct < 0 {
		o.EmptySOCPct = 0
	}
	return o
}

// Trajectory is the integrated state of charge for one run.
type Trajectory struct {
	// SOCPct holds the simulated level per sample, clipped to 0..100.
	SOCPct []float64

	// Clipped reports whether any integration step ran into a bound.
	Clipped bool

	// TTESeconds is the time from run start until the level reaches
	// EmptySOCPct. When the crossing happens inside the run it is
	// interpolated between samples and TTEObserved is true; otherwise it
	// is extrapolated from the run's mean discharge rate, and it is +Inf
	// for a run that does not discharge.
	TTESeconds  float64
	TTEObserved bool
}

// Integrate advances the state of charge across the run under the given
// per-sample power draw:
//
//	dSOC = P·dt / (V · 3600 · C_eff)
//
// Samples with a non-positive dt hold the previous level. powerMW must be
// indexed like r.Samples; pass the model prediction, or the measured trace
// for a coulomb-counting baseline.
func Integrate(r dataset.Run, powerMW []float64, opts Options) Trajectory {
	opts = opts.withDefaults()
	n := len(r.Samples)
	if n == 0 {
		return Trajectory{TTESeconds: math.Inf(1)}
	}

	v := r.Column(func(s dataset.Sample) float64 {
		if s.VoltageMV > 0 {
			return s.VoltageMV / 1000.0
		}
		return math.NaN()
	})
	mathutil.FillGaps(v, mathutil.Median(v))

	p := make([]float64, n)
	copy(p, powerMW)
	mathutil.FillGaps(p, 0)

	soc0 := 0.5
	if s := r.StartSOCPct(); mathutil.IsFinite(s) {
		soc0 = s / 100.0
	}

	empty := opts.EmptySOCPct / 100.0
	denom := 3600.0 * opts.CEffMAh

	traj := Trajectory{
		SOCPct:     make([]float64, n),
		TTESeconds: math.Inf(1),
	}
	traj.SOCPct[0] = mathutil.Clamp01(soc0) * 100

	soc := mathutil.Clamp01(soc0)
	var elapsed float64
	for i := 0; i < n-1; i++ {
		dt := r.Samples[i].Dt
		if !mathutil.IsFinite(dt) || dt <= 0 {
			traj.SOCPct[i+1] = soc * 100
			continue
		}

		vi := v[i]
		if !mathutil.IsFinite(vi) || vi <= 0 {
			vi = opts.FallbackVoltageV
			if opts.Curve != nil {
				if cv := opts.Curve.VoltageV(soc); mathutil.IsFinite(cv) && cv > 0 {
					vi = cv
				}
			}
		}

		next := soc - p[i]/(vi*denom)*dt
		if next < 0 || next > 1 {
			traj.Clipped = true
		}

		if !traj.TTEObserved && soc > empty && next <= empty {
			frac := 1.0
			if soc != next {
				frac = (soc - empty) / (soc - next)
			}
			traj.TTESeconds = elapsed + dt*frac
			traj.TTEObserved = true
		}

		soc = mathutil.Clamp01(next)
		elapsed += dt
		traj.SOCPct[i+1] = soc * 100
	}

	if !traj.TTEObserved && elapsed > 0 {
		rate := (mathutil.Clamp01(soc0) - soc) / elapsed
		if rate > 0 && soc > empty {
			traj.TTESeconds = elapsed + (soc-empty)/rate
		}
	}
	return traj
}

// FitError compares a simulated trajectory against the run's reported level.
type FitError struct {
	N       int
	RMSEPct float64
	MAPEPct float64
}

// CompareMeasured scores the trajectory against the measured SOC where both
// are present.
func CompareMeasured(r dataset.Run, traj Trajectory) FitError {
	var sq, ape float64
	var n int
	for i, s := range r.Samples {
		if i >= len(traj.SOCPct) {
			break
		}
		if !mathutil.IsFinite(s.SOCPct) || !mathutil.IsFinite(traj.SOCPct[i]) {
			continue
		}
		err := traj.SOCPct[i] - s.SOCPct
		sq += err * err
		ape += math.Abs(err) / math.Max(math.Abs(s.SOCPct), 1e-6)
		n++
	}
	if n == 0 {
		return FitError{RMSEPct: math.NaN(), MAPEPct: math.NaN()}
	}
	fn := float64(n)
	return FitError{
		N:       n,
		RMSEPct: math.Sqrt(sq / fn),
		MAPEPct: ape / fn * 100,
	}
}
