package powermodel

import (
	"math"

	"github.com/battlab/socfit/pkg/dataset"
	"github.com/battlab/socfit/pkg/mathutil"
	"github.com/battlab/socfit/pkg/regress"
)

// FittedRun carries one run's simulated temperatures and per-sample
// predictions after calibration. Slices are indexed like Run.Samples.
type FittedRun struct {
	Run dataset.Run

	TempCPUHatC  []float64
	TempBattHatC []float64 // nil under the single-state model
	TempLeakHatC []float64

	P0MW    []float64 // base prediction, no off-state offsets
	PredMW  []float64
	ResidMW []float64 // measured − base prediction
}

// FitResult is the full calibration output: the parameter set, the per-run
// thermal table, and the predicted training samples.
type FitResult struct {
	Params  Params
	Runs    []FittedRun
	Thermal []ThermalFit

	// Where each off-state offset came from: "off−on run pair" names, or
	// "none" when the pair was absent.
	GPSSource      string
	CellularSource string
}

// Calibrate runs the two-stage fit over the dataset:
//
//  1. per-run thermal fit and forward simulation, giving the leak-feature
//     temperature for every sample;
//  2. a regularized fit of the electrical model on the dominant operating
//     point (GPS on and cellular on), followed by A/B residual offsets for
//     the off states.
//
// Rows without a positive dt or a measured total power are excluded.
func Calibrate(ds dataset.Dataset, opts Options) (*FitResult, error) {
	opts = opts.withDefaults()
	gamma := opts.LeakGamma()

	res := &FitResult{}
	for _, r := range ds.Runs {
		fr := usableRows(r)
		if len(fr.Samples) == 0 {
			continue
		}

		fitted := FittedRun{Run: fr}
		switch opts.Thermal {
		case Thermal2State:
			th := FitThermal2(fr)
			cpu, batt, leak := Simulate2(fr, th, opts.LeakMixCPU)
			fitted.TempCPUHatC = cpu
			fitted.TempBattHatC = batt
			fitted.TempLeakHatC = leak
			res.Thermal = append(res.Thermal, ThermalFit{
				RunName:     fr.Name,
				Model:       Thermal2State,
				TAmbC:       th.TAmbC,
				ACPUPerS:    th.ACPUPerS,
				BCPUCPerJ:   th.BCPUCPerJ,
				ABattPerS:   th.ABattPerS,
				BCouplePerS: th.BCouplePerS,
				TauCPUS:     tau(th.ACPUPerS),
				TauBattS:    tau(th.ABattPerS),
				LeakMixCPU:  opts.LeakMixCPU,
			})
		default:
			th := FitThermal1(fr)
			hat := Simulate1(fr, th)
			fitted.TempCPUHatC = hat
			fitted.TempLeakHatC = hat
			res.Thermal = append(res.Thermal, ThermalFit{
				RunName:    fr.Name,
				Model:      Thermal1State,
				TAmbC:      th.TAmbC,
				ACPUPerS:   th.APerS,
				BCPUCPerJ:  th.BCPerJ,
				ABattPerS:  math.NaN(),
				TauCPUS:    tau(th.APerS),
				TauBattS:   math.NaN(),
				LeakMixCPU: math.NaN(),
			})
		}
		res.Runs = append(res.Runs, fitted)
	}
	if len(res.Runs) == 0 {
		return nil, ErrNoCalibrationRows
	}

	// The leak reference is the median simulated temperature over all
	// training rows, so the feature is near 1 at the typical operating
	// point and the intercept stays interpretable.
	var allLeak []float64
	for _, fr := range res.Runs {
		allLeak = append(allLeak, fr.TempLeakHatC...)
	}
	tRef := mathutil.Median(allLeak)

	var y, ones, screen, cpu, leak []float64
	for _, fr := range res.Runs {
		for i, s := range fr.Run.Samples {
			if !s.GPSOn || !s.CellularOn {
				continue
			}
			y = append(y, s.PowerTotalMW)
			ones = append(ones, 1)
			screen = append(screen, orZero(s.PowerScreenMW))
			cpu = append(cpu, orZero(s.PowerCPUMW))
			leak = append(leak, math.Exp(gamma*(fr.TempLeakHatC[i]-tRef)))
		}
	}
	if len(y) == 0 {
		return nil, ErrNoBaselineRows
	}

	x := regress.Design(ones, screen, cpu, leak)
	var beta []float64
	var err error
	if opts.Robust {
		beta, err = regress.HuberIRLS(x, y, regress.DefaultHuber())
	} else {
		beta, err = regress.Ridge(x, y, opts.RidgeAlpha)
	}
	if err != nil {
		return nil, err
	}

	p := Params{
		PBaseMW:       beta[0],
		KScreen:       beta[1],
		KCPU:          beta[2],
		KLeakMW:       beta[3],
		LeakGammaPerC: gamma,
		LeakTRefC:     tRef,
		CEffMAh:       opts.CEffMAh,
	}

	// Base predictions and residuals over every training row, including the
	// off-state rows the base fit never saw.
	for ri := range res.Runs {
		fr := &res.Runs[ri]
		n := len(fr.Run.Samples)
		fr.P0MW = make([]float64, n)
		fr.ResidMW = make([]float64, n)
		for i, s := range fr.Run.Samples {
			feat := math.Exp(gamma * (fr.TempLeakHatC[i] - tRef))
			fr.P0MW[i] = p.PBaseMW +
				p.KScreen*orZero(s.PowerScreenMW) +
				p.KCPU*orZero(s.PowerCPUMW) +
				p.KLeakMW*feat
			fr.ResidMW[i] = s.PowerTotalMW - fr.P0MW[i]
		}
	}

	p.KGPSOffMW, res.GPSSource = abOffset(res.Runs, opts.GPSOffPair)
	p.KCellularOffMW, res.CellularSource = abOffset(res.Runs, opts.CellularOffPair)

	for ri := range res.Runs {
		fr := &res.Runs[ri]
		fr.PredMW = make([]float64, len(fr.Run.Samples))
		for i, s := range fr.Run.Samples {
			fr.PredMW[i] = fr.P0MW[i] +
				p.KGPSOffMW*offFrac(s.GPSOn) +
				p.KCellularOffMW*offFrac(s.CellularOn)
		}
	}

	res.Params = p
	return res, nil
}

// abOffset estimates an off-state offset as mean residual of the off run
// minus mean residual of the on run, clamped non-positive.
func abOffset(runs []FittedRun, pair *ABPair) (float64, string) {
	if pair == nil {
		return 0, "none"
	}
	off, okOff := meanResid(runs, pair.OffRun)
	on, okOn := meanResid(runs, pair.OnRun)
	if !okOff || !okOn {
		return 0, "none"
	}
	return math.Min(0, off-on), pair.OffRun + "-" + pair.OnRun
}

func meanResid(runs []FittedRun, name string) (float64, bool) {
	for _, fr := range runs {
		if fr.Run.Name != name {
			continue
		}
		var sum, n float64
		for _, v := range fr.ResidMW {
			if mathutil.IsFinite(v) {
				sum += v
				n++
			}
		}
		if n == 0 {
			return 0, false
		}
		return sum / n, true
	}
	return 0, false
}

// usableRows keeps samples with a positive dt and a measured total power.
func usableRows(r dataset.Run) dataset.Run {
	out := dataset.Run{Name: r.Name, Scenario: r.Scenario}
	for _, s := range r.Samples {
		if mathutil.IsFinite(s.Dt) && s.Dt > 0 && mathutil.IsFinite(s.PowerTotalMW) {
			out.Samples = append(out.Samples, s)
		}
	}
	return out
}

func orZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func offFrac(on bool) float64 {
	if on {
		return 0
	}
	return 1
}

func tau(a float64) float64 {
	if a < 0 {
		return -1.0 / a
	}
	return math.Inf(1)
}
