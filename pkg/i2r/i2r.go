// Package i2r tests a physical residual term: ohmic loss P = I²·R_int in the
// battery path, with the internal resistance parameterized on state of
// charge and CPU temperature. The term is fit and applied leave-one-
// scenario-out over run-level residuals, so its gains are out of fold.
package i2r

import (
	"math"
	"sort"

	"github.com/battlab/socfit/pkg/dataset"
	"github.com/battlab/socfit/pkg/loso"
	"github.com/battlab/socfit/pkg/mathutil"
	"github.com/battlab/socfit/pkg/regress"
)

// Variant selects the R_int parameterization.
type Variant string

const (
	// R0 is a constant resistance.
	R0 Variant = "R0"
	// R0RSOC adds a depletion term R1·(1−SOC).
	R0RSOC Variant = "R0_Rsoc"
	// R0RSOCRTemp adds a hot-CPU term R2·max(0, T_cpu−T_ref).
	R0RSOCRTemp Variant = "R0_Rsoc_Rtpos"
)

// Terms names the fitted coefficients in design order.
func (v Variant) Terms() []string {
	return []string{"beta_i2", "beta_i2_soc", "beta_i2_tpos"}[:v.nParams()]
}

func (v Variant) nParams() int {
	switch v {
	case R0:
		return 1
	case R0RSOC:
		return 2
	default:
		return 3
	}
}

// Options configures Fit.
type Options struct {
	Variant Variant

	// TRefC is the temperature above which the hot-CPU term engages.
	TRefC float64

	// Ridge is the regularization strength of the per-fold fit.
	Ridge float64

	// FitScale additionally fits a nonnegative scalar on the unclipped
	// training residuals and applies it to the predicted loss. This avoids
	// double counting when the base model already absorbs part of I²R.
	FitScale bool

	// OnlyQCKeep restricts the fit to runs the QC policy kept.
	OnlyQCKeep bool
}

func (o Options) withDefaults() Options {
	if o.Variant == "" {
		o.Variant = R0RSOCRTemp
	}
	if o.TRefC == 0 {
		o.TRefC = 40
	}
	if o.Ridge <= 0 {
		o.Ridge = 1e-6
	}
	return o
}

// Row is one run in the I²R analysis.
type Row struct {
	RunName  string
	Scenario string

	PMeasMeanMW float64
	PPredMeanMW float64
	ResidMW     float64

	SOC0         float64 // 0..1
	ThermalCPU0C float64
	CurrentUA    float64
	VoltageV     float64

	// Usable marks rows with a finite residual and a meaningful squared
	// current.
	Usable bool

	PLossHatW   float64
	PPredCorrMW float64
	ResidCorrMW float64
}

// FoldFit records the coefficients fit with one scenario held out.
type FoldFit struct {
	Scenario string
	Beta     []float64
	Scale    float64
}

// Coeffs materializes a fold's beta vector as a resistance model. Terms the
// variant does not carry are zero.
func (f FoldFit) Coeffs(v Variant, trefC float64) Coeffs {
	c := Coeffs{TRefC: trefC}
	if len(f.Beta) > 0 {
		c.R0 = f.Beta[0]
	}
	if len(f.Beta) > 1 && v != R0 {
		c.RSOC = f.Beta[1]
	}
	if len(f.Beta) > 2 && v == R0RSOCRTemp {
		c.RTemp = f.Beta[2]
	}
	return c
}

// Coeffs parameterizes the internal resistance in ohms:
//
//	R_int = R0 + RSOC·(1−SOC) + RTemp·max(0, T_cpu−T_ref)
type Coeffs struct {
	R0    float64
	RSOC  float64
	RTemp float64
	TRefC float64
}

// Rint returns the resistance at the given state, floored at zero.
// soc is a fraction in [0, 1].
func (c Coeffs) Rint(soc, tCPUC float64) float64 {
	r := c.R0 + c.RSOC*(1.0-soc)
	if d := tCPUC - c.TRefC; d > 0 {
		r += c.RTemp * d
	}
	return math.Max(0, r)
}

// LossW returns the ohmic loss I²·R_int in watts for a current in amperes.
func (c Coeffs) LossW(currentA, soc, tCPUC float64) float64 {
	return currentA * currentA * c.Rint(soc, tCPUC)
}

// Correlation pairs a covariate with the residual correlation before and
// after the correction.
type Correlation struct {
	Covariate string
	RBefore   float64
	RAfter    float64
}

// Result is the full I²R analysis output.
type Result struct {
	Rows  []Row
	Folds []FoldFit

	Base      regress.Metrics
	Corrected regress.Metrics

	Correlations []Correlation
}

// BuildRows joins out-of-fold run metrics with the QC summaries carrying
// current, voltage, and start-state covariates, matched by run name.
func BuildRows(metrics []loso.RunMetrics, summaries []dataset.RunSummary, opts Options) []Row {
	opts = opts.withDefaults()

	byRun := make(map[string]dataset.RunSummary, len(summaries))
	for _, s := range summaries {
		byRun[s.RunName] = s
	}

	var rows []Row
	for _, m := range metrics {
		s, ok := byRun[m.RunName]
		if opts.OnlyQCKeep && (!ok || !s.QCKeep) {
			continue
		}

		r := Row{
			RunName:      m.RunName,
			Scenario:     m.Scenario,
			PMeasMeanMW:  m.PMeasMeanMW,
			PPredMeanMW:  m.PPredMeanMW,
			ResidMW:      m.PMeasMeanMW - m.PPredMeanMW,
			SOC0:         math.NaN(),
			ThermalCPU0C: math.NaN(),
			CurrentUA:    math.NaN(),
			VoltageV:     math.NaN(),
			PLossHatW:    math.NaN(),
		}
		if ok {
			r.SOC0 = s.SOC0Pct / 100.0
			r.ThermalCPU0C = s.ThermalCPU0C
			r.CurrentUA = s.CurrentMeanUA
			r.VoltageV = s.VoltageMeanV
		}
		i2 := r.currentSquaredA2()
		r.Usable = mathutil.IsFinite(r.ResidMW) && mathutil.IsFinite(i2) && i2 > 1e-8
		rows = append(rows, r)
	}
	return rows
}

func (r Row) currentSquaredA2() float64 {
	iA := math.Abs(r.CurrentUA) / 1e6
	return iA * iA
}

// features returns the design row for the variant: each term multiplies I².
func (r Row) features(v Variant, trefC float64) []float64 {
	i2 := r.currentSquaredA2()
	f := []float64{i2}
	if v == R0RSOC || v == R0RSOCRTemp {
		f = append(f, i2*(1.0-r.SOC0))
	}
	if v == R0RSOCRTemp {
		f = append(f, i2*math.Max(0, r.ThermalCPU0C-trefC))
	}
	return f
}

// Fit runs the leave-one-scenario-out I²R analysis over the joined rows.
// For each held-out scenario, the loss model is fit on every other
// scenario's positive residual (in W), coefficients are clamped
// nonnegative, and the predicted loss is applied to the held-out runs. A
// scenario whose training side has fewer rows than parameters plus one gets
// zero predicted loss.
func Fit(rows []Row, opts Options) *Result {
	opts = opts.withDefaults()
	p := opts.Variant.nParams()

	res := &Result{Rows: rows}

	scenSet := map[string]struct{}{}
	for _, r := range rows {
		if r.Usable {
			scenSet[r.Scenario] = struct{}{}
		}
	}
	var scenarios []string
	for s := range scenSet {
		scenarios = append(scenarios, s)
	}
	sort.Strings(scenarios)

	for _, scen := range scenarios {
		cols := make([][]float64, p)
		var y []float64           // clipped loss target, W
		var residTrainW []float64 // unclipped, for the scale fit
		var yhatStore []float64

		for _, r := range rows {
			if !r.Usable || r.Scenario == scen {
				continue
			}
			f := r.features(opts.Variant, opts.TRefC)
			for j := 0; j < p; j++ {
				cols[j] = append(cols[j], f[j])
			}
			y = append(y, math.Max(0, r.ResidMW/1000.0))
			residTrainW = append(residTrainW, r.ResidMW/1000.0)
		}

		if len(y) < p+1 {
			for i := range res.Rows {
				if res.Rows[i].Usable && res.Rows[i].Scenario == scen {
					res.Rows[i].PLossHatW = 0
				}
			}
			continue
		}

		beta, err := regress.Ridge(regress.Design(cols...), y, opts.Ridge)
		if err != nil {
			continue
		}
		regress.ClampNonNegative(beta)

		scale := 1.0
		if opts.FitScale {
			for i := range y {
				var yhat float64
				for j := 0; j < p; j++ {
					yhat += cols[j][i] * beta[j]
				}
				yhatStore = append(yhatStore, yhat)
			}
			var num, den float64
			for i := range yhatStore {
				num += yhatStore[i] * residTrainW[i]
				den += yhatStore[i] * yhatStore[i]
			}
			if den > 0 {
				scale = math.Max(0, num/den)
			}
		}

		for i := range res.Rows {
			r := &res.Rows[i]
			if !r.Usable || r.Scenario != scen {
				continue
			}
			f := r.features(opts.Variant, opts.TRefC)
			var yhat float64
			for j := 0; j < p; j++ {
				yhat += f[j] * beta[j]
			}
			r.PLossHatW = math.Max(0, yhat*scale)
		}

		res.Folds = append(res.Folds, FoldFit{Scenario: scen, Beta: beta, Scale: scale})
	}

	var base, corr []float64
	var tcpu, socPct, volt, cur, residB, residC []float64
	for i := range res.Rows {
		r := &res.Rows[i]
		if mathutil.IsFinite(r.PLossHatW) {
			r.PPredCorrMW = r.PPredMeanMW + 1000.0*r.PLossHatW
			r.ResidCorrMW = r.PMeasMeanMW - r.PPredCorrMW
		} else {
			r.PPredCorrMW = math.NaN()
			r.ResidCorrMW = math.NaN()
		}
		base = append(base, r.ResidMW)
		corr = append(corr, r.ResidCorrMW)

		tcpu = append(tcpu, r.ThermalCPU0C)
		socPct = append(socPct, r.SOC0*100.0)
		volt = append(volt, r.VoltageV)
		cur = append(cur, r.CurrentUA)
		residB = append(residB, r.ResidMW)
		residC = append(residC, r.ResidCorrMW)
	}
	res.Base = regress.Summarize(base)
	res.Corrected = regress.Summarize(corr)

	res.Correlations = []Correlation{
		{"thermal_cpu0_C", regress.Pearson(tcpu, residB), regress.Pearson(tcpu, residC)},
		{"battery_level0_pct", regress.Pearson(socPct, residB), regress.Pearson(socPct, residC)},
		{"perfetto_voltage_mean_V", regress.Pearson(volt, residB), regress.Pearson(volt, residC)},
		{"perfetto_current_mean_uA", regress.Pearson(cur, residB), regress.Pearson(cur, residC)},
	}
	return res
}
