package loso

import (
	"math"
	"sort"

	"github.com/battlab/socfit/pkg/dataset"
	"github.com/battlab/socfit/pkg/mathutil"
	"github.com/battlab/socfit/pkg/regress"
)

// ResidualOptions configures CorrectResiduals.
type ResidualOptions struct {
	// Alpha is the ridge strength for the covariate fit.
	Alpha float64

	// OnlyQCKeep restricts the correction to runs the QC policy kept.
	OnlyQCKeep bool
}

func (o ResidualOptions) withDefaults() ResidualOptions {
	if o.Alpha <= 0 {
		o.Alpha = 1e-3
	}
	return o
}

// ResidualRow is one run after correction: the out-of-fold residual, the
// covariate-model estimate of it, and what remains.
type ResidualRow struct {
	RunMetrics

	SOC0Pct       float64
	Voltage0V     float64
	ThermalCPU0C  float64
	ThermalBatt0C float64

	ResidMW     float64
	ResidHatMW  float64
	ResidCorrMW float64
	PPredCorrMW float64
}

// ScenarioMetrics is a per-scenario residual summary.
type ScenarioMetrics struct {
	Scenario string
	regress.Metrics
}

// ResidualResult is the outcome of the correction pass.
type ResidualResult struct {
	Rows []ResidualRow

	Base      regress.Metrics
	Corrected regress.Metrics

	ScenarioBase      []ScenarioMetrics
	ScenarioCorrected []ScenarioMetrics

	// Betas holds the per-held-out-scenario fit. Scenarios with too little
	// training data are absent and received no correction.
	Betas map[string][]float64
}

// CorrectResiduals absorbs start-state effects left in the out-of-fold
// run-level residuals: for each held-out scenario it fits
//
//	(meas − pred) ~ 1 + SOC₀ + V₀ + T_cpu₀ + T_batt₀
//
// on every other scenario's runs and subtracts the prediction. Covariates
// come from the QC run summaries, matched by run name. A held-out scenario
// whose training side has fewer rows than parameters keeps its residuals
// uncorrected.
func CorrectResiduals(metrics []RunMetrics, summaries []dataset.RunSummary, opts ResidualOptions) *ResidualResult {
	opts = opts.withDefaults()

	byRun := make(map[string]dataset.RunSummary, len(summaries))
	for _, s := range summaries {
		byRun[s.RunName] = s
	}

	res := &ResidualResult{Betas: map[string][]float64{}}
	for _, m := range metrics {
		s, ok := byRun[m.RunName]
		if opts.OnlyQCKeep && (!ok || !s.QCKeep) {
			continue
		}

		row := ResidualRow{
			RunMetrics:    m,
			SOC0Pct:       math.NaN(),
			Voltage0V:     math.NaN(),
			ThermalCPU0C:  math.NaN(),
			ThermalBatt0C: math.NaN(),
			ResidHatMW:    math.NaN(),
		}
		if ok {
			row.SOC0Pct = s.SOC0Pct
			row.Voltage0V = s.Voltage0MV / 1000.0
			row.ThermalCPU0C = s.ThermalCPU0C
			row.ThermalBatt0C = s.ThermalBatt0C
		}
		row.ResidMW = m.PMeasMeanMW - m.PPredMeanMW
		row.ResidCorrMW = row.ResidMW
		row.PPredCorrMW = m.PPredMeanMW
		res.Rows = append(res.Rows, row)
	}

	scenarios := map[string]struct{}{}
	for _, r := range res.Rows {
		scenarios[r.Scenario] = struct{}{}
	}

	for scen := range scenarios {
		var ones, x1, x2, x3, x4, y []float64
		for _, r := range res.Rows {
			if r.Scenario == scen || !rowComplete(r) {
				continue
			}
			ones = append(ones, 1)
			x1 = append(x1, r.SOC0Pct)
			x2 = append(x2, r.Voltage0V)
			x3 = append(x3, r.ThermalCPU0C)
			x4 = append(x4, r.ThermalBatt0C)
			y = append(y, r.ResidMW)
		}
		if len(y) < 6 { // parameters + 1
			continue
		}

		beta, err := regress.Ridge(regress.Design(ones, x1, x2, x3, x4), y, opts.Alpha)
		if err != nil {
			continue
		}
		res.Betas[scen] = beta

		for i := range res.Rows {
			r := &res.Rows[i]
			if r.Scenario != scen {
				continue
			}
			r.ResidHatMW = beta[0] +
				beta[1]*r.SOC0Pct +
				beta[2]*r.Voltage0V +
				beta[3]*r.ThermalCPU0C +
				beta[4]*r.ThermalBatt0C
			r.ResidCorrMW = r.ResidMW - r.ResidHatMW
			r.PPredCorrMW = r.PPredMeanMW + r.ResidHatMW
		}
	}

	var base, corr []float64
	for _, r := range res.Rows {
		base = append(base, r.ResidMW)
		corr = append(corr, r.ResidCorrMW)
	}
	res.Base = regress.Summarize(base)
	res.Corrected = regress.Summarize(corr)

	res.ScenarioBase = scenarioMetrics(res.Rows, func(r ResidualRow) float64 { return r.ResidMW })
	res.ScenarioCorrected = scenarioMetrics(res.Rows, func(r ResidualRow) float64 { return r.ResidCorrMW })
	return res
}

func rowComplete(r ResidualRow) bool {
	return mathutil.IsFinite(r.ResidMW) &&
		mathutil.IsFinite(r.SOC0Pct) &&
		mathutil.IsFinite(r.Voltage0V) &&
		mathutil.IsFinite(r.ThermalCPU0C) &&
		mathutil.IsFinite(r.ThermalBatt0C)
}

func scenarioMetrics(rows []ResidualRow, get func(ResidualRow) float64) []ScenarioMetrics {
	byScen := map[string][]float64{}
	for _, r := range rows {
		byScen[r.Scenario] = append(byScen[r.Scenario], get(r))
	}

	var out []ScenarioMetrics
	for scen, vals := range byScen {
		m := regress.Summarize(vals)
		if m.N == 0 {
			continue
		}
		out = append(out, ScenarioMetrics{Scenario: scen, Metrics: m})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RMSEmW != out[j].RMSEmW {
			return out[i].RMSEmW > out[j].RMSEmW
		}
		return out[i].Scenario < out[j].Scenario
	})
	return out
}
