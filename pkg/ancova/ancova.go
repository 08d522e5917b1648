// Package ancova compares scenario mean power on equal footing: a robust
// regression of run mean power on scenario dummies plus start-state
// covariates, evaluated for every scenario at a common reference state.
// Raw scenario differences driven by start SOC, voltage, or temperature
// rather than by the workload show up as large raw-vs-adjusted deltas.
package ancova

import (
	"errors"
	"math"
	"sort"

	"github.com/battlab/socfit/pkg/dataset"
	"github.com/battlab/socfit/pkg/mathutil"
	"github.com/battlab/socfit/pkg/regress"
)

// ErrTooFewRows indicates fewer complete rows than model parameters.
var ErrTooFewRows = errors.New("ancova: too few rows to fit")

// Reference is the covariate state at which adjusted means are evaluated.
// NaN fields are replaced by the median over complete rows.
type Reference struct {
	SOC0Pct       float64
	Voltage0V     float64
	ThermalCPU0C  float64
	ThermalBatt0C float64
}

// Options configures AdjustedMeans.
type Options struct {
	Ref Reference

	// Huber tunes the robust fit.
	Huber regress.HuberOptions

	OnlyQCKeep bool
}

// ScenarioMean is one scenario's raw and adjusted mean power.
type ScenarioMean struct {
	Scenario string
	N        int

	RawMeanMW   float64
	RawStdMW    float64
	RawMinMW    float64
	RawMaxMW    float64
	RawCV       float64
	RatioMaxMin float64

	AdjustedMeanMW float64
	// DeltaMW is raw minus adjusted: how much the start state moved this
	// scenario's apparent mean.
	DeltaMW float64
}

// Coefficient names one fitted term.
type Coefficient struct {
	Term string
	Coef float64
}

// Result is the adjustment output, scenarios sorted by |DeltaMW| descending.
type Result struct {
	Scenarios    []ScenarioMean
	Coefficients []Coefficient
	Ref          Reference
	Baseline     string // scenario absorbed by the intercept
	NFit         int
}

// AdjustedMeans fits mean power ~ scenario + covariates with Huber IRLS over
// run summaries and evaluates each scenario at the reference state. Rows
// missing the response or any covariate are excluded from the fit but still
// count toward raw statistics when the response is present.
func AdjustedMeans(rows []dataset.RunSummary, opts Options) (*Result, error) {
	if opts.Huber.C == 0 {
		opts.Huber = regress.DefaultHuber()
	}

	var kept []dataset.RunSummary
	for _, r := range rows {
		if opts.OnlyQCKeep && !r.QCKeep {
			continue
		}
		kept = append(kept, r)
	}

	scenSet := map[string]struct{}{}
	for _, r := range kept {
		if mathutil.IsFinite(r.PowerMeanMW) {
			scenSet[r.Scenario] = struct{}{}
		}
	}
	var scenarios []string
	for s := range scenSet {
		scenarios = append(scenarios, s)
	}
	sort.Strings(scenarios)
	if len(scenarios) == 0 {
		return nil, ErrTooFewRows
	}

	ref := resolveRef(kept, opts.Ref)

	// Complete rows for the fit.
	type fitRow struct {
		scen string
		cov  [4]float64
		y    float64
	}
	var fit []fitRow
	for _, r := range kept {
		cov := [4]float64{r.SOC0Pct, r.Voltage0MV / 1000.0, r.ThermalCPU0C, r.ThermalBatt0C}
		if !mathutil.IsFinite(r.PowerMeanMW) {
			continue
		}
		complete := true
		for _, c := range cov {
			if !mathutil.IsFinite(c) {
				complete = false
				break
			}
		}
		if complete {
			fit = append(fit, fitRow{scen: r.Scenario, cov: cov, y: r.PowerMeanMW})
		}
	}

	// Dummies cover only scenarios that reach the fit: a scenario whose
	// runs all miss a covariate would otherwise contribute an all-zero
	// column and a singular design. The first fit scenario (sorted) is the
	// baseline absorbed by the intercept; a full dummy set would be
	// collinear with it.
	fitSet := map[string]struct{}{}
	for _, fr := range fit {
		fitSet[fr.scen] = struct{}{}
	}
	var fitScens []string
	for s := range fitSet {
		fitScens = append(fitScens, s)
	}
	sort.Strings(fitScens)
	if len(fitScens) == 0 {
		return nil, ErrTooFewRows
	}
	baseline := fitScens[0]
	dummyScens := fitScens[1:]
	terms := []string{"intercept"}
	for _, s := range dummyScens {
		terms = append(terms, "scen_"+s)
	}
	terms = append(terms, "soc0_pct", "voltage0_V", "thermal_cpu0_C", "thermal_batt0_C")
	p := len(terms)

	if len(fit) < p+1 {
		return nil, ErrTooFewRows
	}

	cols := make([][]float64, p)
	var y []float64
	for _, fr := range fit {
		cols[0] = append(cols[0], 1)
		for j, s := range dummyScens {
			d := 0.0
			if fr.scen == s {
				d = 1
			}
			cols[1+j] = append(cols[1+j], d)
		}
		base := 1 + len(dummyScens)
		for k := 0; k < 4; k++ {
			cols[base+k] = append(cols[base+k], fr.cov[k])
		}
		y = append(y, fr.y)
	}

	beta, err := regress.HuberIRLS(regress.Design(cols...), y, opts.Huber)
	if err != nil {
		return nil, err
	}

	res := &Result{Ref: ref, Baseline: baseline, NFit: len(fit)}
	for i, t := range terms {
		res.Coefficients = append(res.Coefficients, Coefficient{Term: t, Coef: beta[i]})
	}

	refCov := [4]float64{ref.SOC0Pct, ref.Voltage0V, ref.ThermalCPU0C, ref.ThermalBatt0C}
	for _, scen := range scenarios {
		sm := rawStats(kept, scen)
		sm.AdjustedMeanMW = math.NaN()
		sm.DeltaMW = math.NaN()

		if _, ok := fitSet[scen]; ok {
			adj := beta[0]
			for j, s := range dummyScens {
				if scen == s {
					adj += beta[1+j]
				}
			}
			base := 1 + len(dummyScens)
			for k := 0; k < 4; k++ {
				adj += beta[base+k] * refCov[k]
			}
			sm.AdjustedMeanMW = adj
			sm.DeltaMW = sm.RawMeanMW - adj
		}
		res.Scenarios = append(res.Scenarios, sm)
	}

	sort.Slice(res.Scenarios, func(i, j int) bool {
		di, dj := math.Abs(res.Scenarios[i].DeltaMW), math.Abs(res.Scenarios[j].DeltaMW)
		// Scenarios left out of the fit carry no delta and sort last.
		if math.IsNaN(di) != math.IsNaN(dj) {
			return math.IsNaN(dj)
		}
		if di != dj {
			return di > dj
		}
		return res.Scenarios[i].Scenario < res.Scenarios[j].Scenario
	})
	return res, nil
}

func resolveRef(rows []dataset.RunSummary, ref Reference) Reference {
	col := func(get func(dataset.RunSummary) float64) []float64 {
		out := make([]float64, 0, len(rows))
		for _, r := range rows {
			out = append(out, get(r))
		}
		return out
	}
	if !mathutil.IsFinite(ref.SOC0Pct) || ref.SOC0Pct == 0 {
		ref.SOC0Pct = mathutil.Median(col(func(r dataset.RunSummary) float64 { return r.SOC0Pct }))
	}
	if !mathutil.IsFinite(ref.Voltage0V) || ref.Voltage0V == 0 {
		ref.Voltage0V = mathutil.Median(col(func(r dataset.RunSummary) float64 { return r.Voltage0MV / 1000.0 }))
	}
	if !mathutil.IsFinite(ref.ThermalCPU0C) || ref.ThermalCPU0C == 0 {
		ref.ThermalCPU0C = mathutil.Median(col(func(r dataset.RunSummary) float64 { return r.ThermalCPU0C }))
	}
	if !mathutil.IsFinite(ref.ThermalBatt0C) || ref.ThermalBatt0C == 0 {
		ref.ThermalBatt0C = mathutil.Median(col(func(r dataset.RunSummary) float64 { return r.ThermalBatt0C }))
	}
	return ref
}

func rawStats(rows []dataset.RunSummary, scen string) ScenarioMean {
	sm := ScenarioMean{
		Scenario: scen,
		RawMinMW: math.Inf(1),
		RawMaxMW: math.Inf(-1),
	}
	var sum float64
	var vals []float64
	for _, r := range rows {
		if r.Scenario != scen || !mathutil.IsFinite(r.PowerMeanMW) {
			continue
		}
		v := r.PowerMeanMW
		sum += v
		vals = append(vals, v)
		if v < sm.RawMinMW {
			sm.RawMinMW = v
		}
		if v > sm.RawMaxMW {
			sm.RawMaxMW = v
		}
	}
	sm.N = len(vals)
	if sm.N == 0 {
		sm.RawMeanMW = math.NaN()
		sm.RawMinMW = math.NaN()
		sm.RawMaxMW = math.NaN()
		return sm
	}
	sm.RawMeanMW = sum / float64(sm.N)

	if sm.N > 1 {
		var ss float64
		for _, v := range vals {
			ss += (v - sm.RawMeanMW) * (v - sm.RawMeanMW)
		}
		sm.RawStdMW = math.Sqrt(ss / float64(sm.N-1))
	}
	if sm.RawMeanMW != 0 {
		sm.RawCV = sm.RawStdMW / sm.RawMeanMW
	} else {
		sm.RawCV = math.NaN()
	}
	if sm.RawMinMW > 0 {
		sm.RatioMaxMin = sm.RawMaxMW / sm.RawMinMW
	} else {
		sm.RatioMaxMin = math.NaN()
	}
	return sm
}
