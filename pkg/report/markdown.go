package report

import (
	"fmt"
	"io"
	"math"
	"text/template"

	"github.com/battlab/socfit/pkg/ancova"
	"github.com/battlab/socfit/pkg/dataset"
	"github.com/battlab/socfit/pkg/i2r"
	"github.com/battlab/socfit/pkg/loso"
	"github.com/battlab/socfit/pkg/qc"
	"github.com/battlab/socfit/pkg/regress"
)

var mdFuncs = template.FuncMap{
	// f renders a float with the given precision, n/a for NaN or infinity.
	"f": func(prec int, v float64) string {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "n/a"
		}
		return fmt.Sprintf("%.*f", prec, v)
	},
	"yesno": func(v bool) string {
		if v {
			return "yes"
		}
		return "no"
	},
}

// QCData feeds WriteQCMarkdown.
type QCData struct {
	Policy    qc.Policy
	Summaries []dataset.RunSummary
	Repeat    []qc.RepeatStat
}

func (d QCData) Kept() int {
	n := 0
	for _, s := range d.Summaries {
		if s.QCKeep {
			n++
		}
	}
	return n
}

func (d QCData) Rejected() []dataset.RunSummary {
	var out []dataset.RunSummary
	for _, s := range d.Summaries {
		if !s.QCKeep {
			out = append(out, s)
		}
	}
	return out
}

var qcTpl = template.Must(template.New("qc").Funcs(mdFuncs).Parse(`# Run QC report

Runs: {{len .Summaries}} total, {{.Kept}} kept.

## Policy

| gate | threshold |
|---|---|
| min start SOC | {{f 1 .Policy.MinSOCPct}} % |
| min start voltage | {{f 1 .Policy.MinVoltageMV}} mV |
| max start CPU temp | {{f 1 .Policy.MaxThermalCPUC}} C |
| min rows | {{.Policy.MinRows}} |
| min duration | {{f 0 .Policy.MinDurationS}} s |
| thermal nominal required | {{yesno .Policy.RequireThermalNominal}} |
| unplugged required | {{yesno .Policy.RequireUnplugged}} |
| power trace required | {{yesno .Policy.RequirePowerTrace}} |

{{with .Rejected}}## Rejected runs

| run | scenario | reasons |
|---|---|---|
{{range .}}| {{.RunName}} | {{.Scenario}} | {{.QCRejectReasons}} |
{{end}}{{else}}All runs passed.
{{end}}
{{with .Repeat}}## Scenario repeatability (kept runs, worst first)

| scenario | n | mean (mW) | std (mW) | cv | max/min |
|---|---|---|---|---|---|
{{range .}}| {{.Scenario}} | {{.N}} | {{f 1 .MeanMW}} | {{f 1 .StdMW}} | {{f 3 .CV}} | {{f 3 .RatioMaxMin}} |
{{end}}{{end}}`))

// WriteQCMarkdown renders the QC report.
func WriteQCMarkdown(w io.Writer, d QCData) error {
	return qcTpl.Execute(w, d)
}

// EvalData feeds WriteEvalMarkdown.
type EvalData struct {
	Mode  string
	Folds []loso.FoldSummary
	Runs  []loso.RunMetrics
}

// MeanAbsRelErr averages |relative error| over runs where it is defined.
func (d EvalData) MeanAbsRelErr() float64 {
	var sum float64
	n := 0
	for _, r := range d.Runs {
		if !math.IsNaN(r.PRelErrPct) {
			sum += math.Abs(r.PRelErrPct)
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

var evalTpl = template.Must(template.New("eval").Funcs(mdFuncs).Parse(`# Held-out evaluation ({{.Mode}})

{{len .Folds}} folds, {{len .Runs}} held-out runs, mean |rel err| {{f 2 .MeanAbsRelErr}} %.

## Folds

| split | train n | test n | test runs | sample MAE (mW) | p_base (mW) | k_screen | k_cpu | k_leak (mW) |
|---|---|---|---|---|---|---|---|---|
{{range .Folds}}| {{.Split}} | {{.NTrainSamples}} | {{.NTestSamples}} | {{.NTestRuns}} | {{f 1 .PowerSampleMAEmW}} | {{f 1 .Params.PBaseMW}} | {{f 4 .Params.KScreen}} | {{f 4 .Params.KCPU}} | {{f 1 .Params.KLeakMW}} |
{{end}}
## Held-out runs

| split | run | scenario | n | meas (mW) | pred (mW) | rel err (%) | SOC RMSE (pct) |
|---|---|---|---|---|---|---|---|
{{range .Runs}}| {{.Split}} | {{.RunName}} | {{.Scenario}} | {{.NSamples}} | {{f 1 .PMeasMeanMW}} | {{f 1 .PPredMeanMW}} | {{f 2 .PRelErrPct}} | {{f 3 .RMSESOCPct}} |
{{end}}`))

// WriteEvalMarkdown renders the cross-validation report.
func WriteEvalMarkdown(w io.Writer, d EvalData) error {
	return evalTpl.Execute(w, d)
}

var residTpl = template.Must(template.New("resid").Funcs(mdFuncs).Parse(`# Run-level residual correction

Out-of-fold correction of run mean residuals on start state
(SOC, voltage, CPU and battery temperature), fit leave-one-scenario-out.

| | n | MAE (mW) | RMSE (mW) | bias (mW) |
|---|---|---|---|---|
| base | {{.Base.N}} | {{f 1 .Base.MAEmW}} | {{f 1 .Base.RMSEmW}} | {{f 1 .Base.BiasmW}} |
| corrected | {{.Corrected.N}} | {{f 1 .Corrected.MAEmW}} | {{f 1 .Corrected.RMSEmW}} | {{f 1 .Corrected.BiasmW}} |

## Per scenario

| scenario | n | base RMSE (mW) | corrected RMSE (mW) |
|---|---|---|---|
{{range .Scenarios}}| {{.Scenario}} | {{.N}} | {{f 1 .BaseRMSEmW}} | {{f 1 .CorrRMSEmW}} |
{{end}}`))

// WriteResidualMarkdown renders the residual correction report.
func WriteResidualMarkdown(w io.Writer, res *loso.ResidualResult) error {
	type scenRow struct {
		Scenario   string
		N          int
		BaseRMSEmW float64
		CorrRMSEmW float64
	}
	type view struct {
		Base, Corrected regress.Metrics
		Scenarios       []scenRow
	}

	corr := make(map[string]float64, len(res.ScenarioCorrected))
	for _, s := range res.ScenarioCorrected {
		corr[s.Scenario] = s.RMSEmW
	}
	v := view{Base: res.Base, Corrected: res.Corrected}
	for _, b := range res.ScenarioBase {
		c, ok := corr[b.Scenario]
		if !ok {
			c = math.NaN()
		}
		v.Scenarios = append(v.Scenarios, scenRow{
			Scenario:   b.Scenario,
			N:          b.N,
			BaseRMSEmW: b.RMSEmW,
			CorrRMSEmW: c,
		})
	}
	return residTpl.Execute(w, v)
}

// I2RData feeds WriteI2RMarkdown.
type I2RData struct {
	Variant i2r.Variant
	Result  *i2r.Result
}

func (d I2RData) Usable() int {
	n := 0
	for _, r := range d.Result.Rows {
		if r.Usable {
			n++
		}
	}
	return n
}

var i2rTpl = template.Must(template.New("i2r").Funcs(mdFuncs).Parse(`# Internal-resistance residual term ({{.Variant}})

Ohmic loss P = I²·R fit leave-one-scenario-out on run-level residuals;
{{.Usable}} of {{len .Result.Rows}} runs usable.

| | n | MAE (mW) | RMSE (mW) | bias (mW) |
|---|---|---|---|---|
| base | {{.Result.Base.N}} | {{f 1 .Result.Base.MAEmW}} | {{f 1 .Result.Base.RMSEmW}} | {{f 1 .Result.Base.BiasmW}} |
| corrected | {{.Result.Corrected.N}} | {{f 1 .Result.Corrected.MAEmW}} | {{f 1 .Result.Corrected.RMSEmW}} | {{f 1 .Result.Corrected.BiasmW}} |

## Residual correlations

| covariate | r before | r after |
|---|---|---|
{{range .Result.Correlations}}| {{.Covariate}} | {{f 3 .RBefore}} | {{f 3 .RAfter}} |
{{end}}
## Per-fold coefficients

| held-out scenario | beta | scale |
|---|---|---|
{{range .Result.Folds}}| {{.Scenario}} | {{range .Beta}}{{f 4 .}} {{end}}| {{f 3 .Scale}} |
{{end}}`))

// WriteI2RMarkdown renders the internal-resistance report.
func WriteI2RMarkdown(w io.Writer, d I2RData) error {
	return i2rTpl.Execute(w, d)
}

var adjustTpl = template.Must(template.New("adjust").Funcs(mdFuncs).Parse(`# Covariate-adjusted scenario comparison

Adjusted means are evaluated at SOC {{f 1 .Ref.SOC0Pct}} %, {{f 3 .Ref.Voltage0V}} V,
CPU {{f 1 .Ref.ThermalCPU0C}} C, battery {{f 1 .Ref.ThermalBatt0C}} C
(baseline scenario: {{.Baseline}}, {{.NFit}} runs fit).

| scenario | n | raw mean (mW) | adj mean (mW) | delta (mW) | raw cv | max/min |
|---|---|---|---|---|---|---|
{{range .Scenarios}}| {{.Scenario}} | {{.N}} | {{f 1 .RawMeanMW}} | {{f 1 .AdjustedMeanMW}} | {{f 1 .DeltaMW}} | {{f 3 .RawCV}} | {{f 3 .RatioMaxMin}} |
{{end}}
## Coefficients

| term | coef |
|---|---|
{{range .Coefficients}}| {{.Term}} | {{f 4 .Coef}} |
{{end}}`))

// WriteAdjustMarkdown renders the scenario adjustment report.
func WriteAdjustMarkdown(w io.Writer, res *ancova.Result) error {
	return adjustTpl.Execute(w, res)
}
