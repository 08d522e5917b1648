// Package qc gates runs before calibration: start-state thresholds,
// completeness checks, and scenario repeatability triage.
package qc

import (
	"fmt"
	"strings"

	"github.com/battlab/socfit/pkg/dataset"
	"github.com/battlab/socfit/pkg/mathutil"
)

// Policy is the run acceptance policy. Checks on unavailable fields (NaN)
// pass: a missing reading is not evidence of a bad run.
type Policy struct {
	MinSOCPct      float64
	MinVoltageMV   float64
	MaxThermalCPUC float64
	MinRows        int
	MinDurationS   float64

	// RequireThermalNominal rejects runs that start under thermal
	// throttling (nonzero thermal status).
	RequireThermalNominal bool

	// RequireUnplugged rejects runs that start on the charger.
	RequireUnplugged bool

	// RequirePowerTrace rejects runs without a measured power trace.
	RequirePowerTrace bool
}

// DefaultPolicy returns the thresholds used for release calibration data.
func DefaultPolicy() Policy {
	return Policy{
		MinSOCPct:      50,
		MinVoltageMV:   3700,
		MaxThermalCPUC: 60,
		MinRows:        30,
		MinDurationS:   60,
	}
}

// Verdict is the outcome for one run.
type Verdict struct {
	RunName string
	Keep    bool
	Reasons []string
}

// Reason joins the reject reasons with ";", the form stored in the summary
// table. Empty for kept runs.
func (v Verdict) Reason() string {
	return strings.Join(v.Reasons, ";")
}

// Evaluate checks one run summary against the policy. Reasons accumulate in
// a fixed order so the output is stable across reorderings of the input.
func (p Policy) Evaluate(s dataset.RunSummary) Verdict {
	v := Verdict{RunName: s.RunName, Keep: true}
	reject := func(reason string) {
		v.Keep = false
		v.Reasons = append(v.Reasons, reason)
	}

	if p.RequirePowerTrace && !s.HasPowerTrace {
		reject("no_perfetto")
	}
	if mathutil.IsFinite(s.SOC0Pct) && s.SOC0Pct < p.MinSOCPct {
		reject(fmt.Sprintf("soc<%.1f", p.MinSOCPct))
	}
	if mathutil.IsFinite(s.Voltage0MV) && s.Voltage0MV < p.MinVoltageMV {
		reject(fmt.Sprintf("voltage<%.1fmV", p.MinVoltageMV))
	}
	if mathutil.IsFinite(s.ThermalCPU0C) && s.ThermalCPU0C > p.MaxThermalCPUC {
		reject(fmt.Sprintf("thermal_cpu0>%.1fC", p.MaxThermalCPUC))
	}
	if p.RequireThermalNominal && mathutil.IsFinite(s.ThermalStatus0) && s.ThermalStatus0 != 0 {
		reject("thermal_status!=0")
	}
	if p.RequireUnplugged && mathutil.IsFinite(s.Plugged0) && s.Plugged0 != 0 {
		reject("plugged")
	}
	if p.MinRows > 0 && s.NSamples < p.MinRows {
		reject(fmt.Sprintf("rows<%d", p.MinRows))
	}
	if p.MinDurationS > 0 && mathutil.IsFinite(s.DurationS) && s.DurationS < p.MinDurationS {
		reject(fmt.Sprintf("duration<%.0fs", p.MinDurationS))
	}
	return v
}

// Apply evaluates every summary and writes the verdict back into the rows.
func (p Policy) Apply(rows []dataset.RunSummary) []Verdict {
	out := make([]Verdict, len(rows))
	for i := range rows {
		v := p.Evaluate(rows[i])
		rows[i].QCKeep = v.Keep
		rows[i].QCRejectReasons = v.Reason()
		out[i] = v
	}
	return out
}

// KeepSet returns the names of kept runs, for dataset filtering.
func KeepSet(verdicts []Verdict) map[string]bool {
	keep := make(map[string]bool, len(verdicts))
	for _, v := range verdicts {
		if v.Keep {
			keep[v.RunName] = true
		}
	}
	return keep
}

// Filter drops rejected runs from the dataset.
func Filter(ds dataset.Dataset, verdicts []Verdict) dataset.Dataset {
	return ds.FilterRuns(KeepSet(verdicts))
}

// FromSummaries rebuilds verdicts from the flags stored in a summary table,
// so a dataset can be filtered against an earlier qc pass without rerunning
// the policy.
func FromSummaries(rows []dataset.RunSummary) []Verdict {
	out := make([]Verdict, len(rows))
	for i, r := range rows {
		out[i] = Verdict{RunName: r.RunName, Keep: r.QCKeep}
		if r.QCRejectReasons != "" {
			out[i].Reasons = strings.Split(r.QCRejectReasons, ";")
		}
	}
	return out
}
