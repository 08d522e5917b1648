package dataset

import "math"

// RunSummary is one row of the run-level QC table: scenario + start-state
// covariates + trace-level aggregates + the QC verdict.
type RunSummary struct {
	RunName  string
	Scenario string

	NSamples  int
	DurationS float64

	// Start-state covariates (first sample of the run).
	SOC0Pct        float64
	Voltage0MV     float64
	ThermalCPU0C   float64
	ThermalBatt0C  float64
	ThermalStatus0 float64
	Plugged0       float64

	// Power-trace aggregates.
	HasPowerTrace bool
	PowerMeanMW   float64
	EnergyMWh     float64
	CurrentMeanUA float64
	VoltageMeanV  float64
	DischargeMAh  float64

	QCKeep          bool
	QCRejectReasons string
}

// SummarizeRun derives a RunSummary from a run's own samples: start-state
// covariates from the first usable readings and trace aggregates from the
// series. Current is estimated as P/V per sample.
func SummarizeRun(r Run) RunSummary {
	s := RunSummary{
		RunName:        r.Name,
		Scenario:       r.Scenario,
		NSamples:       len(r.Samples),
		DurationS:      r.Duration(),
		SOC0Pct:        math.NaN(),
		Voltage0MV:     math.NaN(),
		ThermalCPU0C:   math.NaN(),
		ThermalBatt0C:  math.NaN(),
		ThermalStatus0: math.NaN(),
		Plugged0:       math.NaN(),
		PowerMeanMW:    math.NaN(),
		EnergyMWh:      math.NaN(),
		CurrentMeanUA:  math.NaN(),
		VoltageMeanV:   math.NaN(),
		DischargeMAh:   math.NaN(),
	}
	if len(r.Samples) == 0 {
		return s
	}

	first := r.Samples[0]
	s.SOC0Pct = r.StartSOCPct()
	s.Voltage0MV = r.StartVoltageMV()
	s.ThermalCPU0C = first.TempCPUC
	s.ThermalBatt0C = first.TempBattC

	s.HasPowerTrace = r.HasMeasuredPower()
	s.PowerMeanMW = r.MeanMeasuredPower()

	var vSum, vN float64
	var energyMWs, iSum, iN float64
	for _, smp := range r.Samples {
		if !math.IsNaN(smp.VoltageMV) {
			vSum += smp.VoltageMV / 1000.0
			vN++
		}
		if !math.IsNaN(smp.PowerTotalMW) && smp.Dt > 0 {
			energyMWs += smp.PowerTotalMW * smp.Dt
		}
		if !math.IsNaN(smp.PowerTotalMW) && !math.IsNaN(smp.VoltageMV) && smp.VoltageMV > 0 {
			// mW / V = mA; report in uA like the trace summary.
			iSum += smp.PowerTotalMW / (smp.VoltageMV / 1000.0) * 1000.0
			iN++
		}
	}
	if vN > 0 {
		s.VoltageMeanV = vSum / vN
	}
	if s.HasPowerTrace {
		s.EnergyMWh = energyMWs / 3600.0
	}
	if iN > 0 {
		s.CurrentMeanUA = iSum / iN
		if s.DurationS > 0 && s.VoltageMeanV > 0 {
			s.DischargeMAh = s.CurrentMeanUA / 1000.0 * (s.DurationS / 3600.0)
		}
	}
	return s
}
