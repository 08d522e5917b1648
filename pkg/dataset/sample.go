package dataset

import (
	"math"

	"github.com/battlab/socfit/pkg/mathutil"
)

// Sample is one timestamped observation within a run. Missing numeric fields
// are NaN.
type Sample struct {
	T  float64 // seconds since run start
	Dt float64 // seconds covered by this sample

	SOCPct     float64
	VoltageMV  float64
	TempBattC  float64
	TempCPUC   float64
	Brightness float64 // raw setting 0..255

	PowerTotalMW  float64 // measured total draw (trace-aligned)
	PowerCPUMW    float64 // CPU energy proxy over the window
	PowerScreenMW float64 // screen power estimate, zero when screen off

	GPSOn      bool
	CellularOn bool
}

// Run is one experiment instance: a scenario label plus its sample series,
// ordered by T.
type Run struct {
	Name     string
	Scenario string
	Samples  []Sample
}

// Duration sums the per-sample windows.
func (r *Run) Duration() float64 {
	var total float64
	for _, s := range r.Samples {
		if mathutil.IsFinite(s.Dt) && s.Dt > 0 {
			total += s.Dt
		}
	}
	return total
}

// MeanMeasuredPower averages PowerTotalMW over finite samples. NaN when the
// run carries no measured power.
func (r *Run) MeanMeasuredPower() float64 {
	var sum, n float64
	for _, s := range r.Samples {
		if mathutil.IsFinite(s.PowerTotalMW) {
			sum += s.PowerTotalMW
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / n
}

// HasMeasuredPower reports whether any sample carries a finite total power.
func (r *Run) HasMeasuredPower() bool {
	for _, s := range r.Samples {
		if mathutil.IsFinite(s.PowerTotalMW) {
			return true
		}
	}
	return false
}

// StartSOCPct returns the first finite SOC reading, NaN when absent.
func (r *Run) StartSOCPct() float64 {
	for _, s := range r.Samples {
		if mathutil.IsFinite(s.SOCPct) {
			return s.SOCPct
		}
	}
	return math.NaN()
}

// StartVoltageMV returns the first finite voltage reading, NaN when absent.
func (r *Run) StartVoltageMV() float64 {
	for _, s := range r.Samples {
		if mathutil.IsFinite(s.VoltageMV) {
			return s.VoltageMV
		}
	}
	return math.NaN()
}

// Column extracts one field across samples.
func (r *Run) Column(get func(Sample) float64) []float64 {
	out := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = get(s)
	}
	return out
}
