package qc

import (
	"math"
	"sort"

	"github.com/battlab/socfit/pkg/dataset"
	"github.com/battlab/socfit/pkg/mathutil"
)

// RepeatStat summarizes mean-power spread across the repeats of one
// scenario. High ratio or cv points at a scenario worth re-running.
type RepeatStat struct {
	Scenario    string
	N           int
	MeanMW      float64
	StdMW       float64
	CV          float64
	RatioMaxMin float64
	MinMW       float64
	MaxMW       float64
}

// ScenarioRepeatability aggregates per-scenario mean power over run
// summaries. Scenarios with fewer than two runs carrying a finite mean
// power are skipped. Results are sorted worst-first by max/min ratio, then
// by cv.
func ScenarioRepeatability(rows []dataset.RunSummary) []RepeatStat {
	byScen := map[string][]float64{}
	for _, r := range rows {
		if mathutil.IsFinite(r.PowerMeanMW) {
			byScen[r.Scenario] = append(byScen[r.Scenario], r.PowerMeanMW)
		}
	}

	var out []RepeatStat
	for scen, vals := range byScen {
		if len(vals) < 2 {
			continue
		}

		var sum float64
		min, max := vals[0], vals[0]
		for _, v := range vals {
			sum += v
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		n := float64(len(vals))
		mean := sum / n

		var ss float64
		for _, v := range vals {
			ss += (v - mean) * (v - mean)
		}
		std := math.Sqrt(ss / (n - 1))

		cv := math.NaN()
		if mean != 0 {
			cv = std / mean
		}
		ratio := math.NaN()
		if min > 0 {
			ratio = max / min
		}

		out = append(out, RepeatStat{
			Scenario:    scen,
			N:           len(vals),
			MeanMW:      mean,
			StdMW:       std,
			CV:          cv,
			RatioMaxMin: ratio,
			MinMW:       min,
			MaxMW:       max,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].RatioMaxMin, out[j].RatioMaxMin
		if ri != rj {
			// NaN sorts last.
			if math.IsNaN(ri) {
				return false
			}
			if math.IsNaN(rj) {
				return true
			}
			return ri > rj
		}
		return out[i].CV > out[j].CV
	})
	return out
}
