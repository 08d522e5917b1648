package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Model-input column names (the documented external interface).
const (
	colRunName     = "run_name"
	colScenario    = "scenario"
	colT           = "t_s"
	colDt          = "dt_s"
	colSOC         = "soc_pct"
	colVoltage     = "voltage_mV"
	colTempBatt    = "temperature_C"
	colTempCPU     = "temperature_cpu_C"
	colBrightness  = "brightness"
	colPowerTotal  = "power_total_mW"
	colPowerCPU    = "power_cpu_mW"
	colPowerScreen = "power_screen_mW"
	colGPSOn       = "is_gps_on"
	colCellularOn  = "cellular_on"
)

type header map[string]int

func (h header) get(rec []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}

// num coerces a cell to float64, NaN on blank or malformed input.
func num(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// flag coerces a cell to bool with a default for blank/malformed input.
// Numeric cells are on when >= 0.5.
func flag(s string, def bool) bool {
	v := num(s)
	if math.IsNaN(v) {
		return def
	}
	return v >= 0.5
}

// LoadRuns reads a model-input CSV and groups rows into runs, preserving
// first-seen run order. Rows belonging to the same run_name must be
// contiguous-or-not; grouping is by name either way.
func LoadRuns(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("load runs: %w", err)
	}
	defer f.Close()
	return ReadRuns(f)
}

// ReadRuns is LoadRuns over an io.Reader.
func ReadRuns(r io.Reader) (Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if err != nil {
		return Dataset{}, ErrEmptyCSV
	}
	h := make(header, len(head))
	for i, name := range head {
		h[strings.TrimSpace(name)] = i
	}
	if _, ok := h[colRunName]; !ok {
		return Dataset{}, fmt.Errorf("%w: %s", ErrMissingColumn, colRunName)
	}

	var ds Dataset
	index := map[string]int{}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Dataset{}, fmt.Errorf("read runs: %w", err)
		}

		name := strings.TrimSpace(h.get(rec, colRunName))
		if name == "" {
			continue
		}

		i, ok := index[name]
		if !ok {
			ds.Runs = append(ds.Runs, Run{
				Name:     name,
				Scenario: strings.TrimSpace(h.get(rec, colScenario)),
			})
			i = len(ds.Runs) - 1
			index[name] = i
		}

		s := Sample{
			T:             num(h.get(rec, colT)),
			Dt:            num(h.get(rec, colDt)),
			SOCPct:        num(h.get(rec, colSOC)),
			VoltageMV:     num(h.get(rec, colVoltage)),
			TempBattC:     num(h.get(rec, colTempBatt)),
			TempCPUC:      num(h.get(rec, colTempCPU)),
			Brightness:    num(h.get(rec, colBrightness)),
			PowerTotalMW:  num(h.get(rec, colPowerTotal)),
			PowerCPUMW:    num(h.get(rec, colPowerCPU)),
			PowerScreenMW: num(h.get(rec, colPowerScreen)),
			GPSOn:         flag(h.get(rec, colGPSOn), false),
			CellularOn:    flag(h.get(rec, colCellularOn), true),
		}
		ds.Runs[i].Samples = append(ds.Runs[i].Samples, s)
	}

	if len(ds.Runs) == 0 {
		return Dataset{}, ErrNoRuns
	}

	// Rebuild the time axis when t_s is absent: t = cumsum(dt) - dt.
	for i := range ds.Runs {
		run := &ds.Runs[i]
		allNaN := true
		for _, s := range run.Samples {
			if !math.IsNaN(s.T) {
				allNaN = false
				break
			}
		}
		if allNaN {
			var t float64
			for j := range run.Samples {
				run.Samples[j].T = t
				if dt := run.Samples[j].Dt; !math.IsNaN(dt) && dt > 0 {
					t += dt
				}
			}
		}
	}
	return ds, nil
}

// LoadRunSummaries reads a qc_run_summary-shaped CSV.
func LoadRunSummaries(path string) ([]RunSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load run summaries: %w", err)
	}
	defer f.Close()
	return ReadRunSummaries(f)
}

// ReadRunSummaries is LoadRunSummaries over an io.Reader.
func ReadRunSummaries(r io.Reader) ([]RunSummary, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if err != nil {
		return nil, ErrEmptyCSV
	}
	h := make(header, len(head))
	for i, name := range head {
		h[strings.TrimSpace(name)] = i
	}
	if _, ok := h[colRunName]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, colRunName)
	}

	var out []RunSummary
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read run summaries: %w", err)
		}

		s := RunSummary{
			RunName:         strings.TrimSpace(h.get(rec, colRunName)),
			Scenario:        strings.TrimSpace(h.get(rec, colScenario)),
			NSamples:        int(zeroNaN(num(h.get(rec, "n_samples")))),
			DurationS:       num(h.get(rec, "perfetto_duration_s")),
			SOC0Pct:         num(h.get(rec, "battery_level0_pct")),
			Voltage0MV:      num(h.get(rec, "battery_voltage0_mV")),
			ThermalCPU0C:    num(h.get(rec, "thermal_cpu0_C")),
			ThermalBatt0C:   num(h.get(rec, "thermal_batt0_C")),
			ThermalStatus0:  num(h.get(rec, "thermal_status0")),
			Plugged0:        num(h.get(rec, "battery_plugged0")),
			HasPowerTrace:   flag(h.get(rec, "has_perfetto"), false),
			PowerMeanMW:     num(h.get(rec, "perfetto_power_mean_mW")),
			EnergyMWh:       num(h.get(rec, "perfetto_energy_mWh")),
			CurrentMeanUA:   num(h.get(rec, "perfetto_current_mean_uA")),
			VoltageMeanV:    num(h.get(rec, "perfetto_voltage_mean_V")),
			DischargeMAh:    num(h.get(rec, "perfetto_discharge_mAh")),
			QCKeep:          flag(h.get(rec, "qc_keep"), false),
			QCRejectReasons: strings.TrimSpace(h.get(rec, "qc_reject_reasons")),
		}
		if s.RunName == "" {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, ErrEmptyCSV
	}
	return out, nil
}

func zeroNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
