// Package report renders the calibration pipeline's outputs as CSV tables
// and markdown summaries. CSV columns round-trip through the loaders in
// pkg/dataset; NaN becomes an empty cell on the way out and comes back as
// NaN on the way in.
package report

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"

	"github.com/battlab/socfit/pkg/ancova"
	"github.com/battlab/socfit/pkg/dataset"
	"github.com/battlab/socfit/pkg/i2r"
	"github.com/battlab/socfit/pkg/loso"
	"github.com/battlab/socfit/pkg/powermodel"
	"github.com/battlab/socfit/pkg/qc"
)

// cell formats a float for CSV, empty for NaN or infinity.
func cell(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func icell(v int) string { return strconv.Itoa(v) }

func bcell(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func writeTable(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRunSummaries writes the QC run summary table in the same schema
// dataset.ReadRunSummaries reads.
func WriteRunSummaries(w io.Writer, rows []dataset.RunSummary) error {
	header := []string{
		"run_name", "scenario", "n_samples", "perfetto_duration_s",
		"battery_level0_pct", "battery_voltage0_mV",
		"thermal_cpu0_C", "thermal_batt0_C", "thermal_status0", "battery_plugged0",
		"has_perfetto", "perfetto_power_mean_mW", "perfetto_energy_mWh",
		"perfetto_current_mean_uA", "perfetto_voltage_mean_V", "perfetto_discharge_mAh",
		"qc_keep", "qc_reject_reasons",
	}
	recs := make([][]string, 0, len(rows))
	for _, s := range rows {
		recs = append(recs, []string{
			s.RunName, s.Scenario, icell(s.NSamples), cell(s.DurationS),
			cell(s.SOC0Pct), cell(s.Voltage0MV),
			cell(s.ThermalCPU0C), cell(s.ThermalBatt0C), cell(s.ThermalStatus0), cell(s.Plugged0),
			bcell(s.HasPowerTrace), cell(s.PowerMeanMW), cell(s.EnergyMWh),
			cell(s.CurrentMeanUA), cell(s.VoltageMeanV), cell(s.DischargeMAh),
			bcell(s.QCKeep), s.QCRejectReasons,
		})
	}
	return writeTable(w, header, recs)
}

// WriteRepeatability writes the per-scenario repeatability table.
func WriteRepeatability(w io.Writer, stats []qc.RepeatStat) error {
	header := []string{
		"scenario", "n_runs", "mean_mW", "std_mW", "cv", "ratio_max_min", "min_mW", "max_mW",
	}
	recs := make([][]string, 0, len(stats))
	for _, s := range stats {
		recs = append(recs, []string{
			s.Scenario, icell(s.N), cell(s.MeanMW), cell(s.StdMW),
			cell(s.CV), cell(s.RatioMaxMin), cell(s.MinMW), cell(s.MaxMW),
		})
	}
	return writeTable(w, header, recs)
}

// WriteFoldSummaries writes one row per evaluation split with the
// parameters fit on that split's training side.
func WriteFoldSummaries(w io.Writer, folds []loso.FoldSummary) error {
	header := []string{
		"split", "n_train_samples", "n_test_samples", "n_test_runs", "power_sample_mae_mW",
		"p_base_mW", "k_screen", "k_cpu", "k_leak_mW", "leak_gamma_per_C", "leak_tref_C",
		"k_gps_off_mW", "k_cellular_off_mW",
	}
	recs := make([][]string, 0, len(folds))
	for _, f := range folds {
		p := f.Params
		recs = append(recs, []string{
			f.Split, icell(f.NTrainSamples), icell(f.NTestSamples), icell(f.NTestRuns),
			cell(f.PowerSampleMAEmW),
			cell(p.PBaseMW), cell(p.KScreen), cell(p.KCPU), cell(p.KLeakMW),
			cell(p.LeakGammaPerC), cell(p.LeakTRefC),
			cell(p.KGPSOffMW), cell(p.KCellularOffMW),
		})
	}
	return writeTable(w, header, recs)
}

// WriteRunMetrics writes the per-held-out-run evaluation table.
func WriteRunMetrics(w io.Writer, rows []loso.RunMetrics) error {
	header := []string{
		"split", "run_name", "scenario", "n_samples",
		"p_meas_mean_mW", "p_pred_mean_mW", "p_rel_err_pct", "rmse_soc_pct",
	}
	recs := make([][]string, 0, len(rows))
	for _, m := range rows {
		recs = append(recs, runMetricsCells(m))
	}
	return writeTable(w, header, recs)
}

func runMetricsCells(m loso.RunMetrics) []string {
	return []string{
		m.Split, m.RunName, m.Scenario, icell(m.NSamples),
		cell(m.PMeasMeanMW), cell(m.PPredMeanMW), cell(m.PRelErrPct), cell(m.RMSESOCPct),
	}
}

// WriteThermalFits writes the per-run thermal model table.
func WriteThermalFits(w io.Writer, fits []powermodel.ThermalFit) error {
	header := []string{
		"run_name", "model", "t_amb_C",
		"a_cpu_per_s", "b_cpu_C_per_J", "a_batt_per_s", "b_couple_per_s",
		"tau_cpu_s", "tau_batt_s", "leak_mix_cpu",
	}
	recs := make([][]string, 0, len(fits))
	for _, f := range fits {
		recs = append(recs, []string{
			f.RunName, string(f.Model), cell(f.TAmbC),
			cell(f.ACPUPerS), cell(f.BCPUCPerJ), cell(f.ABattPerS), cell(f.BCouplePerS),
			cell(f.TauCPUS), cell(f.TauBattS), cell(f.LeakMixCPU),
		})
	}
	return writeTable(w, header, recs)
}

// WriteResidualRows writes the run-level residual correction table.
func WriteResidualRows(w io.Writer, rows []loso.ResidualRow) error {
	header := []string{
		"split", "run_name", "scenario", "n_samples",
		"p_meas_mean_mW", "p_pred_mean_mW", "p_rel_err_pct", "rmse_soc_pct",
		"soc0_pct", "voltage0_V", "thermal_cpu0_C", "thermal_batt0_C",
		"resid_mW", "resid_hat_mW", "resid_corr_mW", "p_pred_corr_mW",
	}
	recs := make([][]string, 0, len(rows))
	for _, r := range rows {
		rec := runMetricsCells(r.RunMetrics)
		rec = append(rec,
			cell(r.SOC0Pct), cell(r.Voltage0V), cell(r.ThermalCPU0C), cell(r.ThermalBatt0C),
			cell(r.ResidMW), cell(r.ResidHatMW), cell(r.ResidCorrMW), cell(r.PPredCorrMW),
		)
		recs = append(recs, rec)
	}
	return writeTable(w, header, recs)
}

// WriteScenarioMetrics writes per-scenario error metrics before and after a
// correction, matched by scenario name. Scenarios present on only one side
// leave the other side's cells empty.
func WriteScenarioMetrics(w io.Writer, base, corrected []loso.ScenarioMetrics) error {
	header := []string{
		"scenario", "n",
		"mae_base_mW", "rmse_base_mW", "bias_base_mW",
		"mae_corr_mW", "rmse_corr_mW", "bias_corr_mW",
	}

	corrBy := make(map[string]loso.ScenarioMetrics, len(corrected))
	for _, c := range corrected {
		corrBy[c.Scenario] = c
	}
	seen := make(map[string]bool, len(base))

	var recs [][]string
	for _, b := range base {
		seen[b.Scenario] = true
		rec := []string{
			b.Scenario, icell(b.N),
			cell(b.MAEmW), cell(b.RMSEmW), cell(b.BiasmW),
		}
		if c, ok := corrBy[b.Scenario]; ok {
			rec = append(rec, cell(c.MAEmW), cell(c.RMSEmW), cell(c.BiasmW))
		} else {
			rec = append(rec, "", "", "")
		}
		recs = append(recs, rec)
	}
	for _, c := range corrected {
		if seen[c.Scenario] {
			continue
		}
		recs = append(recs, []string{
			c.Scenario, icell(c.N), "", "", "",
			cell(c.MAEmW), cell(c.RMSEmW), cell(c.BiasmW),
		})
	}
	return writeTable(w, header, recs)
}

// WriteI2RRows writes the run-level ohmic-loss correction table.
func WriteI2RRows(w io.Writer, rows []i2r.Row) error {
	header := []string{
		"run_name", "scenario",
		"p_meas_mean_mW", "p_pred_mean_mW", "resid_mW",
		"soc0", "thermal_cpu0_C", "perfetto_current_mean_uA", "perfetto_voltage_mean_V",
		"usable", "p_loss_hat_W", "p_pred_corr_mW", "resid_corr_mW",
	}
	recs := make([][]string, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, []string{
			r.RunName, r.Scenario,
			cell(r.PMeasMeanMW), cell(r.PPredMeanMW), cell(r.ResidMW),
			cell(r.SOC0), cell(r.ThermalCPU0C), cell(r.CurrentUA), cell(r.VoltageV),
			bcell(r.Usable), cell(r.PLossHatW), cell(r.PPredCorrMW), cell(r.ResidCorrMW),
		})
	}
	return writeTable(w, header, recs)
}

// WriteI2RFolds writes the coefficients fit with each scenario held out.
// Column names come from the variant's term list.
func WriteI2RFolds(w io.Writer, folds []i2r.FoldFit, variant i2r.Variant) error {
	terms := variant.Terms()
	header := append([]string{"heldout_scenario"}, terms...)
	header = append(header, "scale")

	recs := make([][]string, 0, len(folds))
	for _, f := range folds {
		rec := []string{f.Scenario}
		for i := range terms {
			if i < len(f.Beta) {
				rec = append(rec, cell(f.Beta[i]))
			} else {
				rec = append(rec, "")
			}
		}
		rec = append(rec, cell(f.Scale))
		recs = append(recs, rec)
	}
	return writeTable(w, header, recs)
}

// WriteCorrelations writes residual-vs-covariate correlations before and
// after a correction.
func WriteCorrelations(w io.Writer, corrs []i2r.Correlation) error {
	header := []string{"covariate", "r_before", "r_after"}
	recs := make([][]string, 0, len(corrs))
	for _, c := range corrs {
		recs = append(recs, []string{c.Covariate, cell(c.RBefore), cell(c.RAfter)})
	}
	return writeTable(w, header, recs)
}

// WriteAdjustedMeans writes the covariate-adjusted scenario comparison.
func WriteAdjustedMeans(w io.Writer, scens []ancova.ScenarioMean) error {
	header := []string{
		"scenario", "n_runs",
		"raw_mean_mW", "raw_std_mW", "raw_min_mW", "raw_max_mW", "raw_cv", "ratio_max_min",
		"adj_mean_mW", "delta_mW",
	}
	recs := make([][]string, 0, len(scens))
	for _, s := range scens {
		recs = append(recs, []string{
			s.Scenario, icell(s.N),
			cell(s.RawMeanMW), cell(s.RawStdMW), cell(s.RawMinMW), cell(s.RawMaxMW),
			cell(s.RawCV), cell(s.RatioMaxMin),
			cell(s.AdjustedMeanMW), cell(s.DeltaMW),
		})
	}
	return writeTable(w, header, recs)
}

// WriteCoefficients writes named regression coefficients.
func WriteCoefficients(w io.Writer, coefs []ancova.Coefficient) error {
	header := []string{"term", "coef"}
	recs := make([][]string, 0, len(coefs))
	for _, c := range coefs {
		recs = append(recs, []string{c.Term, cell(c.Coef)})
	}
	return writeTable(w, header, recs)
}
