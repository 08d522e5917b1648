package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/battlab/socfit/pkg/ancova"
	"github.com/battlab/socfit/pkg/dataset"
	"github.com/battlab/socfit/pkg/i2r"
	"github.com/battlab/socfit/pkg/loso"
	"github.com/battlab/socfit/pkg/powermodel"
	"github.com/battlab/socfit/pkg/qc"
	"github.com/battlab/socfit/pkg/report"
	"github.com/battlab/socfit/pkg/types"
)

type modelOpts struct {
	thermal       string
	ridge         float64
	robust        bool
	leakDoublingC float64
	leakMixCPU    float64
	cEffMAh       float64

	gpsOnRun, gpsOffRun   string
	cellOnRun, cellOffRun string

	smooth       string
	smoothWindow int
	smoothOrder  int
	smoothAlpha  float64
}

func (m modelOpts) build() powermodel.Options {
	o := powermodel.Options{
		Thermal:       powermodel.ThermalModel(m.thermal),
		RidgeAlpha:    m.ridge,
		Robust:        m.robust,
		LeakDoublingC: m.leakDoublingC,
		LeakMixCPU:    m.leakMixCPU,
		CEffMAh:       m.cEffMAh,
	}
	if m.gpsOnRun != "" && m.gpsOffRun != "" {
		o.GPSOffPair = &powermodel.ABPair{OnRun: m.gpsOnRun, OffRun: m.gpsOffRun}
	}
	if m.cellOnRun != "" && m.cellOffRun != "" {
		o.CellularOffPair = &powermodel.ABPair{OnRun: m.cellOnRun, OffRun: m.cellOffRun}
	}
	return o
}

func addModelFlags(cmd *cobra.Command, m *modelOpts) {
	cmd.Flags().StringVar(&m.thermal, "thermal", "1state", "thermal model: 1state or 2state")
	cmd.Flags().Float64Var(&m.ridge, "ridge", 2000, "base-fit ridge strength")
	cmd.Flags().BoolVar(&m.robust, "robust", false, "fit the base model with Huber IRLS instead of ridge")
	cmd.Flags().Float64Var(&m.leakDoublingC, "leak-doubling-c", 10, "degrees C over which leakage power doubles")
	cmd.Flags().Float64Var(&m.leakMixCPU, "leak-mix-cpu", 0.7, "CPU weight in the two-state leak temperature blend")
	cmd.Flags().Float64Var(&m.cEffMAh, "c-eff", 4410, "effective battery capacity in mAh")
	cmd.Flags().StringVar(&m.gpsOnRun, "gps-on-run", "", "GPS-on run of the A/B pair for the GPS-off offset")
	cmd.Flags().StringVar(&m.gpsOffRun, "gps-off-run", "", "GPS-off run of the A/B pair")
	cmd.Flags().StringVar(&m.cellOnRun, "cellular-on-run", "", "cellular-on run of the A/B pair for the cellular-off offset")
	cmd.Flags().StringVar(&m.cellOffRun, "cellular-off-run", "", "cellular-off run of the A/B pair")
	cmd.Flags().StringVar(&m.smooth, "smooth", "none", "power pre-smoothing: none, savgol, or ema")
	cmd.Flags().IntVar(&m.smoothWindow, "smooth-window", 21, "Savitzky-Golay window length")
	cmd.Flags().IntVar(&m.smoothOrder, "smooth-order", 2, "Savitzky-Golay polynomial order")
	cmd.Flags().Float64Var(&m.smoothAlpha, "smooth-alpha", 0.2, "EMA smoothing factor")
}

// loadDataset reads the model-input CSV and applies the configured power
// smoothing in place.
func loadDataset(path string, m modelOpts) (dataset.Dataset, error) {
	ds, err := dataset.LoadRuns(path)
	if err != nil {
		return dataset.Dataset{}, err
	}
	if m.smooth == "" || m.smooth == string(dataset.SmoothNone) {
		return ds, nil
	}
	so := dataset.SmoothOptions{
		Method:    dataset.SmoothMethod(m.smooth),
		Window:    m.smoothWindow,
		PolyOrder: m.smoothOrder,
		Alpha:     m.smoothAlpha,
	}
	for i := range ds.Runs {
		sm, err := dataset.SmoothPower(ds.Runs[i], so)
		if err != nil {
			return dataset.Dataset{}, fmt.Errorf("smooth %s: %w", ds.Runs[i].Name, err)
		}
		for j := range ds.Runs[i].Samples {
			ds.Runs[i].Samples[j].PowerTotalMW = sm[j]
		}
	}
	return ds, nil
}

// loadSummaries reads the QC summary CSV, or derives summaries from the run
// samples when no summary file is given.
func loadSummaries(path string, ds dataset.Dataset) ([]dataset.RunSummary, error) {
	if path != "" {
		return dataset.LoadRunSummaries(path)
	}
	if len(ds.Runs) == 0 {
		return nil, fmt.Errorf("either --summaries or --input is required")
	}
	out := make([]dataset.RunSummary, 0, len(ds.Runs))
	for _, r := range ds.Runs {
		out = append(out, dataset.SummarizeRun(r))
	}
	return out, nil
}

func saveFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	slog.Info("wrote", "path", path)
	return nil
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

func main() {
	root := &cobra.Command{
		Use:   "socfit",
		Short: "Battery drain model calibration toolkit",
		Long: `socfit calibrates a phone battery drain model from scenario run traces:
a decomposed power model (base + screen + CPU + thermal leakage, with
optional radio off-state offsets) plus a charge integrator that turns
predicted power into a state-of-charge trajectory.

Inputs are per-sample run CSVs and per-run QC summary CSVs. Every
evaluation is leave-one-scenario-out by default, so reported gains are
always out of fold.

Examples:
  socfit qc --summaries qc_run_summary.csv --out out
  socfit fit --input model_input.csv --robust --params out/params.json
  socfit eval --input model_input.csv --mode loso --out out
  socfit residual --input model_input.csv --summaries qc_run_summary.csv --out out
  socfit i2r --input model_input.csv --summaries qc_run_summary.csv --variant R0_Rsoc --out out
  socfit adjust --summaries qc_run_summary.csv --out out`,
	}

	root.AddCommand(qcCmd(), fitCmd(), evalCmd(), residualCmd(), i2rCmd(), adjustCmd())

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func qcCmd() *cobra.Command {
	var (
		input     string
		summaries string
		outDir    string
		policy    qc.Policy
	)
	def := qc.DefaultPolicy()

	cmd := &cobra.Command{
		Use:   "qc",
		Short: "Gate runs on start state and trace quality",
		RunE: func(cmd *cobra.Command, args []string) error {
			var ds dataset.Dataset
			if input != "" {
				var err error
				if ds, err = dataset.LoadRuns(input); err != nil {
					return err
				}
			}
			rows, err := loadSummaries(summaries, ds)
			if err != nil {
				return err
			}

			verdicts := policy.Apply(rows)

			var kept []dataset.RunSummary
			for _, r := range rows {
				if r.QCKeep {
					kept = append(kept, r)
				}
			}
			repeat := qc.ScenarioRepeatability(kept)

			tw := newTable()
			fmt.Fprintln(tw, "RUN\tSCENARIO\tKEEP\tREASONS")
			for i, v := range verdicts {
				fmt.Fprintf(tw, "%s\t%s\t%v\t%s\n", v.RunName, rows[i].Scenario, v.Keep, v.Reason())
			}
			tw.Flush()
			fmt.Printf("\nkept %d of %d runs\n", len(kept), len(rows))

			if err := saveFile(filepath.Join(outDir, "qc_run_summary.csv"), func(w io.Writer) error {
				return report.WriteRunSummaries(w, rows)
			}); err != nil {
				return err
			}
			if err := saveFile(filepath.Join(outDir, "qc_scenario_repeatability.csv"), func(w io.Writer) error {
				return report.WriteRepeatability(w, repeat)
			}); err != nil {
				return err
			}
			return saveFile(filepath.Join(outDir, "qc_report.md"), func(w io.Writer) error {
				return report.WriteQCMarkdown(w, report.QCData{Policy: policy, Summaries: rows, Repeat: repeat})
			})
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "model-input run CSV (used to derive summaries when --summaries is absent)")
	cmd.Flags().StringVar(&summaries, "summaries", "", "QC run summary CSV")
	cmd.Flags().StringVar(&outDir, "out", "out", "output directory")
	cmd.Flags().Float64Var(&policy.MinSOCPct, "min-soc", def.MinSOCPct, "minimum start SOC in percent")
	cmd.Flags().Float64Var(&policy.MinVoltageMV, "min-voltage", def.MinVoltageMV, "minimum start voltage in mV")
	cmd.Flags().Float64Var(&policy.MaxThermalCPUC, "max-cpu-temp", def.MaxThermalCPUC, "maximum start CPU temperature in C")
	cmd.Flags().IntVar(&policy.MinRows, "min-rows", def.MinRows, "minimum sample count")
	cmd.Flags().Float64Var(&policy.MinDurationS, "min-duration", def.MinDurationS, "minimum trace duration in seconds")
	cmd.Flags().BoolVar(&policy.RequireThermalNominal, "require-thermal-nominal", false, "reject runs starting under thermal throttling")
	cmd.Flags().BoolVar(&policy.RequireUnplugged, "require-unplugged", false, "reject runs starting on the charger")
	cmd.Flags().BoolVar(&policy.RequirePowerTrace, "require-trace", false, "reject runs without a measured power trace")
	return cmd
}

func fitCmd() *cobra.Command {
	var (
		m          modelOpts
		input      string
		paramsPath string
		thermPath  string
	)

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Calibrate the power model on all runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := loadDataset(input, m)
			if err != nil {
				return err
			}

			res, err := powermodel.Calibrate(ds, m.build())
			if err != nil {
				return err
			}
			p := res.Params

			fmt.Printf("calibrated on %d runs (%s thermal):\n", len(res.Runs), m.thermal)
			fmt.Printf("- p_base:         %s\n", types.Milliwatt(p.PBaseMW).Humanized())
			fmt.Printf("- k_screen:       %.4f\n", p.KScreen)
			fmt.Printf("- k_cpu:          %.4f\n", p.KCPU)
			fmt.Printf("- k_leak:         %s at T_ref %.1f C (gamma %.4f /C)\n",
				types.Milliwatt(p.KLeakMW).Humanized(), p.LeakTRefC, p.LeakGammaPerC)
			fmt.Printf("- gps off:        %s (%s)\n", types.Milliwatt(p.KGPSOffMW).Humanized(), res.GPSSource)
			fmt.Printf("- cellular off:   %s (%s)\n", types.Milliwatt(p.KCellularOffMW).Humanized(), res.CellularSource)
			ceff := types.MilliampHour(p.CEffMAh)
			fmt.Printf("- capacity:       %s (%.0f C)\n", ceff.Humanized(), ceff.Coulombs())

			if paramsPath != "" {
				if err := saveFile(paramsPath, func(w io.Writer) error {
					enc := json.NewEncoder(w)
					enc.SetIndent("", "  ")
					return enc.Encode(p)
				}); err != nil {
					return err
				}
			}
			if thermPath != "" {
				return saveFile(thermPath, func(w io.Writer) error {
					return report.WriteThermalFits(w, res.Thermal)
				})
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "model-input run CSV")
	_ = cmd.MarkFlagRequired("input")
	cmd.Flags().StringVar(&paramsPath, "params", "out/params.json", "write fitted parameters to this JSON file")
	cmd.Flags().StringVar(&thermPath, "thermal-table", "out/thermal_fits.csv", "write per-run thermal fits to this CSV file")
	addModelFlags(cmd, &m)
	return cmd
}

func evalCmd() *cobra.Command {
	var (
		m         modelOpts
		input     string
		summaries string
		outDir    string
		mode      string
		prefix    string
		minRun    int
		qcOnly    bool
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Cross-validate the model on held-out runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := loadDataset(input, m)
			if err != nil {
				return err
			}
			if qcOnly {
				ds, err = qcFilter(ds, summaries)
				if err != nil {
					return err
				}
			}

			opts := loso.Options{
				Mode:          loso.Mode(mode),
				Prefix:        prefix,
				MinRunSamples: minRun,
				Model:         m.build(),
			}
			folds, runs, err := loso.Evaluate(ds, opts)
			if err != nil {
				return err
			}

			tw := newTable()
			fmt.Fprintln(tw, "SPLIT\tTRAIN\tTEST\tRUNS\tMAE (mW)")
			for _, f := range folds {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.1f\n",
					f.Split, f.NTrainSamples, f.NTestSamples, f.NTestRuns, f.PowerSampleMAEmW)
			}
			tw.Flush()

			if err := saveFile(filepath.Join(outDir, "eval_summary.csv"), func(w io.Writer) error {
				return report.WriteFoldSummaries(w, folds)
			}); err != nil {
				return err
			}
			if err := saveFile(filepath.Join(outDir, "eval_run_metrics.csv"), func(w io.Writer) error {
				return report.WriteRunMetrics(w, runs)
			}); err != nil {
				return err
			}
			return saveFile(filepath.Join(outDir, "eval_report.md"), func(w io.Writer) error {
				return report.WriteEvalMarkdown(w, report.EvalData{Mode: mode, Folds: folds, Runs: runs})
			})
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "model-input run CSV")
	_ = cmd.MarkFlagRequired("input")
	cmd.Flags().StringVar(&summaries, "summaries", "", "QC run summary CSV (derived from --input when absent)")
	cmd.Flags().StringVar(&outDir, "out", "out", "output directory")
	cmd.Flags().StringVar(&mode, "mode", "loso", "split mode: loso, looro, or prefix")
	cmd.Flags().StringVar(&prefix, "prefix", "S2", "scenario prefix for prefix mode")
	cmd.Flags().IntVar(&minRun, "min-run-samples", 30, "drop runs with fewer scoreable samples")
	cmd.Flags().BoolVar(&qcOnly, "qc-only", false, "use only runs the QC policy kept")
	addModelFlags(cmd, &m)
	return cmd
}

// qcFilter drops runs the QC pass rejected. With a summary file the stored
// verdicts are authoritative; otherwise the default policy runs over
// summaries derived from the dataset itself.
func qcFilter(ds dataset.Dataset, summaries string) (dataset.Dataset, error) {
	sums, err := loadSummaries(summaries, ds)
	if err != nil {
		return dataset.Dataset{}, err
	}
	verdicts := qc.FromSummaries(sums)
	if summaries == "" {
		verdicts = qc.DefaultPolicy().Apply(sums)
	}
	return qc.Filter(ds, verdicts), nil
}

// evalRunMetrics is the shared front half of the residual and i2r commands.
func evalRunMetrics(input string, m modelOpts, mode, prefix string, minRun int) (dataset.Dataset, []loso.RunMetrics, error) {
	ds, err := loadDataset(input, m)
	if err != nil {
		return dataset.Dataset{}, nil, err
	}
	opts := loso.Options{
		Mode:          loso.Mode(mode),
		Prefix:        prefix,
		MinRunSamples: minRun,
		Model:         m.build(),
	}
	_, runs, err := loso.Evaluate(ds, opts)
	if err != nil {
		return dataset.Dataset{}, nil, err
	}
	return ds, runs, nil
}

func residualCmd() *cobra.Command {
	var (
		m         modelOpts
		input     string
		summaries string
		outDir    string
		mode      string
		prefix    string
		minRun    int
		alpha     float64
		qcOnly    bool
	)

	cmd := &cobra.Command{
		Use:   "residual",
		Short: "Correct out-of-fold residuals on run start state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, runs, err := evalRunMetrics(input, m, mode, prefix, minRun)
			if err != nil {
				return err
			}
			sums, err := loadSummaries(summaries, ds)
			if err != nil {
				return err
			}

			res := loso.CorrectResiduals(runs, sums, loso.ResidualOptions{
				Alpha:      alpha,
				OnlyQCKeep: qcOnly,
			})

			fmt.Printf("run-level residuals over %d runs:\n", res.Base.N)
			fmt.Printf("- base:       MAE %.1f mW, RMSE %.1f mW, bias %.1f mW\n",
				res.Base.MAEmW, res.Base.RMSEmW, res.Base.BiasmW)
			fmt.Printf("- corrected:  MAE %.1f mW, RMSE %.1f mW, bias %.1f mW\n",
				res.Corrected.MAEmW, res.Corrected.RMSEmW, res.Corrected.BiasmW)

			if err := saveFile(filepath.Join(outDir, "residual_runs.csv"), func(w io.Writer) error {
				return report.WriteResidualRows(w, res.Rows)
			}); err != nil {
				return err
			}
			if err := saveFile(filepath.Join(outDir, "residual_scenarios.csv"), func(w io.Writer) error {
				return report.WriteScenarioMetrics(w, res.ScenarioBase, res.ScenarioCorrected)
			}); err != nil {
				return err
			}
			return saveFile(filepath.Join(outDir, "residual_report.md"), func(w io.Writer) error {
				return report.WriteResidualMarkdown(w, res)
			})
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "model-input run CSV")
	_ = cmd.MarkFlagRequired("input")
	cmd.Flags().StringVar(&summaries, "summaries", "", "QC run summary CSV (derived from --input when absent)")
	cmd.Flags().StringVar(&outDir, "out", "out", "output directory")
	cmd.Flags().StringVar(&mode, "mode", "loso", "split mode: loso, looro, or prefix")
	cmd.Flags().StringVar(&prefix, "prefix", "S2", "scenario prefix for prefix mode")
	cmd.Flags().IntVar(&minRun, "min-run-samples", 30, "drop runs with fewer scoreable samples")
	cmd.Flags().Float64Var(&alpha, "alpha", 1e-3, "ridge strength of the covariate fit")
	cmd.Flags().BoolVar(&qcOnly, "qc-only", false, "use only runs the QC policy kept")
	addModelFlags(cmd, &m)
	return cmd
}

func i2rCmd() *cobra.Command {
	var (
		m         modelOpts
		input     string
		summaries string
		outDir    string
		mode      string
		prefix    string
		minRun    int
		variant   string
		trefC     float64
		i2rRidge  float64
		fitScale  bool
		qcOnly    bool
	)

	cmd := &cobra.Command{
		Use:   "i2r",
		Short: "Fit an ohmic-loss residual term on held-out runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, runs, err := evalRunMetrics(input, m, mode, prefix, minRun)
			if err != nil {
				return err
			}
			sums, err := loadSummaries(summaries, ds)
			if err != nil {
				return err
			}

			opts := i2r.Options{
				Variant:    i2r.Variant(variant),
				TRefC:      trefC,
				Ridge:      i2rRidge,
				FitScale:   fitScale,
				OnlyQCKeep: qcOnly,
			}
			rows := i2r.BuildRows(runs, sums, opts)
			res := i2r.Fit(rows, opts)

			tw := newTable()
			fmt.Fprintln(tw, "COVARIATE\tR BEFORE\tR AFTER")
			for _, c := range res.Correlations {
				fmt.Fprintf(tw, "%s\t%.3f\t%.3f\n", c.Covariate, c.RBefore, c.RAfter)
			}
			tw.Flush()
			fmt.Printf("\nRMSE %.1f -> %.1f mW over %d runs\n",
				res.Base.RMSEmW, res.Corrected.RMSEmW, res.Base.N)

			if err := saveFile(filepath.Join(outDir, "i2r_runs.csv"), func(w io.Writer) error {
				return report.WriteI2RRows(w, res.Rows)
			}); err != nil {
				return err
			}
			if err := saveFile(filepath.Join(outDir, "i2r_folds.csv"), func(w io.Writer) error {
				return report.WriteI2RFolds(w, res.Folds, i2r.Variant(variant))
			}); err != nil {
				return err
			}
			if err := saveFile(filepath.Join(outDir, "i2r_correlations.csv"), func(w io.Writer) error {
				return report.WriteCorrelations(w, res.Correlations)
			}); err != nil {
				return err
			}
			return saveFile(filepath.Join(outDir, "i2r_report.md"), func(w io.Writer) error {
				return report.WriteI2RMarkdown(w, report.I2RData{Variant: i2r.Variant(variant), Result: res})
			})
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "model-input run CSV")
	_ = cmd.MarkFlagRequired("input")
	cmd.Flags().StringVar(&summaries, "summaries", "", "QC run summary CSV (derived from --input when absent)")
	cmd.Flags().StringVar(&outDir, "out", "out", "output directory")
	cmd.Flags().StringVar(&mode, "mode", "loso", "split mode: loso, looro, or prefix")
	cmd.Flags().StringVar(&prefix, "prefix", "S2", "scenario prefix for prefix mode")
	cmd.Flags().IntVar(&minRun, "min-run-samples", 30, "drop runs with fewer scoreable samples")
	cmd.Flags().StringVar(&variant, "variant", string(i2r.R0RSOCRTemp), "resistance parameterization: R0, R0_Rsoc, or R0_Rsoc_Rtpos")
	cmd.Flags().Float64Var(&trefC, "tref", 40, "CPU temperature threshold for the hot term in C")
	cmd.Flags().Float64Var(&i2rRidge, "i2r-ridge", 1e-6, "ridge strength of the per-fold resistance fit")
	cmd.Flags().BoolVar(&fitScale, "fit-scale", false, "fit an extra nonnegative scale on the predicted loss")
	cmd.Flags().BoolVar(&qcOnly, "qc-only", false, "use only runs the QC policy kept")
	addModelFlags(cmd, &m)
	return cmd
}

func adjustCmd() *cobra.Command {
	var (
		summaries string
		outDir    string
		qcOnly    bool
		ref       ancova.Reference
	)

	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Compare scenario means at a common start state",
		RunE: func(cmd *cobra.Command, args []string) error {
			sums, err := dataset.LoadRunSummaries(summaries)
			if err != nil {
				return err
			}

			res, err := ancova.AdjustedMeans(sums, ancova.Options{Ref: ref, OnlyQCKeep: qcOnly})
			if err != nil {
				return err
			}

			tw := newTable()
			fmt.Fprintln(tw, "SCENARIO\tN\tRAW (mW)\tADJ (mW)\tDELTA (mW)")
			for _, s := range res.Scenarios {
				fmt.Fprintf(tw, "%s\t%d\t%.1f\t%.1f\t%.1f\n",
					s.Scenario, s.N, s.RawMeanMW, s.AdjustedMeanMW, s.DeltaMW)
			}
			tw.Flush()
			fmt.Printf("\nreference: SOC %.1f%%, %.3f V, CPU %.1f C, batt %.1f C (baseline %s)\n",
				res.Ref.SOC0Pct, res.Ref.Voltage0V, res.Ref.ThermalCPU0C, res.Ref.ThermalBatt0C, res.Baseline)

			if err := saveFile(filepath.Join(outDir, "scenario_adjusted.csv"), func(w io.Writer) error {
				return report.WriteAdjustedMeans(w, res.Scenarios)
			}); err != nil {
				return err
			}
			if err := saveFile(filepath.Join(outDir, "scenario_adjust_coeffs.csv"), func(w io.Writer) error {
				return report.WriteCoefficients(w, res.Coefficients)
			}); err != nil {
				return err
			}
			return saveFile(filepath.Join(outDir, "adjust_report.md"), func(w io.Writer) error {
				return report.WriteAdjustMarkdown(w, res)
			})
		},
	}

	cmd.Flags().StringVar(&summaries, "summaries", "", "QC run summary CSV")
	_ = cmd.MarkFlagRequired("summaries")
	cmd.Flags().StringVar(&outDir, "out", "out", "output directory")
	cmd.Flags().BoolVar(&qcOnly, "qc-only", false, "use only runs the QC policy kept")
	cmd.Flags().Float64Var(&ref.SOC0Pct, "ref-soc", 0, "reference start SOC in percent (0 = median)")
	cmd.Flags().Float64Var(&ref.Voltage0V, "ref-voltage", 0, "reference start voltage in V (0 = median)")
	cmd.Flags().Float64Var(&ref.ThermalCPU0C, "ref-cpu-temp", 0, "reference start CPU temperature in C (0 = median)")
	cmd.Flags().Float64Var(&ref.ThermalBatt0C, "ref-batt-temp", 0, "reference start battery temperature in C (0 = median)")
	return cmd
}
