// Package loso measures out-of-fold generalization of the power model:
// leave-one-scenario-out, leave-one-run-out, and brightness-level holdouts,
// plus a run-level residual correction trained the same way.
package loso

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/battlab/socfit/pkg/dataset"
	"github.com/battlab/socfit/pkg/mathutil"
	"github.com/battlab/socfit/pkg/powermodel"
	"github.com/battlab/socfit/pkg/soc"
)

// Mode selects the split family.
type Mode string

const (
	// ModeScenario leaves one scenario out per fold.
	ModeScenario Mode = "loso"
	// ModeRun leaves one run out per fold.
	ModeRun Mode = "looro"
	// ModePrefix leaves out each scenario matching Options.Prefix in turn,
	// the brightness-sweep holdout.
	ModePrefix Mode = "prefix"
)

// ErrNoFolds indicates the dataset produced no usable splits.
var ErrNoFolds = errors.New("loso: no folds")

// Options configures Evaluate. Zero fields take defaults.
type Options struct {
	Mode Mode

	// Prefix scopes ModePrefix to scenarios that start with it.
	Prefix string

	// MinRunSamples drops runs too short to score.
	MinRunSamples int

	// Model is forwarded to calibration and prediction.
	Model powermodel.Options
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeScenario
	}
	if o.Prefix == "" {
		o.Prefix = "S2"
	}
	if o.MinRunSamples <= 0 {
		o.MinRunSamples = 30
	}
	return o
}

// Fold is one train/test split.
type Fold struct {
	Split string
	Train dataset.Dataset
	Test  dataset.Dataset
}

// RunMetrics scores one held-out run.
type RunMetrics struct {
	Split       string
	RunName     string
	Scenario    string
	NSamples    int
	PMeasMeanMW float64
	PPredMeanMW float64
	PRelErrPct  float64
	RMSESOCPct  float64
}

// FoldSummary aggregates one split.
type FoldSummary struct {
	Split            string
	NTrainSamples    int
	NTestSamples     int
	NTestRuns        int
	PowerSampleMAEmW float64
	Params           powermodel.Params
}

// Partition builds the folds for the configured mode. Input runs are first
// pruned to samples with a measured total power, then runs below
// MinRunSamples are dropped. Each fold's held-out runs never appear in its
// training set.
func Partition(ds dataset.Dataset, opts Options) ([]Fold, error) {
	opts = opts.withDefaults()
	ds = scoreable(ds, opts.MinRunSamples)
	if len(ds.Runs) == 0 {
		return nil, ErrNoFolds
	}

	var folds []Fold
	switch opts.Mode {
	case ModeRun:
		for _, name := range ds.RunNames() {
			train, test := ds.SplitRun(name)
			if len(train.Runs) == 0 {
				continue
			}
			folds = append(folds, Fold{Split: "LOORO:" + name, Train: train, Test: test})
		}
	case ModePrefix:
		for _, scen := range ds.Scenarios() {
			if !strings.HasPrefix(scen, opts.Prefix) {
				continue
			}
			train, test := ds.SplitScenario(scen)
			if len(train.Runs) == 0 {
				continue
			}
			folds = append(folds, Fold{Split: opts.Prefix + "_HOLDOUT:" + scen, Train: train, Test: test})
		}
	default:
		for _, scen := range ds.Scenarios() {
			train, test := ds.SplitScenario(scen)
			if len(train.Runs) == 0 {
				continue
			}
			folds = append(folds, Fold{Split: "LOSO:" + scen, Train: train, Test: test})
		}
	}
	if len(folds) == 0 {
		return nil, ErrNoFolds
	}
	return folds, nil
}

// Evaluate runs the full cross-validation: calibrate on each fold's training
// runs, predict the held-out runs, and score them at sample and run level.
func Evaluate(ds dataset.Dataset, opts Options) ([]FoldSummary, []RunMetrics, error) {
	opts = opts.withDefaults()

	folds, err := Partition(ds, opts)
	if err != nil {
		return nil, nil, err
	}

	var summaries []FoldSummary
	var metrics []RunMetrics
	for _, fold := range folds {
		res, err := powermodel.Calibrate(fold.Train, opts.Model)
		if err != nil {
			return nil, nil, fmt.Errorf("fold %s: %w", fold.Split, err)
		}
		curve := trainVoltageCurve(fold.Train)

		fs := FoldSummary{
			Split:         fold.Split,
			NTrainSamples: fold.Train.NumSamples(),
			NTestSamples:  fold.Test.NumSamples(),
			NTestRuns:     len(fold.Test.Runs),
			Params:        res.Params,
		}

		var absSum float64
		var absN int
		for _, run := range fold.Test.Runs {
			pred := powermodel.Predict(run, res.Params, opts.Model)

			var measSum, predSum, n float64
			for i, s := range run.Samples {
				if !mathutil.IsFinite(s.PowerTotalMW) || !mathutil.IsFinite(pred.PredMW[i]) {
					continue
				}
				measSum += s.PowerTotalMW
				predSum += pred.PredMW[i]
				absSum += math.Abs(pred.PredMW[i] - s.PowerTotalMW)
				n++
				absN++
			}

			rm := RunMetrics{
				Split:       fold.Split,
				RunName:     run.Name,
				Scenario:    run.Scenario,
				NSamples:    len(run.Samples),
				PMeasMeanMW: math.NaN(),
				PPredMeanMW: math.NaN(),
				PRelErrPct:  math.NaN(),
			}
			if n > 0 {
				rm.PMeasMeanMW = measSum / n
				rm.PPredMeanMW = predSum / n
				if rm.PMeasMeanMW != 0 {
					rm.PRelErrPct = (rm.PPredMeanMW - rm.PMeasMeanMW) / rm.PMeasMeanMW * 100
				}
			}

			traj := soc.Integrate(run, pred.PredMW, soc.Options{
				CEffMAh: res.Params.CEffMAh,
				Curve:   curve,
			})
			rm.RMSESOCPct = soc.CompareMeasured(run, traj).RMSEPct

			metrics = append(metrics, rm)
		}

		fs.PowerSampleMAEmW = math.NaN()
		if absN > 0 {
			fs.PowerSampleMAEmW = absSum / float64(absN)
		}
		summaries = append(summaries, fs)
	}

	sort.Slice(metrics, func(i, j int) bool {
		if metrics[i].Split != metrics[j].Split {
			return metrics[i].Split < metrics[j].Split
		}
		return metrics[i].RunName < metrics[j].RunName
	})
	return summaries, metrics, nil
}

// scoreable prunes samples without measured power and drops short runs.
func scoreable(ds dataset.Dataset, minSamples int) dataset.Dataset {
	var pruned dataset.Dataset
	for _, r := range ds.Runs {
		pr := dataset.Run{Name: r.Name, Scenario: r.Scenario}
		for _, s := range r.Samples {
			if mathutil.IsFinite(s.PowerTotalMW) {
				pr.Samples = append(pr.Samples, s)
			}
		}
		pruned.Runs = append(pruned.Runs, pr)
	}
	return pruned.FilterMinSamples(minSamples)
}

// trainVoltageCurve fits an open-circuit voltage curve over the training
// runs' (SOC, voltage) pairs, so a held-out run with no voltage telemetry
// integrates against a train-derived voltage instead of the flat fallback.
// Nil when the training data cannot support a fit.
func trainVoltageCurve(train dataset.Dataset) *soc.VoltageCurve {
	var socPct, voltageMV []float64
	for _, r := range train.Runs {
		for _, s := range r.Samples {
			socPct = append(socPct, s.SOCPct)
			voltageMV = append(voltageMV, s.VoltageMV)
		}
	}
	curve, err := soc.NewVoltageCurve(socPct, voltageMV)
	if err != nil {
		return nil
	}
	return curve
}
