package powermodel

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/battlab/socfit/pkg/dataset"
)

// constTempRun builds a run at a fixed temperature whose total power follows
// a known linear model so the fit can be checked against ground truth.
func constTempRun(name, scenario string, tempC float64, n int, gpsOn, cellOn bool, powerShift float64) dataset.Run {
	gamma := math.Ln2 / 10.0
	const tRef = 30.0 // median of the 25/30/35 trio used below
	feat := math.Exp(gamma * (tempC - tRef))

	r := dataset.Run{Name: name, Scenario: scenario}
	for i := 0; i < n; i++ {
		screen := 200 + 50*math.Sin(float64(i)/7)
		cpu := 400 + 150*math.Cos(float64(i)/5)
		total := 1000 + 0.9*screen + 1.1*cpu + 50*feat + powerShift
		r.Samples = append(r.Samples, dataset.Sample{
			T: float64(i) * 5, Dt: 5,
			TempCPUC: tempC, TempBattC: tempC - 2,
			PowerScreenMW: screen, PowerCPUMW: cpu,
			PowerTotalMW: total,
			GPSOn:        gpsOn, CellularOn: cellOn,
		})
	}
	return r
}

func syntheticDataset() dataset.Dataset {
	return dataset.Dataset{Runs: []dataset.Run{
		constTempRun("r25", "idle", 25, 80, true, true, 0),
		constTempRun("r30", "video", 30, 80, true, true, 0),
		constTempRun("r35", "game", 35, 80, true, true, 0),
	}}
}

func TestFitThermal1_Recovery(t *testing.T) {
	const (
		a    = -1.0 / 500.0
		b    = 2.0
		tAmb = 25.0
	)

	r := dataset.Run{Name: "warm", Scenario: "s"}
	temp := tAmb
	for i := 0; i < 200; i++ {
		pCPU := 500.0
		if i > 100 {
			pCPU = 100.0
		}
		r.Samples = append(r.Samples, dataset.Sample{
			T: float64(i) * 5, Dt: 5,
			TempCPUC:     temp,
			PowerCPUMW:   pCPU,
			PowerTotalMW: 1000,
		})
		temp += (a*(temp-tAmb) + b*pCPU/1000.0) * 5
	}

	th := FitThermal1(r)
	t.Logf("fit: a=%.6f (want %.6f) b=%.3f (want %.3f) tAmb=%.1f",
		th.APerS, a, th.BCPerJ, b, th.TAmbC)

	assert.InDelta(t, a, th.APerS, 5e-4)
	assert.InDelta(t, b, th.BCPerJ, 0.1)
	assert.InDelta(t, tAmb, th.TAmbC, 1e-9)

	hat := Simulate1(r, th)
	require.Len(t, hat, len(r.Samples))
	for i, s := range r.Samples {
		assert.InDelta(t, s.TempCPUC, hat[i], 1.0, "sample %d", i)
	}
}

func TestFitThermal1_Fallbacks(t *testing.T) {
	t.Run("no temperature signal", func(t *testing.T) {
		r := dataset.Run{Name: "blind"}
		for i := 0; i < 50; i++ {
			r.Samples = append(r.Samples, dataset.Sample{Dt: 5, TempCPUC: math.NaN()})
		}
		th := FitThermal1(r)
		assert.InDelta(t, -1.0/2000.0, th.APerS, 1e-12)
		assert.Equal(t, 0.0, th.BCPerJ)
		assert.Equal(t, 40.0, th.TAmbC)
	})

	t.Run("too few steps", func(t *testing.T) {
		r := dataset.Run{Name: "short"}
		for i := 0; i < 5; i++ {
			r.Samples = append(r.Samples, dataset.Sample{Dt: 5, TempCPUC: 30 + float64(i)})
		}
		th := FitThermal1(r)
		assert.InDelta(t, -1.0/2000.0, th.APerS, 1e-12)
		assert.Equal(t, 30.0, th.TAmbC)
	})

	t.Run("cooling sign is enforced", func(t *testing.T) {
		// Monotone heating with no power signal would fit a > 0.
		r := dataset.Run{Name: "runaway"}
		for i := 0; i < 50; i++ {
			r.Samples = append(r.Samples, dataset.Sample{Dt: 5, TempCPUC: 25 + float64(i)})
		}
		th := FitThermal1(r)
		assert.LessOrEqual(t, th.APerS, -1e-6)
		assert.GreaterOrEqual(t, th.BCPerJ, 0.0)
	})
}

func TestSimulate1_HoldsOnBadDt(t *testing.T) {
	r := dataset.Run{Name: "gap"}
	r.Samples = []dataset.Sample{
		{Dt: 5, TempCPUC: 30, PowerCPUMW: 1000},
		{Dt: 0, TempCPUC: 31, PowerCPUMW: 1000},
		{Dt: math.NaN(), TempCPUC: 32, PowerCPUMW: 1000},
		{Dt: 5, TempCPUC: 33, PowerCPUMW: 1000},
	}
	th := Thermal1{APerS: -1.0 / 100.0, BCPerJ: 1, TAmbC: 25}
	hat := Simulate1(r, th)
	require.Len(t, hat, 4)
	assert.Equal(t, 30.0, hat[0])
	assert.NotEqual(t, hat[0], hat[1]) // first step integrates
	assert.Equal(t, hat[1], hat[2])    // dt=0 holds
	assert.Equal(t, hat[2], hat[3])    // NaN dt holds
}

func TestFitThermal2_SignsAndFallbacks(t *testing.T) {
	t.Run("missing battery temps", func(t *testing.T) {
		r := dataset.Run{Name: "nobatt"}
		for i := 0; i < 50; i++ {
			r.Samples = append(r.Samples, dataset.Sample{
				Dt: 5, TempCPUC: 35, TempBattC: math.NaN(),
			})
		}
		th := FitThermal2(r)
		assert.InDelta(t, -1.0/200.0, th.ACPUPerS, 1e-12)
		assert.InDelta(t, -1.0/2000.0, th.ABattPerS, 1e-12)
		assert.Equal(t, 35.0, th.TAmbC)
	})

	t.Run("constraints hold on noisy data", func(t *testing.T) {
		r := dataset.Run{Name: "noisy"}
		for i := 0; i < 100; i++ {
			r.Samples = append(r.Samples, dataset.Sample{
				Dt:         5,
				TempCPUC:   30 + 5*math.Sin(float64(i)/3),
				TempBattC:  28 + 2*math.Sin(float64(i)/9),
				PowerCPUMW: 500 + 300*math.Cos(float64(i)/4),
			})
		}
		th := FitThermal2(r)
		assert.LessOrEqual(t, th.ACPUPerS, 0.0)
		assert.GreaterOrEqual(t, th.BCPUCPerJ, 0.0)
		assert.LessOrEqual(t, th.ABattPerS, 0.0)
		assert.GreaterOrEqual(t, th.BCouplePerS, 0.0)
	})
}

func TestSimulate2_LeakMix(t *testing.T) {
	r := dataset.Run{Name: "mix"}
	for i := 0; i < 20; i++ {
		r.Samples = append(r.Samples, dataset.Sample{Dt: 5, TempCPUC: 40, TempBattC: 30})
	}
	th := Thermal2{TAmbC: 25} // zero coefficients: temperatures stay put
	cpu, batt, leak := Simulate2(r, th, 0.7)
	assert.Equal(t, 40.0, cpu[0])
	assert.Equal(t, 30.0, batt[0])
	assert.InDelta(t, 0.7*40+0.3*30, leak[0], 1e-12)
	assert.InDelta(t, leak[0], leak[len(leak)-1], 1e-9)
}

func TestCalibrate_RecoversLinearModel(t *testing.T) {
	ds := syntheticDataset()
	res, err := Calibrate(ds, Options{RidgeAlpha: 1e-9})
	require.NoError(t, err)

	p := res.Params
	t.Logf("fit: base=%.1f screen=%.3f cpu=%.3f leak=%.1f tref=%.1f",
		p.PBaseMW, p.KScreen, p.KCPU, p.KLeakMW, p.LeakTRefC)

	assert.InDelta(t, 30.0, p.LeakTRefC, 1e-9)
	assert.InDelta(t, 1000.0, p.PBaseMW, 1.0)
	assert.InDelta(t, 0.9, p.KScreen, 1e-3)
	assert.InDelta(t, 1.1, p.KCPU, 1e-3)
	assert.InDelta(t, 50.0, p.KLeakMW, 1.0)
	assert.Equal(t, 4410.0, p.CEffMAh)

	// Training residuals should be tiny on noise-free data.
	for _, fr := range res.Runs {
		for i, resid := range fr.ResidMW {
			assert.InDelta(t, 0.0, resid, 1.5, "run %s sample %d", fr.Run.Name, i)
		}
	}
	require.Len(t, res.Thermal, 3)
	assert.Equal(t, "none", res.GPSSource)
	assert.Equal(t, "none", res.CellularSource)
}

func TestCalibrate_OffStateOffsets(t *testing.T) {
	ds := syntheticDataset()
	// Matched pair at 30C: GPS off drops total power by 120 mW.
	ds.Runs = append(ds.Runs,
		constTempRun("gps-on", "ab", 30, 80, true, true, 0),
		constTempRun("gps-off", "ab", 30, 80, false, true, -120),
	)

	res, err := Calibrate(ds, Options{
		RidgeAlpha: 1e-9,
		GPSOffPair: &ABPair{OnRun: "gps-on", OffRun: "gps-off"},
	})
	require.NoError(t, err)

	assert.InDelta(t, -120.0, res.Params.KGPSOffMW, 2.0)
	assert.Equal(t, "gps-off-gps-on", res.GPSSource)
	assert.Equal(t, 0.0, res.Params.KCellularOffMW)

	// Off-state samples get the offset, baseline samples do not.
	for _, fr := range res.Runs {
		if fr.Run.Name != "gps-off" {
			continue
		}
		for i := range fr.PredMW {
			assert.InDelta(t, res.Params.KGPSOffMW, fr.PredMW[i]-fr.P0MW[i], 1e-9)
		}
	}
}

func TestCalibrate_OffsetClampedNonPositive(t *testing.T) {
	ds := syntheticDataset()
	// Off run measures MORE power than the on run: implausible, clamp to 0.
	ds.Runs = append(ds.Runs,
		constTempRun("cell-on", "ab", 30, 80, true, true, 0),
		constTempRun("cell-off", "ab", 30, 80, true, false, +200),
	)

	res, err := Calibrate(ds, Options{
		RidgeAlpha:      1e-9,
		CellularOffPair: &ABPair{OnRun: "cell-on", OffRun: "cell-off"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Params.KCellularOffMW)
	assert.NotEqual(t, "none", res.CellularSource)
}

func TestCalibrate_MissingPairFallsBack(t *testing.T) {
	ds := syntheticDataset()
	res, err := Calibrate(ds, Options{
		RidgeAlpha: 1e-9,
		GPSOffPair: &ABPair{OnRun: "nope-on", OffRun: "nope-off"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Params.KGPSOffMW)
	assert.Equal(t, "none", res.GPSSource)
}

func TestCalibrate_Errors(t *testing.T) {
	_, err := Calibrate(dataset.Dataset{}, Options{})
	assert.ErrorIs(t, err, ErrNoCalibrationRows)

	// Rows exist but none at the baseline operating point.
	off := constTempRun("all-off", "s", 30, 40, false, false, 0)
	_, err = Calibrate(dataset.Dataset{Runs: []dataset.Run{off}}, Options{})
	assert.ErrorIs(t, err, ErrNoBaselineRows)
}

func TestCalibrate_Robust(t *testing.T) {
	ds := syntheticDataset()
	// Contaminate one run with gross spikes.
	for i := range ds.Runs[0].Samples {
		if i%10 == 0 {
			ds.Runs[0].Samples[i].PowerTotalMW += 5000
		}
	}

	res, err := Calibrate(ds, Options{Robust: true})
	require.NoError(t, err)
	assert.InDelta(t, 0.9, res.Params.KScreen, 0.05)
	assert.InDelta(t, 1.1, res.Params.KCPU, 0.05)
}

func TestPredict_MatchesTrainingFit(t *testing.T) {
	ds := syntheticDataset()
	res, err := Calibrate(ds, Options{RidgeAlpha: 1e-9})
	require.NoError(t, err)

	for _, fr := range res.Runs {
		pred := Predict(fr.Run, res.Params, Options{})
		require.Len(t, pred.PredMW, len(fr.PredMW))
		for i := range pred.PredMW {
			assert.InDelta(t, fr.PredMW[i], pred.PredMW[i], 1e-9,
				"run %s sample %d", fr.Run.Name, i)
		}
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, Thermal1State, o.Thermal)
	assert.Equal(t, 2000.0, o.RidgeAlpha)
	assert.Equal(t, 10.0, o.LeakDoublingC)
	assert.Equal(t, 0.7, o.LeakMixCPU)
	assert.Equal(t, 4410.0, o.CEffMAh)
	assert.InDelta(t, math.Ln2/10, o.LeakGamma(), 1e-15)
}

func ExampleCalibrate() {
	res, err := Calibrate(syntheticDataset(), Options{RidgeAlpha: 1e-9})
	if err != nil {
		panic(err)
	}
	p := res.Params
	fmt.Printf("screen=%.2f cpu=%.2f leak_tref=%.0fC capacity=%.0fmAh\n",
		p.KScreen, p.KCPU, p.LeakTRefC, p.CEffMAh)
}
