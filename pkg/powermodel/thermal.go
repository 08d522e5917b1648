package powermodel

import (
	"math"

	"github.com/battlab/socfit/pkg/dataset"
	"github.com/battlab/socfit/pkg/mathutil"
	"github.com/battlab/socfit/pkg/regress"
)

// Thermal1 is a first-order device thermal model observed through the CPU
// sensor:
//
//	dT/dt = a·(T − T_amb) + b·P_heat
//
// with a <= 0 and tau = −1/a.
type Thermal1 struct {
	APerS  float64
	BCPerJ float64
	TAmbC  float64
}

// Thermal2 adds a slow battery/body state coupled to the fast CPU state:
//
//	dT_cpu/dt  = a_cpu·(T_cpu − T_batt) + b_cpu·P_heat
//	dT_batt/dt = a_batt·(T_batt − T_amb) + b_couple·(T_cpu − T_batt)
//
// with a_cpu <= 0, b_cpu >= 0, a_batt <= 0, b_couple >= 0.
type Thermal2 struct {
	ACPUPerS    float64
	BCPUCPerJ   float64
	ABattPerS   float64
	BCouplePerS float64
	TAmbC       float64
}

// ThermalFit is the per-run row of the thermal calibration table.
type ThermalFit struct {
	RunName     string
	Model       ThermalModel
	TAmbC       float64
	ACPUPerS    float64
	BCPUCPerJ   float64
	ABattPerS   float64
	BCouplePerS float64
	TauCPUS     float64
	TauBattS    float64
	LeakMixCPU  float64
}

const thermalRidgeAlpha = 1e-3

// Weak-cooling fallbacks used when a run cannot support a finite-difference
// fit or the fit comes out with the wrong sign.
const (
	fallbackTauS     = 2000.0
	fallbackTauCPUS  = 200.0
	fallbackTauBattS = 5000.0
	fallbackAmbC     = 40.0
)

// minThermalSteps is the number of usable finite-difference steps a run must
// provide before its own fit is trusted.
const minThermalSteps = 10

func cpuHeatW(r dataset.Run) []float64 {
	p := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		v := s.PowerCPUMW
		if math.IsNaN(v) || v < 0 {
			v = 0
		}
		p[i] = v / 1000.0
	}
	return p
}

func filledTemps(r dataset.Run, get func(dataset.Sample) float64) ([]float64, bool) {
	t := r.Column(get)
	any := false
	for _, v := range t {
		if mathutil.IsFinite(v) {
			any = true
			break
		}
	}
	if !any {
		return t, false
	}
	mathutil.FillGaps(t, mathutil.Median(t))
	return t, true
}

// FitThermal1 fits the single-state model on one run via finite differences.
// Ambient is proxied by the minimum observed temperature. Runs with fewer
// than minThermalSteps usable steps fall back to weak cooling.
func FitThermal1(r dataset.Run) Thermal1 {
	t, ok := filledTemps(r, func(s dataset.Sample) float64 { return s.TempCPUC })
	if !ok {
		return Thermal1{APerS: -1.0 / fallbackTauS, BCPerJ: 0, TAmbC: fallbackAmbC}
	}

	pHeat := cpuHeatW(r)
	tAmb := mathutil.Median(t)
	if min, found := finiteMin(t); found {
		tAmb = min
	}

	var z, x1, x2 []float64
	for i := 0; i < len(t)-1; i++ {
		dt := r.Samples[i].Dt
		if !mathutil.IsFinite(dt) || dt <= 0 {
			continue
		}
		z = append(z, (t[i+1]-t[i])/dt)
		x1 = append(x1, t[i]-tAmb)
		x2 = append(x2, pHeat[i])
	}
	if len(z) < minThermalSteps {
		return Thermal1{APerS: -1.0 / fallbackTauS, BCPerJ: 0, TAmbC: tAmb}
	}

	beta, err := regress.Ridge(regress.Design(x1, x2), z, thermalRidgeAlpha)
	if err != nil {
		return Thermal1{APerS: -1.0 / fallbackTauS, BCPerJ: 0, TAmbC: tAmb}
	}

	a, b := beta[0], beta[1]
	if !mathutil.IsFinite(a) || a >= -1e-6 {
		a = -1.0 / fallbackTauS
	}
	if !mathutil.IsFinite(b) || b < 0 {
		b = 0
	}
	return Thermal1{APerS: a, BCPerJ: b, TAmbC: tAmb}
}

// Simulate1 integrates the single-state model forward from the first observed
// CPU temperature. Samples with a non-positive dt hold the previous value.
func Simulate1(r dataset.Run, th Thermal1) []float64 {
	n := len(r.Samples)
	if n == 0 {
		return nil
	}
	t0 := th.TAmbC
	if tm, ok := filledTemps(r, func(s dataset.Sample) float64 { return s.TempCPUC }); ok {
		t0 = tm[0]
	}

	pHeat := cpuHeatW(r)
	out := make([]float64, n)
	out[0] = t0
	for i := 0; i < n-1; i++ {
		dt := r.Samples[i].Dt
		if !mathutil.IsFinite(dt) || dt <= 0 {
			out[i+1] = out[i]
			continue
		}
		dTdt := th.APerS*(out[i]-th.TAmbC) + th.BCPerJ*pHeat[i]
		out[i+1] = out[i] + dTdt*dt
	}
	return out
}

// FitThermal2 fits the coupled two-state model on one run. The two equations
// are fit independently, each on its own finite-difference rows. Ambient is
// proxied by the minimum observed battery temperature. Coefficients close to
// zero are plausible (very weak coupling) and are not snapped to strong
// defaults, or hot-start runs would unrealistically cool to battery
// temperature.
func FitThermal2(r dataset.Run) Thermal2 {
	tCPU, okCPU := filledTemps(r, func(s dataset.Sample) float64 { return s.TempCPUC })
	tBatt, okBatt := filledTemps(r, func(s dataset.Sample) float64 { return s.TempBattC })

	if !okCPU || !okBatt {
		tAmb := fallbackAmbC
		if okCPU {
			tAmb = mathutil.Median(tCPU)
		}
		return Thermal2{
			ACPUPerS:  -1.0 / fallbackTauCPUS,
			ABattPerS: -1.0 / fallbackTauS,
			TAmbC:     tAmb,
		}
	}

	pHeat := cpuHeatW(r)
	tAmb := mathutil.Median(tBatt)
	if min, found := finiteMin(tBatt); found {
		tAmb = min
	}

	var z1, x1, x2 []float64
	var z2, x3, x4 []float64
	for i := 0; i < len(tCPU)-1; i++ {
		dt := r.Samples[i].Dt
		if !mathutil.IsFinite(dt) || dt <= 0 {
			continue
		}
		z1 = append(z1, (tCPU[i+1]-tCPU[i])/dt)
		x1 = append(x1, tCPU[i]-tBatt[i])
		x2 = append(x2, pHeat[i])

		z2 = append(z2, (tBatt[i+1]-tBatt[i])/dt)
		x3 = append(x3, tBatt[i]-tAmb)
		x4 = append(x4, tCPU[i]-tBatt[i])
	}
	if len(z1) < minThermalSteps {
		return Thermal2{
			ACPUPerS:  -1.0 / fallbackTauCPUS,
			ABattPerS: -1.0 / fallbackTauS,
			TAmbC:     tAmb,
		}
	}

	beta1, err1 := regress.Ridge(regress.Design(x1, x2), z1, thermalRidgeAlpha)
	beta2, err2 := regress.Ridge(regress.Design(x3, x4), z2, thermalRidgeAlpha)
	if err1 != nil || err2 != nil {
		return Thermal2{
			ACPUPerS:  -1.0 / fallbackTauCPUS,
			ABattPerS: -1.0 / fallbackTauS,
			TAmbC:     tAmb,
		}
	}

	aCPU, bCPU := beta1[0], beta1[1]
	aBatt, bCouple := beta2[0], beta2[1]
	if !mathutil.IsFinite(aCPU) || aCPU > 0 {
		aCPU = -1.0 / fallbackTauS
	}
	if !mathutil.IsFinite(bCPU) || bCPU < 0 {
		bCPU = 0
	}
	if !mathutil.IsFinite(aBatt) || aBatt > 0 {
		aBatt = -1.0 / fallbackTauBattS
	}
	if !mathutil.IsFinite(bCouple) || bCouple < 0 {
		bCouple = 0
	}
	return Thermal2{
		ACPUPerS:    aCPU,
		BCPUCPerJ:   bCPU,
		ABattPerS:   aBatt,
		BCouplePerS: bCouple,
		TAmbC:       tAmb,
	}
}

// Simulate2 integrates the two-state model and returns the simulated CPU and
// battery temperatures plus the convex leak mix w·T_cpu + (1−w)·T_batt.
func Simulate2(r dataset.Run, th Thermal2, leakMixCPU float64) (cpu, batt, leak []float64) {
	n := len(r.Samples)
	if n == 0 {
		return nil, nil, nil
	}

	w := leakMixCPU
	if !mathutil.IsFinite(w) {
		w = defaultLeakMixCPU
	}
	w = math.Min(1, math.Max(0, w))

	tCPU0, tBatt0 := th.TAmbC, th.TAmbC
	if tm, ok := filledTemps(r, func(s dataset.Sample) float64 { return s.TempCPUC }); ok {
		tCPU0 = tm[0]
	}
	if tm, ok := filledTemps(r, func(s dataset.Sample) float64 { return s.TempBattC }); ok {
		tBatt0 = tm[0]
	}

	pHeat := cpuHeatW(r)
	cpu = make([]float64, n)
	batt = make([]float64, n)
	leak = make([]float64, n)
	cpu[0], batt[0] = tCPU0, tBatt0

	for i := 0; i < n-1; i++ {
		dt := r.Samples[i].Dt
		if !mathutil.IsFinite(dt) || dt <= 0 {
			cpu[i+1], batt[i+1] = cpu[i], batt[i]
			continue
		}
		dCPU := th.ACPUPerS*(cpu[i]-batt[i]) + th.BCPUCPerJ*pHeat[i]
		dBatt := th.ABattPerS*(batt[i]-th.TAmbC) + th.BCouplePerS*(cpu[i]-batt[i])
		cpu[i+1] = cpu[i] + dCPU*dt
		batt[i+1] = batt[i] + dBatt*dt
	}
	for i := range leak {
		leak[i] = w*cpu[i] + (1-w)*batt[i]
	}
	return cpu, batt, leak
}

func finiteMin(xs []float64) (float64, bool) {
	min, found := math.Inf(1), false
	for _, v := range xs {
		if mathutil.IsFinite(v) && v < min {
			min, found = v, true
		}
	}
	return min, found
}
