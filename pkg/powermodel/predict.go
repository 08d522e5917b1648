package powermodel

import (
	"math"

	"github.com/battlab/socfit/pkg/dataset"
)

// Prediction is the per-sample model output for one run.
type Prediction struct {
	TempLeakHatC []float64
	PredMW       []float64
}

// Predict applies a calibrated parameter set to a run. The thermal model is
// refit on the run itself: it only consumes observed temperatures and the
// CPU power proxy, never the measured total power, so this is legitimate on
// held-out data.
func Predict(r dataset.Run, p Params, opts Options) Prediction {
	opts = opts.withDefaults()

	var leak []float64
	switch opts.Thermal {
	case Thermal2State:
		th := FitThermal2(r)
		_, _, leak = Simulate2(r, th, opts.LeakMixCPU)
	default:
		th := FitThermal1(r)
		leak = Simulate1(r, th)
	}

	pred := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		feat := math.Exp(p.LeakGammaPerC * (leak[i] - p.LeakTRefC))
		pred[i] = p.PBaseMW +
			p.KScreen*orZero(s.PowerScreenMW) +
			p.KCPU*orZero(s.PowerCPUMW) +
			p.KLeakMW*feat +
			p.KGPSOffMW*offFrac(s.GPSOn) +
			p.KCellularOffMW*offFrac(s.CellularOn)
	}
	return Prediction{TempLeakHatC: leak, PredMW: pred}
}
