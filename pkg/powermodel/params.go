package powermodel

import "math"

// ThermalModel selects how the leak-feature temperature is generated.
type ThermalModel string

const (
	Thermal1State ThermalModel = "1state"
	Thermal2State ThermalModel = "2state"
)

// Params is the calibrated electrical power model.
//
//	P0 = p_base + k_screen·P_screen + k_cpu·P_cpu + k_leak·exp(γ·(T̂_leak − T_ref))
//	P  = P0 + k_gps_off·(1 − gps_on) + k_cell_off·(1 − cell_on)
type Params struct {
	PBaseMW       float64 `json:"p_base_mW"`
	KScreen       float64 `json:"k_screen"`
	KCPU          float64 `json:"k_cpu"`
	KLeakMW       float64 `json:"k_leak_mW"`
	LeakGammaPerC float64 `json:"leak_gamma_per_C"`
	LeakTRefC     float64 `json:"leak_tref_C"`

	// Offsets applied only while the subsystem is off. Both are clamped to
	// be non-positive: switching a radio off cannot increase power.
	KGPSOffMW      float64 `json:"k_gps_off_mW"`
	KCellularOffMW float64 `json:"k_cellular_off_mW"`

	// Effective capacity carried alongside the electrical fit so a single
	// params file drives the charge integrator too.
	CEffMAh float64 `json:"c_eff_mAh"`
}

// ABPair names the two runs of an on/off experiment pair. The offset is the
// mean base-model residual of the off run minus that of the on run.
type ABPair struct {
	OnRun  string
	OffRun string
}

const (
	defaultRidgeAlpha    = 2000.0
	defaultLeakDoublingC = 10.0
	defaultLeakMixCPU    = 0.7
	defaultCEffMAh       = 4410.0
)

// Options configures Calibrate. The zero value selects the single-state
// thermal model with ridge defaults.
type Options struct {
	Thermal ThermalModel

	// RidgeAlpha is the base-fit regularization strength.
	RidgeAlpha float64

	// Robust switches the base fit from ridge to Huber IRLS.
	Robust bool

	// LeakDoublingC sets γ = ln2 / LeakDoublingC: leakage doubles every
	// this many degrees.
	LeakDoublingC float64

	// LeakMixCPU blends simulated CPU and battery temperature for the leak
	// feature under the two-state model.
	LeakMixCPU float64

	// GPSOffPair and CellularOffPair name the A/B experiment runs. A nil
	// pair leaves the corresponding offset at zero.
	GPSOffPair      *ABPair
	CellularOffPair *ABPair

	CEffMAh float64
}

func (o Options) withDefaults() Options {
	if o.Thermal != Thermal2State {
		o.Thermal = Thermal1State
	}
	if o.RidgeAlpha <= 0 {
		o.RidgeAlpha = defaultRidgeAlpha
	}
	if o.LeakDoublingC <= 0 {
		o.LeakDoublingC = defaultLeakDoublingC
	}
	if o.LeakMixCPU <= 0 || o.LeakMixCPU > 1 {
		o.LeakMixCPU = defaultLeakMixCPU
	}
	if o.CEffMAh <= 0 {
		o.CEffMAh = defaultCEffMAh
	}
	return o
}

// LeakGamma returns γ for the configured doubling temperature.
func (o Options) LeakGamma() float64 {
	d := o.LeakDoublingC
	if d <= 0 {
		d = defaultLeakDoublingC
	}
	return math.Ln2 / d
}
