package types

import "fmt"

// Milliwatt is a float64 wrapper representing power in milliwatts.
type Milliwatt float64

// Humanized returns a human-readable string with automatic unit (mW, W, kW).
func (p Milliwatt) Humanized() string {
	v := float64(p)
	av := v
	if av < 0 {
		av = -av
	}
	switch {
	case av >= 1e6:
		return fmt.Sprintf("%.2f kW", v/1e6)
	case av >= 1e3:
		return fmt.Sprintf("%.2f W", v/1e3)
	default:
		return fmt.Sprintf("%.1f mW", v)
	}
}

// W returns the power in watts.
func (p Milliwatt) W() float64 { return float64(p) / 1e3 }

// MilliampHour is a float64 wrapper representing charge in mAh.
type MilliampHour float64

// Humanized returns a human-readable string with automatic unit (mAh, Ah).
func (c MilliampHour) Humanized() string {
	v := float64(c)
	av := v
	if av < 0 {
		av = -av
	}
	if av >= 1e3 {
		return fmt.Sprintf("%.2f Ah", v/1e3)
	}
	return fmt.Sprintf("%.1f mAh", v)
}

// Ah returns the charge in ampere-hours.
func (c MilliampHour) Ah() float64 { return float64(c) / 1e3 }

// Coulombs returns the charge in coulombs (ampere-seconds).
func (c MilliampHour) Coulombs() float64 { return float64(c) * 3.6 }
