package powermodel

import "errors"

var (
	// ErrNoCalibrationRows indicates no run contributed usable rows (positive
	// dt and a measured total power).
	ErrNoCalibrationRows = errors.New("powermodel: no calibration rows")

	// ErrNoBaselineRows indicates the base operating point (GPS on, cellular
	// on) is absent from the calibration data.
	ErrNoBaselineRows = errors.New("powermodel: no baseline rows with gps and cellular on")
)
