package regress

import "errors"

var (
	// ErrTooFewRows indicates the design matrix has fewer rows than columns.
	ErrTooFewRows = errors.New("regress: too few rows")

	// ErrDimMismatch indicates the design matrix and target lengths differ.
	ErrDimMismatch = errors.New("regress: dimension mismatch")

	// ErrSingular indicates the normal equations could not be solved.
	ErrSingular = errors.New("regress: singular system")
)
