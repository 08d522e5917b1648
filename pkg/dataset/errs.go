package dataset

import "errors"

var (
	// ErrEmptyCSV indicates the file had no header or no data rows.
	ErrEmptyCSV = errors.New("dataset: empty csv")

	// ErrMissingColumn indicates a required column is absent from the header.
	ErrMissingColumn = errors.New("dataset: missing column")

	// ErrNoRuns indicates the input parsed but grouped into zero runs.
	ErrNoRuns = errors.New("dataset: no runs")
)
