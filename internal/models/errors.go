package models

import "errors"

// Soft failure categories. Stages wrap these with context and attach the
// message to their output instead of aborting the pipeline.
var (
	// ErrInsufficientData covers too few expirations, missing OHLC data and
	// empty chains at the required strike.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrValidation marks a trade or position that failed feasibility checks.
	ErrValidation = errors.New("validation failed")
	// ErrConfiguration marks a malformed setting that was replaced by its default.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrComputation marks a numeric edge case that degraded to a neutral value.
	ErrComputation = errors.New("computation degraded")
)
