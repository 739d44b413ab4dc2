// Package engine implements the volatility-adaptive event backtest: rolling
// volatility, dynamic thresholds, calendar alignment, trade simulation, and
// per-regime aggregation.
package engine

import "errors"

var (
	// ErrDataUnavailable marks an instrument whose series is empty or too short.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrInsufficientAlignment marks a leading/lagged intersection too short
	// for one full holding window.
	ErrInsufficientAlignment = errors.New("insufficient alignment")
	// ErrInvalidConfiguration marks calibration constants that violate their
	// required ordering. It is a caller error.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)
