// Package recommend turns backtest runs into buy lists: per-run decisions,
// cross-run intersections, score ranking, the short/long composite block, and
// flat-day ETF advice. It never mutates the runs it reads.
package recommend

import (
	"fmt"

	"github.com/s07362022/leadlag/internal/engine"
)

// Policy holds the recommendation filters, score weights and flat-day thresholds.
type Policy struct {
	MinSamples      int     `mapstructure:"min_samples"`
	ShortMinReturn  float64 `mapstructure:"short_min_return"`
	LongMinReturn   float64 `mapstructure:"long_min_return"`
	LongHorizonDays int     `mapstructure:"long_horizon_days"`
	TieEpsilon      float64 `mapstructure:"tie_epsilon"`
	WinWeight       float64 `mapstructure:"win_weight"`
	ReturnWeight    float64 `mapstructure:"return_weight"`
	ReturnScale     float64 `mapstructure:"return_scale"`
	TopN            int     `mapstructure:"top_n"`
	FlatMinSamples  int     `mapstructure:"flat_min_samples"`
	FlatMinReturn   float64 `mapstructure:"flat_min_return"`
	FlatMinWinRate  float64 `mapstructure:"flat_min_win_rate"`
}

// DefaultPolicy returns the policy defaults.
func DefaultPolicy() Policy {
	return Policy{
		MinSamples:      3,
		ShortMinReturn:  2.0,
		LongMinReturn:   4.0,
		LongHorizonDays: 10,
		TieEpsilon:      0.5,
		WinWeight:       0.4,
		ReturnWeight:    0.6,
		ReturnScale:     10,
		TopN:            20,
		FlatMinSamples:  5,
		FlatMinReturn:   0.1,
		FlatMinWinRate:  50,
	}
}

// Validate checks that all policy values are valid.
func (p Policy) Validate() error {
	if p.MinSamples < 1 {
		return fmt.Errorf("%w: policy.min_samples must be at least 1", engine.ErrInvalidConfiguration)
	}
	if p.LongHorizonDays < 1 {
		return fmt.Errorf("%w: policy.long_horizon_days must be at least 1", engine.ErrInvalidConfiguration)
	}
	if p.TieEpsilon < 0 {
		return fmt.Errorf("%w: policy.tie_epsilon must not be negative", engine.ErrInvalidConfiguration)
	}
	if p.TopN < 1 {
		return fmt.Errorf("%w: policy.top_n must be at least 1", engine.ErrInvalidConfiguration)
	}
	if p.FlatMinSamples < 1 {
		return fmt.Errorf("%w: policy.flat_min_samples must be at least 1", engine.ErrInvalidConfiguration)
	}
	return nil
}

// FloorFor returns the minimum mean return a regime must reach for a run held
// over horizon days. Long horizons use the higher floor.
func (p Policy) FloorFor(horizon int) float64 {
	if horizon >= p.LongHorizonDays {
		return p.LongMinReturn
	}
	return p.ShortMinReturn
}
