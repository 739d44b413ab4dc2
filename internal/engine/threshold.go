package engine

import (
	"fmt"
	"math"

	"github.com/s07362022/leadlag/internal/models"
)

// FallbackThreshold is used whenever volatility is undefined or non-positive.
var FallbackThreshold = models.ThresholdPair{Crash: -1.0, Surge: 1.0}

// Calibration maps volatility onto a threshold magnitude. Calm markets
// (vol <= VolLow) use BaseLow; turbulent markets (vol >= VolHigh) use BaseHigh;
// values in between are linearly interpolated.
type Calibration struct {
	BaseLow  float64 `mapstructure:"base_low"`
	BaseHigh float64 `mapstructure:"base_high"`
	VolLow   float64 `mapstructure:"vol_low"`
	VolHigh  float64 `mapstructure:"vol_high"`
}

// DefaultCalibration returns the 0.7%/1.8% band over 0.6%..1.4% volatility.
func DefaultCalibration() Calibration {
	return Calibration{
		BaseLow:  0.7,
		BaseHigh: 1.8,
		VolLow:   0.6,
		VolHigh:  1.4,
	}
}

// Validate enforces BaseLow < BaseHigh and VolLow < VolHigh.
func (c Calibration) Validate() error {
	if !(c.BaseLow < c.BaseHigh) {
		return fmt.Errorf("%w: base_low (%v) must be below base_high (%v)", ErrInvalidConfiguration, c.BaseLow, c.BaseHigh)
	}
	if !(c.VolLow < c.VolHigh) {
		return fmt.Errorf("%w: vol_low (%v) must be below vol_high (%v)", ErrInvalidConfiguration, c.VolLow, c.VolHigh)
	}
	return nil
}

// Threshold returns the (crash, surge) pair for a volatility percent value.
func (c Calibration) Threshold(volPct float64, ready bool) models.ThresholdPair {
	if !ready || math.IsNaN(volPct) || volPct <= 0 {
		return FallbackThreshold
	}

	var t float64
	switch {
	case volPct <= c.VolLow:
		t = c.BaseLow
	case volPct >= c.VolHigh:
		t = c.BaseHigh
	default:
		t = c.BaseLow + (c.BaseHigh-c.BaseLow)*(volPct-c.VolLow)/(c.VolHigh-c.VolLow)
	}
	return models.ThresholdPair{Crash: -t, Surge: t}
}

// ThresholdFor is Threshold applied to an estimate.
func (c Calibration) ThresholdFor(v VolatilityEstimate) models.ThresholdPair {
	return c.Threshold(v.Pct, v.Ready)
}
