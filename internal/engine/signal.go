package engine

import (
	"fmt"

	"github.com/s07362022/leadlag/internal/models"
)

// LatestSignal classifies the leading instrument's most recent session. The
// threshold comes from the volatility known before that session, i.e. at the
// second-to-last bar.
func LatestSignal(l *LeadingIndex, cal Calibration) (models.MarketSignal, error) {
	last := l.Latest()
	if last < 1 {
		return models.MarketSignal{}, fmt.Errorf("%w: leading series %s needs 2 bars for a signal", ErrDataUnavailable, l.Symbol)
	}

	bar, ret, _ := l.At(last)
	if !ret.Defined {
		return models.MarketSignal{}, fmt.Errorf("%w: leading series %s has no close for %s",
			ErrDataUnavailable, l.Symbol, bar.Date.Format("2006-01-02"))
	}

	_, _, vol := l.At(last - 1)
	threshold := cal.ThresholdFor(vol)
	change := ret.Value * 100

	return models.MarketSignal{
		Symbol:          l.Symbol,
		Date:            bar.Date,
		Close:           bar.Close,
		ChangePct:       change,
		VolatilityPct:   vol.Pct,
		VolatilityReady: vol.Ready,
		Threshold:       threshold,
		Regime:          threshold.Classify(change),
	}, nil
}
