package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/s07362022/leadlag/internal/models"
	"gonum.org/v1/gonum/stat"
)

// ReturnPoint is the fractional close-to-close return of one bar. The first
// bar of a series, and any bar next to a missing close, has no return.
type ReturnPoint struct {
	Date    time.Time
	Value   float64
	Defined bool
}

// VolatilityEstimate is the rolling sample standard deviation of the trailing
// returns, in percent. Ready is false until a full window of defined returns
// is available.
type VolatilityEstimate struct {
	Date  time.Time
	Pct   float64
	Ready bool
}

// Returns derives the return series of consecutive closes.
func Returns(bars []models.PriceBar) []ReturnPoint {
	out := make([]ReturnPoint, len(bars))
	for i, b := range bars {
		out[i].Date = b.Date
		if i == 0 {
			continue
		}
		prev := bars[i-1].Close
		if !positive(prev) || !positive(b.Close) {
			continue
		}
		out[i].Value = b.Close/prev - 1
		out[i].Defined = true
	}
	return out
}

// RollingVolatility computes the rolling standard deviation over window
// returns, scaled to percent. A window containing an undefined return is not
// ready; no partial-window approximation is made.
func RollingVolatility(returns []ReturnPoint, window int) ([]VolatilityEstimate, error) {
	if window < 2 {
		return nil, fmt.Errorf("%w: volatility window must be at least 2, got %d", ErrInvalidConfiguration, window)
	}

	out := make([]VolatilityEstimate, len(returns))
	buf := make([]float64, window)
	for i, r := range returns {
		out[i].Date = r.Date
		if i+1 < window {
			continue
		}

		ready := true
		for j := 0; j < window; j++ {
			p := returns[i-window+1+j]
			if !p.Defined {
				ready = false
				break
			}
			buf[j] = p.Value
		}
		if !ready {
			continue
		}

		out[i].Pct = stat.StdDev(buf, nil) * 100
		out[i].Ready = true
	}
	return out, nil
}

// LeadingIndex gives date-keyed access to the leading instrument's returns
// and volatility, computed over its full history.
type LeadingIndex struct {
	Symbol  string
	bars    []models.PriceBar
	returns []ReturnPoint
	vols    []VolatilityEstimate
	byDate  map[time.Time]int
}

// NewLeadingIndex precomputes returns and rolling volatility for series.
func NewLeadingIndex(series models.Series, window int) (*LeadingIndex, error) {
	rets := Returns(series.Bars)
	vols, err := RollingVolatility(rets, window)
	if err != nil {
		return nil, err
	}

	byDate := make(map[time.Time]int, len(series.Bars))
	for i, b := range series.Bars {
		byDate[b.Date] = i
	}

	return &LeadingIndex{
		Symbol:  series.Symbol,
		bars:    series.Bars,
		returns: rets,
		vols:    vols,
		byDate:  byDate,
	}, nil
}

// Bars returns the underlying leading bars.
func (l *LeadingIndex) Bars() []models.PriceBar {
	return l.bars
}

// ReturnAt returns the return of the leading bar dated d.
func (l *LeadingIndex) ReturnAt(d time.Time) (float64, bool) {
	i, ok := l.byDate[d]
	if !ok || !l.returns[i].Defined {
		return 0, false
	}
	return l.returns[i].Value, true
}

// VolatilityAt returns the volatility estimate of the leading bar dated d.
// Unknown dates yield a not-ready estimate.
func (l *LeadingIndex) VolatilityAt(d time.Time) VolatilityEstimate {
	i, ok := l.byDate[d]
	if !ok {
		return VolatilityEstimate{Date: d}
	}
	return l.vols[i]
}

// Latest returns the index of the last bar, or -1 for an empty series.
func (l *LeadingIndex) Latest() int {
	return len(l.bars) - 1
}

// At returns the bar, return and volatility at position i.
func (l *LeadingIndex) At(i int) (models.PriceBar, ReturnPoint, VolatilityEstimate) {
	return l.bars[i], l.returns[i], l.vols[i]
}

func positive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
