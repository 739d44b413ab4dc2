package engine

import (
	"github.com/s07362022/leadlag/internal/logger"
	"github.com/s07362022/leadlag/internal/models"
)

// SimulationSummary counts what happened to each candidate entry day.
type SimulationSummary struct {
	Candidates    int
	Emitted       int
	UnknownSignal int
	MissingFields int
}

// Simulate labels every usable aligned day of lagged against the leading
// instrument's prior-day move and simulates a next-open entry held over the
// alignment's horizon.
//
// A day whose prior leading return is undefined produces no outcome. A day
// whose holding window has a bar missing Open/High/Close is excluded.
func Simulate(instrument string, leading *LeadingIndex, lagged []models.PriceBar, align Alignment, cal Calibration) ([]models.TradeOutcome, SimulationSummary) {
	var (
		out     []models.TradeOutcome
		summary SimulationSummary
	)

	lagIdx := align.Index[len(align.Index)-1]
	first, last := align.EntryRange()
	for i := first; i <= last; i++ {
		summary.Candidates++

		prev := align.Dates[i-1]
		ret, ok := leading.ReturnAt(prev)
		if !ok {
			summary.UnknownSignal++
			continue
		}

		threshold := cal.ThresholdFor(leading.VolatilityAt(prev))
		retPct := ret * 100

		entry := lagged[lagIdx[i]]
		from, to := align.Window(i)
		complete := true
		maxHigh := 0.0
		for j := from; j <= to; j++ {
			bar := lagged[lagIdx[j]]
			if !bar.Valid() {
				complete = false
				break
			}
			if bar.High > maxHigh {
				maxHigh = bar.High
			}
		}
		if !complete || !entry.Valid() {
			summary.MissingFields++
			logger.Debug("Excluding %s entry %s: missing price fields in holding window",
				instrument, align.Dates[i].Format("2006-01-02"))
			continue
		}

		exit := lagged[lagIdx[to]]
		out = append(out, models.TradeOutcome{
			Instrument:       instrument,
			EntryDate:        align.Dates[i],
			EntryPrice:       entry.Open,
			Regime:           threshold.Classify(retPct),
			HorizonDays:      align.Horizon,
			Won:              maxHigh > entry.Open,
			ReturnPct:        (exit.Close/entry.Open - 1) * 100,
			LeadingReturnPct: retPct,
			Threshold:        threshold,
		})
		summary.Emitted++
	}

	return out, summary
}
