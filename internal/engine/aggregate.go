package engine

import (
	"github.com/s07362022/leadlag/internal/models"
	"gonum.org/v1/gonum/stat"
)

// Reduce computes count, win rate and mean return over outcomes already
// restricted to one instrument and regime. An empty set yields zeros.
func Reduce(instrument string, regime models.Regime, outcomes []models.TradeOutcome) models.RegimeStats {
	s := models.RegimeStats{Instrument: instrument, Regime: regime}
	if len(outcomes) == 0 {
		return s
	}

	returns := make([]float64, len(outcomes))
	for i, o := range outcomes {
		if o.Won {
			s.Wins++
		}
		returns[i] = o.ReturnPct
	}

	s.SampleCount = len(outcomes)
	s.WinRatePct = 100 * float64(s.Wins) / float64(s.SampleCount)
	s.MeanReturnPct = stat.Mean(returns, nil)
	return s
}

// Aggregate partitions one instrument's outcomes by regime and reduces each
// partition.
func Aggregate(instrument models.Instrument, outcomes []models.TradeOutcome) models.InstrumentStats {
	parts := make(map[models.Regime][]models.TradeOutcome, len(models.Regimes))
	for _, o := range outcomes {
		parts[o.Regime] = append(parts[o.Regime], o)
	}

	label := instrument.Label()
	return models.InstrumentStats{
		Symbol: instrument.Symbol,
		Name:   instrument.Name,
		Crash:  Reduce(label, models.RegimeCrash, parts[models.RegimeCrash]),
		Surge:  Reduce(label, models.RegimeSurge, parts[models.RegimeSurge]),
		Flat:   Reduce(label, models.RegimeFlat, parts[models.RegimeFlat]),
	}
}
