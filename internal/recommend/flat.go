package recommend

import (
	"fmt"

	"github.com/s07362022/leadlag/internal/models"
	"gonum.org/v1/gonum/stat"
)

// AdviseFlat decides whether to buy the configured ETFs after a flat leading
// session, from their flat-regime statistics in run. The sample gate uses the
// first ETF found; the return and win-rate gates use the ETF averages.
func AdviseFlat(run models.BacktestRun, etfs []string, p Policy) models.FlatAdvice {
	var returns, winRates []float64
	samples := -1
	for _, sym := range etfs {
		s, ok := run.Find(sym)
		if !ok {
			continue
		}
		if samples < 0 {
			samples = s.Flat.SampleCount
		}
		returns = append(returns, s.Flat.MeanReturnPct)
		winRates = append(winRates, s.Flat.WinRatePct)
	}

	if len(returns) == 0 {
		return models.FlatAdvice{Action: models.FlatWait, Reason: "no flat-day history for the ETFs"}
	}

	advice := models.FlatAdvice{
		SampleCount:   samples,
		MeanReturnPct: stat.Mean(returns, nil),
		WinRatePct:    stat.Mean(winRates, nil),
	}

	switch {
	case samples < p.FlatMinSamples:
		advice.Action = models.FlatWait
		advice.Reason = fmt.Sprintf("only %d flat days, need %d", samples, p.FlatMinSamples)
	case advice.MeanReturnPct > p.FlatMinReturn && advice.WinRatePct >= p.FlatMinWinRate:
		advice.Action = models.FlatBuyETF
		advice.Reason = fmt.Sprintf("%d flat days, win rate %.0f%%, mean return %+.2f%%",
			samples, advice.WinRatePct, advice.MeanReturnPct)
	default:
		advice.Action = models.FlatNoBuy
		advice.Reason = fmt.Sprintf("%d flat days, win rate %.0f%%, mean return %+.2f%%",
			samples, advice.WinRatePct, advice.MeanReturnPct)
	}
	return advice
}
