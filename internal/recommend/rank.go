package recommend

import (
	"sort"

	"github.com/s07362022/leadlag/internal/models"
)

// Mode selects how a run's buy lists are extracted.
type Mode string

const (
	// ModeDecide decides every instrument of the run.
	ModeDecide Mode = "decide"
	// ModeRanked ranks the run by score and decides only the top N.
	ModeRanked Mode = "ranked"
)

// Score weighs a win rate and a mean return into one ranking value.
func (p Policy) Score(winRatePct, meanReturnPct float64) float64 {
	return winRatePct*p.WinWeight + meanReturnPct*p.ReturnScale*p.ReturnWeight
}

// Rank scores every instrument on its best regime and returns them by
// descending score. Only regimes with at least MinSamples samples are
// eligible; an instrument with no eligible regime is left out.
func Rank(run models.BacktestRun, p Policy) []models.RankedInstrument {
	var ranked []models.RankedInstrument
	for _, s := range run.Instruments {
		crash := s.Crash.SampleCount >= p.MinSamples
		surge := s.Surge.SampleCount >= p.MinSamples

		var best models.Regime
		switch {
		case crash && surge:
			best = s.Preferred()
		case crash:
			best = models.RegimeCrash
		case surge:
			best = models.RegimeSurge
		default:
			continue
		}

		st := s.Stats(best)
		ranked = append(ranked, models.RankedInstrument{
			Symbol:        s.Symbol,
			Name:          s.Name,
			Best:          best,
			WinRatePct:    st.WinRatePct,
			MeanReturnPct: st.MeanReturnPct,
			Score:         p.Score(st.WinRatePct, st.MeanReturnPct),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Symbol < ranked[j].Symbol
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// Top returns at most n leading entries of ranked.
func Top(ranked []models.RankedInstrument, n int) []models.RankedInstrument {
	if len(ranked) > n {
		return ranked[:n]
	}
	return ranked
}

// Synthesize extracts the run's crash and surge buy lists. In ranked mode the
// run is truncated to the top N by score before the return floor is applied,
// and the lists follow rank order.
func Synthesize(run models.BacktestRun, mode Mode, p Policy) models.RunRecommendation {
	rec := models.RunRecommendation{Run: run.Name}

	if mode != ModeRanked {
		rec.RecommendationPair = Collect(run.Name, DecideRun(run, p))
		return rec
	}

	rec.Ranked = Top(Rank(run, p), p.TopN)
	var decisions []Decision
	for _, r := range rec.Ranked {
		s, ok := run.Find(r.Symbol)
		if !ok {
			continue
		}
		if d, ok := Decide(s, run.HorizonDays, p); ok {
			decisions = append(decisions, d)
		}
	}
	rec.RecommendationPair = Collect(run.Name, decisions)
	return rec
}
