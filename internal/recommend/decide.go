package recommend

import (
	"math"

	"github.com/s07362022/leadlag/internal/models"
)

// Decision is the outcome of the sample and return filters for one
// instrument in one run.
type Decision struct {
	Symbol    string
	Name      string
	CrashOK   bool
	SurgeOK   bool
	Tie       bool
	Preferred models.Regime
	Crash     models.RegimeStats
	Surge     models.RegimeStats
}

// Recommends reports whether the decision puts the instrument on r's buy list.
func (d Decision) Recommends(r models.Regime) bool {
	switch r {
	case models.RegimeCrash:
		return d.Tie || (d.CrashOK && d.Preferred == models.RegimeCrash)
	case models.RegimeSurge:
		return d.Tie || (d.SurgeOK && d.Preferred == models.RegimeSurge)
	default:
		return false
	}
}

func (d Decision) label() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Symbol
}

func (d Decision) pick(r models.Regime) models.Pick {
	mean := d.Surge.MeanReturnPct
	if r == models.RegimeCrash {
		mean = d.Crash.MeanReturnPct
	}
	return models.Pick{Instrument: d.label(), MeanReturnPct: mean}
}

// Decide applies the policy to one instrument's crash and surge statistics.
// A regime qualifies with at least MinSamples samples and a mean return at or
// above the floor for horizon. When both qualify and their means differ by
// less than TieEpsilon the instrument is recommended under both; otherwise
// only under the qualifying regime with the higher mean. The second result is
// false when neither regime qualifies.
func Decide(s models.InstrumentStats, horizon int, p Policy) (Decision, bool) {
	floor := p.FloorFor(horizon)
	d := Decision{
		Symbol:  s.Symbol,
		Name:    s.Name,
		Crash:   s.Crash,
		Surge:   s.Surge,
		CrashOK: qualifies(s.Crash, p.MinSamples, floor),
		SurgeOK: qualifies(s.Surge, p.MinSamples, floor),
	}

	switch {
	case d.CrashOK && d.SurgeOK:
		d.Preferred = s.Preferred()
		d.Tie = math.Abs(s.Crash.MeanReturnPct-s.Surge.MeanReturnPct) < p.TieEpsilon
	case d.CrashOK:
		d.Preferred = models.RegimeCrash
	case d.SurgeOK:
		d.Preferred = models.RegimeSurge
	default:
		return d, false
	}
	return d, true
}

func qualifies(s models.RegimeStats, minSamples int, floor float64) bool {
	return s.SampleCount >= minSamples && s.MeanReturnPct >= floor
}

// Collect builds the crash and surge buy lists from decisions in order.
func Collect(source string, decisions []Decision) models.RecommendationPair {
	pair := models.RecommendationPair{
		Crash: models.RecommendationSet{Regime: models.RegimeCrash, Source: source},
		Surge: models.RecommendationSet{Regime: models.RegimeSurge, Source: source},
	}
	for _, d := range decisions {
		if d.Recommends(models.RegimeCrash) {
			pair.Crash.Picks = append(pair.Crash.Picks, d.pick(models.RegimeCrash))
		}
		if d.Recommends(models.RegimeSurge) {
			pair.Surge.Picks = append(pair.Surge.Picks, d.pick(models.RegimeSurge))
		}
	}
	return pair
}

// DecideRun decides every instrument of run in run order.
func DecideRun(run models.BacktestRun, p Policy) []Decision {
	var out []Decision
	for _, s := range run.Instruments {
		if d, ok := Decide(s, run.HorizonDays, p); ok {
			out = append(out, d)
		}
	}
	return out
}
