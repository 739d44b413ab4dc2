package models

import "time"

// Pick is one recommended instrument with the mean return that earned it.
type Pick struct {
	Instrument    string  `json:"instrument"`
	MeanReturnPct float64 `json:"mean_return_pct"`
}

// RecommendationSet is an ordered, deduplicated list of instruments to buy the
// day after the leading instrument enters Regime.
type RecommendationSet struct {
	Regime Regime `json:"regime"`
	Source string `json:"source"`
	Picks  []Pick `json:"picks"`
}

// Names returns the instrument names in order.
func (s RecommendationSet) Names() []string {
	names := make([]string, len(s.Picks))
	for i, p := range s.Picks {
		names[i] = p.Instrument
	}
	return names
}

// Contains reports whether instrument is in the set.
func (s RecommendationSet) Contains(instrument string) bool {
	for _, p := range s.Picks {
		if p.Instrument == instrument {
			return true
		}
	}
	return false
}

// RecommendationPair groups the crash-buy and surge-buy sets of one source.
type RecommendationPair struct {
	Crash RecommendationSet `json:"crash"`
	Surge RecommendationSet `json:"surge"`
}

// ForRegime returns the set for r. Flat has no buy list and yields an empty set.
func (p RecommendationPair) ForRegime(r Regime) RecommendationSet {
	switch r {
	case RegimeCrash:
		return p.Crash
	case RegimeSurge:
		return p.Surge
	default:
		return RecommendationSet{Regime: r}
	}
}

// RankedInstrument is one row of a score-ranked universe.
type RankedInstrument struct {
	Rank          int     `json:"rank"`
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Best          Regime  `json:"best"`
	WinRatePct    float64 `json:"win_rate_pct"`
	MeanReturnPct float64 `json:"mean_return_pct"`
	Score         float64 `json:"score"`
}

// RunRecommendation is the synthesizer output for one backtest run.
type RunRecommendation struct {
	Run    string             `json:"run"`
	Ranked []RankedInstrument `json:"ranked,omitempty"`
	RecommendationPair
}

// Composite combines short-horizon and long-horizon recommendations.
type Composite struct {
	Short RecommendationPair `json:"short"`
	Long  RecommendationPair `json:"long"`
}

// FlatAction is the advice for a flat leading day.
type FlatAction string

const (
	FlatBuyETF FlatAction = "buy_etf"
	FlatNoBuy  FlatAction = "no_buy"
	FlatWait   FlatAction = "wait"
)

// FlatAdvice is the flat-regime ETF recommendation.
type FlatAdvice struct {
	Action        FlatAction `json:"action"`
	Reason        string     `json:"reason"`
	SampleCount   int        `json:"sample_count"`
	WinRatePct    float64    `json:"win_rate_pct"`
	MeanReturnPct float64    `json:"mean_return_pct"`
}

// MarketSignal classifies the leading instrument's latest session.
type MarketSignal struct {
	Symbol          string        `json:"symbol"`
	Date            time.Time     `json:"date"`
	Close           float64       `json:"close"`
	ChangePct       float64       `json:"change_pct"`
	VolatilityPct   float64       `json:"volatility_pct"`
	VolatilityReady bool          `json:"volatility_ready"`
	Threshold       ThresholdPair `json:"threshold"`
	Regime          Regime        `json:"regime"`
}

// Report is the full output of one advisory cycle.
type Report struct {
	ID              string                        `json:"id"`
	GeneratedAt     time.Time                     `json:"generated_at"`
	Signal          *MarketSignal                 `json:"signal,omitempty"`
	Runs            []BacktestRun                 `json:"runs"`
	Recommendations []RunRecommendation           `json:"recommendations"`
	Intersections   map[string]RecommendationPair `json:"intersections,omitempty"`
	Composite       Composite                     `json:"composite"`
	Flat            FlatAdvice                    `json:"flat"`
	Failures        []string                      `json:"failures,omitempty"`
}

// Run returns the backtest run with the given name.
func (r *Report) Run(name string) (BacktestRun, bool) {
	for _, run := range r.Runs {
		if run.Name == name {
			return run, true
		}
	}
	return BacktestRun{}, false
}

// Recommendation returns the synthesizer output of the named run.
func (r *Report) Recommendation(name string) (RunRecommendation, bool) {
	for _, rec := range r.Recommendations {
		if rec.Run == name {
			return rec, true
		}
	}
	return RunRecommendation{}, false
}
