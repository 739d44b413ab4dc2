package models

import (
	"fmt"
	"time"
)

// Regime classifies a leading-instrument day relative to its threshold.
type Regime string

const (
	RegimeCrash Regime = "crash"
	RegimeSurge Regime = "surge"
	RegimeFlat  Regime = "flat"
)

// Regimes lists every regime in report order.
var Regimes = []Regime{RegimeCrash, RegimeSurge, RegimeFlat}

// ThresholdPair is the (crash, surge) boundary in percent. Crash <= 0 <= Surge.
type ThresholdPair struct {
	Crash float64 `json:"crash"`
	Surge float64 `json:"surge"`
}

// Classify maps a percent return onto a regime. Values exactly on a boundary
// are flat.
func (t ThresholdPair) Classify(returnPct float64) Regime {
	switch {
	case returnPct < t.Crash:
		return RegimeCrash
	case returnPct > t.Surge:
		return RegimeSurge
	default:
		return RegimeFlat
	}
}

// TradeOutcome is one simulated next-open entry held for HorizonDays.
type TradeOutcome struct {
	Instrument       string        `json:"instrument"`
	EntryDate        time.Time     `json:"entry_date"`
	EntryPrice       float64       `json:"entry_price"`
	Regime           Regime        `json:"regime"`
	HorizonDays      int           `json:"horizon_days"`
	Won              bool          `json:"won"`
	ReturnPct        float64       `json:"return_pct"`
	LeadingReturnPct float64       `json:"leading_return_pct"`
	Threshold        ThresholdPair `json:"threshold"`
}

// RegimeStats summarizes the outcomes of one instrument in one regime.
type RegimeStats struct {
	Instrument    string  `json:"instrument"`
	Regime        Regime  `json:"regime"`
	SampleCount   int     `json:"sample_count"`
	Wins          int     `json:"wins"`
	WinRatePct    float64 `json:"win_rate_pct"`
	MeanReturnPct float64 `json:"mean_return_pct"`
}

// InstrumentStats holds the per-regime statistics of one instrument in one run.
type InstrumentStats struct {
	Symbol string      `json:"symbol"`
	Name   string      `json:"name"`
	Crash  RegimeStats `json:"crash"`
	Surge  RegimeStats `json:"surge"`
	Flat   RegimeStats `json:"flat"`
}

// Label returns the display name, or the symbol when no name is set.
func (s InstrumentStats) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Symbol
}

// Stats returns the statistics for the given regime.
func (s InstrumentStats) Stats(r Regime) RegimeStats {
	switch r {
	case RegimeCrash:
		return s.Crash
	case RegimeSurge:
		return s.Surge
	default:
		return s.Flat
	}
}

// Preferred returns the regime with the higher mean return between crash and
// surge. Equal means prefer surge.
func (s InstrumentStats) Preferred() Regime {
	if s.Crash.MeanReturnPct > s.Surge.MeanReturnPct {
		return RegimeCrash
	}
	return RegimeSurge
}

// SkippedInstrument records why an instrument produced no statistics.
type SkippedInstrument struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// BacktestRun is one independent (lookback, horizon) evaluation of a universe.
type BacktestRun struct {
	Name         string              `json:"name"`
	Universe     string              `json:"universe"`
	LookbackDays int                 `json:"lookback_days"`
	HorizonDays  int                 `json:"horizon_days"`
	Start        time.Time           `json:"start"`
	End          time.Time           `json:"end"`
	Instruments  []InstrumentStats   `json:"instruments"`
	Skipped      []SkippedInstrument `json:"skipped,omitempty"`
}

// Find returns the statistics for symbol.
func (r BacktestRun) Find(symbol string) (InstrumentStats, bool) {
	for _, s := range r.Instruments {
		if s.Symbol == symbol {
			return s, true
		}
	}
	return InstrumentStats{}, false
}

// String identifies the run in logs.
func (r BacktestRun) String() string {
	return fmt.Sprintf("%s(lookback=%dd, horizon=%dd)", r.Name, r.LookbackDays, r.HorizonDays)
}
