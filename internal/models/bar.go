// Package models defines the core domain values: price bars, trade outcomes,
// regime statistics, backtest runs, and recommendation sets.
package models

import (
	"errors"
	"math"
	"time"
)

// PriceBar is one trading day of an instrument. Date is the trading-day key
// (midnight UTC of the exchange-local calendar date).
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// DayKey truncates t to its calendar date in t's own location, returned as
// midnight UTC so keys from different exchanges compare equal.
func DayKey(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Valid reports whether the fields the engine requires (Open, High, Close)
// are present. Low and Volume are optional.
func (b PriceBar) Valid() bool {
	return usable(b.Open) && usable(b.High) && usable(b.Close)
}

// Validate checks bar field constraints.
func (b PriceBar) Validate() error {
	if b.Date.IsZero() {
		return errors.New("bar date must be set")
	}
	if !usable(b.Open) {
		return errors.New("bar open must be a positive number")
	}
	if !usable(b.High) {
		return errors.New("bar high must be a positive number")
	}
	if !usable(b.Close) {
		return errors.New("bar close must be a positive number")
	}
	if b.High < b.Open || b.High < b.Close {
		return errors.New("bar high must not be below open or close")
	}
	return nil
}

func usable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// Series is a date-ordered price history for one instrument.
type Series struct {
	Symbol string     `json:"symbol"`
	Name   string     `json:"name"`
	Bars   []PriceBar `json:"bars"`
}

// Len returns the number of bars.
func (s Series) Len() int {
	return len(s.Bars)
}

// Instrument is a tradable symbol with its display name.
type Instrument struct {
	Symbol string `mapstructure:"symbol" json:"symbol"`
	Name   string `mapstructure:"name" json:"name"`
}

// Label returns the display name, or the symbol when no name is set.
func (i Instrument) Label() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Symbol
}
