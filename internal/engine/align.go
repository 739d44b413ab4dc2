package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/s07362022/leadlag/internal/models"
)

// Alignment is the shared trading calendar of two or more series.
// Index[k][i] is the position in series k of Dates[i].
type Alignment struct {
	Dates   []time.Time
	Index   [][]int
	Horizon int
}

// Intersect returns the chronologically sorted dates present in every series,
// with per-series positions. A date repeated within one series resolves to its
// last occurrence.
func Intersect(series ...[]models.PriceBar) ([]time.Time, [][]int) {
	if len(series) == 0 {
		return nil, nil
	}

	positions := make([]map[time.Time]int, len(series))
	for k, bars := range series {
		m := make(map[time.Time]int, len(bars))
		for i, b := range bars {
			m[b.Date] = i
		}
		positions[k] = m
	}

	var dates []time.Time
	for d := range positions[0] {
		shared := true
		for k := 1; k < len(positions); k++ {
			if _, ok := positions[k][d]; !ok {
				shared = false
				break
			}
		}
		if shared {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	index := make([][]int, len(series))
	for k := range series {
		index[k] = make([]int, len(dates))
		for i, d := range dates {
			index[k][i] = positions[k][d]
		}
	}
	return dates, index
}

// Align intersects the series and reserves the first date (no prior-day
// signal) and the last horizon dates (no forward window). It fails with
// ErrInsufficientAlignment when fewer than horizon+2 dates are shared.
func Align(horizon int, series ...[]models.PriceBar) (Alignment, error) {
	if horizon < 1 {
		return Alignment{}, fmt.Errorf("%w: holding horizon must be at least 1, got %d", ErrInvalidConfiguration, horizon)
	}

	dates, index := Intersect(series...)
	if len(dates) < horizon+2 {
		return Alignment{}, fmt.Errorf("%w: %d shared dates, need at least %d", ErrInsufficientAlignment, len(dates), horizon+2)
	}
	return Alignment{Dates: dates, Index: index, Horizon: horizon}, nil
}

// Len returns the number of shared dates.
func (a Alignment) Len() int {
	return len(a.Dates)
}

// EntryRange returns the inclusive range of aligned positions usable for entry.
func (a Alignment) EntryRange() (first, last int) {
	return 1, len(a.Dates) - a.Horizon - 1
}

// Window returns the aligned positions of the holding window that starts at
// entry: entry .. entry+Horizon-1.
func (a Alignment) Window(entry int) (from, to int) {
	return entry, entry + a.Horizon - 1
}
