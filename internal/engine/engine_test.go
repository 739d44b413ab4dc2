package engine

import (
	"time"

	"github.com/s07362022/leadlag/internal/models"
)

func day(i int) time.Time {
	return time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

// closesSeries builds a series with one bar per close on consecutive days.
func closesSeries(symbol string, closes ...float64) models.Series {
	bars := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = models.PriceBar{Date: day(i), Open: c, High: c, Low: c, Close: c}
	}
	return models.Series{Symbol: symbol, Bars: bars}
}

// flatBars returns n identical bars starting at day(offset).
func flatBars(n, offset int) []models.PriceBar {
	bars := make([]models.PriceBar, n)
	for i := range bars {
		bars[i] = models.PriceBar{Date: day(offset + i), Open: 100, High: 101, Low: 99, Close: 100}
	}
	return bars
}

// compound returns closes starting at 100 that realise the given percent moves.
func compound(movesPct ...float64) []float64 {
	out := []float64{100}
	for _, m := range movesPct {
		out = append(out, out[len(out)-1]*(1+m/100))
	}
	return out
}
