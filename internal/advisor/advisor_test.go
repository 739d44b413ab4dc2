package advisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/s07362022/leadlag/internal/engine"
	"github.com/s07362022/leadlag/internal/models"
	"github.com/s07362022/leadlag/internal/recommend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu     sync.Mutex
	series map[string][]models.PriceBar
	calls  map[string]int
}

func (f *fakeSource) FetchBars(ctx context.Context, symbol string, start, end time.Time) (models.Series, error) {
	f.mu.Lock()
	f.calls[symbol]++
	f.mu.Unlock()

	bars, ok := f.series[symbol]
	if !ok {
		return models.Series{}, errors.New("connection reset")
	}
	var out []models.PriceBar
	for _, b := range bars {
		if !b.Date.Before(start) && b.Date.Before(end) {
			out = append(out, b)
		}
	}
	return models.Series{Symbol: symbol, Bars: out}, nil
}

// leadingBars cycles through a crash, a flat, a surge and a flat day.
func leadingBars(n int) []models.PriceBar {
	moves := []float64{-2.5, 0.2, 2.5, -0.1}
	bars := make([]models.PriceBar, n)
	c := 100.0
	for i := range bars {
		if i > 0 {
			c *= 1 + moves[i%len(moves)]/100
		}
		bars[i] = models.PriceBar{Date: base.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

func constBars(n int, open, high, close float64) []models.PriceBar {
	bars := make([]models.PriceBar, n)
	for i := range bars {
		bars[i] = models.PriceBar{Date: base.AddDate(0, 0, i), Open: open, High: high, Low: open, Close: close}
	}
	return bars
}

func testSetup() (*fakeSource, Config) {
	src := &fakeSource{
		series: map[string][]models.PriceBar{
			"QQQ":     leadingBars(60),
			"A.TW":    constBars(60, 100, 110, 105),
			"B.TW":    constBars(60, 100, 100, 100),
			"0050.TW": constBars(60, 100, 101, 100.2),
		},
		calls: make(map[string]int),
	}

	cfg := Config{
		Leading:            models.Instrument{Symbol: "QQQ", Name: "Nasdaq 100"},
		LeadingHistoryDays: 60,
		Universes: map[string][]models.Instrument{
			"core": {
				{Symbol: "A.TW", Name: "Alpha"},
				{Symbol: "B.TW", Name: "Beta"},
				{Symbol: "FAIL.TW", Name: "Broken"},
				{Symbol: "0050.TW", Name: "ETF50"},
			},
		},
		ETFs:    []string{"0050.TW"},
		FlatRun: "core_short",
		Runs: []RunConfig{
			{RunSpec: engine.RunSpec{Name: "core_short", Universe: "core", LookbackDays: 40, HorizonDays: 3}, Mode: recommend.ModeDecide},
			{RunSpec: engine.RunSpec{Name: "core_long", Universe: "core", LookbackDays: 55, HorizonDays: 3}, Mode: recommend.ModeDecide},
			{RunSpec: engine.RunSpec{Name: "screen_10d", Universe: "core", LookbackDays: 55, HorizonDays: 10}, Mode: recommend.ModeRanked},
		},
		Intersections:  [][2]string{{"core_short", "core_long"}, {"core_short", "missing"}},
		CompositeShort: []string{"core_short"},
		CompositeLong:  []string{"screen_10d"},
		Params:         engine.DefaultParams(),
		Policy:         recommend.DefaultPolicy(),
		Workers:        2,
	}
	return src, cfg
}

func newTestAdvisor(src PriceSource, cfg Config) *Advisor {
	a := New(src, cfg)
	a.now = func() time.Time { return base.AddDate(0, 0, 60).Add(12 * time.Hour) }
	return a
}

func TestRun(t *testing.T) {
	src, cfg := testSetup()

	report, err := newTestAdvisor(src, cfg).Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.ID)
	require.NotNil(t, report.Signal)
	assert.Equal(t, "QQQ", report.Signal.Symbol)
	assert.Equal(t, base.AddDate(0, 0, 59), report.Signal.Date)

	require.Len(t, report.Runs, 3)
	core, ok := report.Run("core_short")
	require.True(t, ok)
	assert.Len(t, core.Instruments, 3)
	assert.Contains(t, core.Skipped, models.SkippedInstrument{Symbol: "FAIL.TW", Reason: "fetch failed"})
	assert.Contains(t, report.Failures, "core_short: FAIL.TW fetch failed")

	rec, ok := report.Recommendation("core_short")
	require.True(t, ok)
	assert.Equal(t, []string{"Alpha"}, rec.Crash.Names(), "equal crash and surge means recommend both")
	assert.Equal(t, []string{"Alpha"}, rec.Surge.Names())

	screen, ok := report.Recommendation("screen_10d")
	require.True(t, ok)
	assert.NotEmpty(t, screen.Ranked)
	assert.Equal(t, "A.TW", screen.Ranked[0].Symbol)

	inter, ok := report.Intersections["core_short&core_long"]
	require.True(t, ok)
	assert.Len(t, report.Intersections, 1, "intersections with unknown runs are skipped")
	assert.True(t, inter.Crash.Contains("Alpha"))
	assert.True(t, inter.Surge.Contains("Alpha"))

	assert.Equal(t, []string{"Alpha"}, report.Composite.Short.Crash.Names())
	assert.Equal(t, []string{"Alpha"}, report.Composite.Long.Surge.Names())

	assert.Equal(t, models.FlatBuyETF, report.Flat.Action)
}

func TestRun_EachRunFetchesItsOwnUniverse(t *testing.T) {
	src, cfg := testSetup()

	_, err := newTestAdvisor(src, cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls["QQQ"])
	assert.Equal(t, len(cfg.Runs), src.calls["A.TW"])
	assert.Equal(t, len(cfg.Runs), src.calls["FAIL.TW"])
}

func TestRun_LeadingFetchFails(t *testing.T) {
	src, cfg := testSetup()
	delete(src.series, "QQQ")

	_, err := newTestAdvisor(src, cfg).Run(context.Background())
	assert.Error(t, err)
}

func TestRun_UnknownUniverse(t *testing.T) {
	src, cfg := testSetup()
	cfg.Runs[1].Universe = "nope"

	_, err := newTestAdvisor(src, cfg).Run(context.Background())
	assert.ErrorIs(t, err, engine.ErrInvalidConfiguration)
}

func TestRun_InvalidCalibration(t *testing.T) {
	src, cfg := testSetup()
	cfg.Params.Calibration.VolLow = 5

	_, err := newTestAdvisor(src, cfg).Run(context.Background())
	assert.ErrorIs(t, err, engine.ErrInvalidConfiguration)
	assert.Zero(t, src.calls["QQQ"], "configuration is checked before any fetch")
}

func TestRun_FlatRunMissing(t *testing.T) {
	src, cfg := testSetup()
	cfg.FlatRun = ""

	report, err := newTestAdvisor(src, cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.FlatWait, report.Flat.Action)
}
