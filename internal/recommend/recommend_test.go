package recommend

import (
	"testing"

	"github.com/s07362022/leadlag/internal/engine"
	"github.com/s07362022/leadlag/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stats(symbol string, crashN int, crashMean float64, surgeN int, surgeMean float64) models.InstrumentStats {
	return models.InstrumentStats{
		Symbol: symbol,
		Name:   symbol,
		Crash:  models.RegimeStats{Instrument: symbol, Regime: models.RegimeCrash, SampleCount: crashN, WinRatePct: 60, MeanReturnPct: crashMean},
		Surge:  models.RegimeStats{Instrument: symbol, Regime: models.RegimeSurge, SampleCount: surgeN, WinRatePct: 60, MeanReturnPct: surgeMean},
	}
}

func run(name string, horizon int, insts ...models.InstrumentStats) models.BacktestRun {
	return models.BacktestRun{Name: name, HorizonDays: horizon, Instruments: insts}
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())

	p := DefaultPolicy()
	p.MinSamples = 0
	assert.ErrorIs(t, p.Validate(), engine.ErrInvalidConfiguration)

	p = DefaultPolicy()
	p.TieEpsilon = -1
	assert.ErrorIs(t, p.Validate(), engine.ErrInvalidConfiguration)

	p = DefaultPolicy()
	p.TopN = 0
	assert.ErrorIs(t, p.Validate(), engine.ErrInvalidConfiguration)
}

func TestPolicy_FloorFor(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 2.0, p.FloorFor(3))
	assert.Equal(t, 2.0, p.FloorFor(9))
	assert.Equal(t, 4.0, p.FloorFor(10))
}

func TestDecide(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name      string
		stats     models.InstrumentStats
		horizon   int
		ok        bool
		crash     bool
		surge     bool
		preferred models.Regime
	}{
		{"tie recommends both", stats("A", 5, 2.00, 5, 2.30), 3, true, true, true, models.RegimeSurge},
		{"clear crash winner", stats("B", 5, 3.5, 5, 2.1), 3, true, true, false, models.RegimeCrash},
		{"clear surge winner", stats("C", 5, 2.1, 5, 3.5), 3, true, false, true, models.RegimeSurge},
		{"below floor excluded", stats("D", 5, 1.9, 0, 0), 3, false, false, false, ""},
		{"only crash qualifies", stats("E", 5, 2.5, 5, 1.0), 3, true, true, false, models.RegimeCrash},
		{"too few samples", stats("F", 2, 9.0, 2, 9.0), 3, false, false, false, ""},
		{"thin regime ignored", stats("G", 2, 9.0, 4, 2.2), 3, true, false, true, models.RegimeSurge},
		{"long horizon floor", stats("H", 5, 3.9, 5, 4.1), 10, true, false, true, models.RegimeSurge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := Decide(tt.stats, tt.horizon, p)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.crash, d.Recommends(models.RegimeCrash))
			assert.Equal(t, tt.surge, d.Recommends(models.RegimeSurge))
			assert.Equal(t, tt.preferred, d.Preferred)
			assert.False(t, d.Recommends(models.RegimeFlat))
		})
	}
}

func TestCollect(t *testing.T) {
	r := run("core_3m", 3,
		stats("A", 5, 2.00, 5, 2.30),
		stats("B", 5, 3.5, 5, 2.1),
		stats("D", 5, 1.9, 5, 1.0),
	)

	pair := Collect(r.Name, DecideRun(r, DefaultPolicy()))
	assert.Equal(t, []string{"A", "B"}, pair.Crash.Names())
	assert.Equal(t, []string{"A"}, pair.Surge.Names())
	assert.Equal(t, "core_3m", pair.Crash.Source)
	assert.Equal(t, 3.5, pair.Crash.Picks[1].MeanReturnPct)
	assert.Equal(t, 2.30, pair.Surge.Picks[0].MeanReturnPct)
}

func TestIntersect(t *testing.T) {
	a := run("core_3m", 3,
		stats("AGREE_CRASH", 5, 4, 5, 2.1),
		stats("AGREE_SURGE", 5, 2.1, 5, 4),
		stats("DISAGREE", 5, 4, 5, 2.1),
		stats("TIE_IN_B", 5, 4, 5, 2.1),
		stats("ONLY_A", 5, 4, 5, 2.1),
		stats("FAILS_B", 5, 4, 5, 2.1),
	)
	b := run("core_6m", 3,
		stats("TIE_IN_B", 5, 3.0, 5, 3.2),
		stats("DISAGREE", 5, 2.1, 5, 4),
		stats("AGREE_SURGE", 5, 2.5, 5, 5),
		stats("AGREE_CRASH", 5, 6, 5, 2.1),
		stats("FAILS_B", 5, 1, 5, 1),
	)

	pair := Intersect(a, b, DefaultPolicy())
	assert.Equal(t, []string{"AGREE_CRASH", "TIE_IN_B"}, pair.Crash.Names())
	assert.Equal(t, []string{"AGREE_SURGE", "TIE_IN_B"}, pair.Surge.Names())
	assert.Equal(t, "core_3m&core_6m", pair.Crash.Source)

	assert.Equal(t, 4.0, pair.Crash.Picks[0].MeanReturnPct, "means come from the first run")
}

func TestRank(t *testing.T) {
	p := DefaultPolicy()
	r := run("screen_3m", 3,
		stats("LOW", 5, 1.0, 5, 0.5),
		stats("HIGH", 5, 3.0, 5, 1.0),
		stats("THIN", 1, 9.0, 2, 9.0),
		stats("MID", 3, 0.1, 4, 2.0),
	)

	ranked := Rank(r, p)
	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"HIGH", "MID", "LOW"}, []string{ranked[0].Symbol, ranked[1].Symbol, ranked[2].Symbol})
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, models.RegimeCrash, ranked[0].Best)
	assert.Equal(t, models.RegimeSurge, ranked[1].Best)
	assert.InDelta(t, 60*0.4+3.0*10*0.6, ranked[0].Score, 1e-9)

	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Score, ranked[i].Score)
	}
}

func TestRank_TiesBySymbol(t *testing.T) {
	ranked := Rank(run("x", 3, stats("B", 5, 2, 0, 0), stats("A", 5, 2, 0, 0)), DefaultPolicy())
	require.Len(t, ranked, 2)
	assert.Equal(t, "A", ranked[0].Symbol)
}

func TestSynthesize_RankedTruncatesBeforeFloor(t *testing.T) {
	p := DefaultPolicy()
	p.TopN = 2

	r := run("screen_3m", 3,
		stats("A", 5, 5.0, 5, 1.0),
		stats("B", 5, 1.0, 5, 4.0),
		stats("C", 5, 3.0, 5, 0.0),
	)

	rec := Synthesize(r, ModeRanked, p)
	assert.Equal(t, "screen_3m", rec.Run)
	require.Len(t, rec.Ranked, 2)
	assert.Equal(t, []string{"A"}, rec.Crash.Names(), "C qualifies but ranks outside the top 2")
	assert.Equal(t, []string{"B"}, rec.Surge.Names())
}

func TestSynthesize_Decide(t *testing.T) {
	r := run("core_3m", 3, stats("A", 5, 1.9, 5, 1.0), stats("B", 5, 2.0, 5, 0))

	rec := Synthesize(r, ModeDecide, DefaultPolicy())
	assert.Empty(t, rec.Ranked)
	assert.Equal(t, []string{"B"}, rec.Crash.Names())
	assert.Empty(t, rec.Surge.Picks)
}

func TestSynthesize_DoesNotMutateRun(t *testing.T) {
	r := run("screen_3m", 3, stats("B", 5, 1, 5, 4), stats("A", 5, 5, 5, 1))
	before := append([]models.InstrumentStats(nil), r.Instruments...)

	Synthesize(r, ModeRanked, DefaultPolicy())
	assert.Equal(t, before, r.Instruments)
}

func TestBuildComposite(t *testing.T) {
	recs := []models.RunRecommendation{
		{Run: "core_3m", RecommendationPair: models.RecommendationPair{
			Crash: models.RecommendationSet{Picks: []models.Pick{{Instrument: "A", MeanReturnPct: 2.5}, {Instrument: "B", MeanReturnPct: 3}}},
		}},
		{Run: "screen_3m", RecommendationPair: models.RecommendationPair{
			Crash: models.RecommendationSet{Picks: []models.Pick{{Instrument: "B", MeanReturnPct: 9}, {Instrument: "C", MeanReturnPct: 2.2}}},
			Surge: models.RecommendationSet{Picks: []models.Pick{{Instrument: "D", MeanReturnPct: 2.1}}},
		}},
		{Run: "screen_10d", RecommendationPair: models.RecommendationPair{
			Surge: models.RecommendationSet{Picks: []models.Pick{{Instrument: "E", MeanReturnPct: 4.4}}},
		}},
	}

	c := BuildComposite(recs, []string{"core_3m", "screen_3m", "missing"}, []string{"screen_10d"})
	assert.Equal(t, []string{"A", "B", "C"}, c.Short.Crash.Names())
	assert.Equal(t, 3.0, c.Short.Crash.Picks[1].MeanReturnPct, "first occurrence wins")
	assert.Equal(t, []string{"D"}, c.Short.Surge.Names())
	assert.Empty(t, c.Long.Crash.Picks)
	assert.Equal(t, []string{"E"}, c.Long.Surge.Names())
	assert.Equal(t, models.RegimeSurge, c.Long.Surge.Regime)
}

func flatETF(symbol string, n int, winRate, mean float64) models.InstrumentStats {
	return models.InstrumentStats{
		Symbol: symbol,
		Flat:   models.RegimeStats{Regime: models.RegimeFlat, SampleCount: n, WinRatePct: winRate, MeanReturnPct: mean},
	}
}

func TestAdviseFlat(t *testing.T) {
	p := DefaultPolicy()
	etfs := []string{"0050.TW", "0052.TW"}

	tests := []struct {
		name string
		run  models.BacktestRun
		want models.FlatAction
	}{
		{"no data", run("core_3m", 3, stats("2330.TW", 5, 1, 5, 1)), models.FlatWait},
		{"few samples", run("core_3m", 3, flatETF("0050.TW", 4, 80, 1), flatETF("0052.TW", 20, 80, 1)), models.FlatWait},
		{"buy", run("core_3m", 3, flatETF("0050.TW", 12, 55, 0.3), flatETF("0052.TW", 12, 45, 0.2)), models.FlatBuyETF},
		{"weak return", run("core_3m", 3, flatETF("0050.TW", 12, 60, 0.1), flatETF("0052.TW", 12, 60, 0.1)), models.FlatNoBuy},
		{"weak win rate", run("core_3m", 3, flatETF("0050.TW", 12, 40, 0.5), flatETF("0052.TW", 12, 50, 0.5)), models.FlatNoBuy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AdviseFlat(tt.run, etfs, p)
			assert.Equal(t, tt.want, got.Action)
			assert.NotEmpty(t, got.Reason)
		})
	}
}

func TestAdviseFlat_Averages(t *testing.T) {
	r := run("core_3m", 3, flatETF("0052.TW", 8, 40, 0.4), flatETF("0050.TW", 6, 60, 0.2))

	got := AdviseFlat(r, []string{"0050.TW", "0052.TW"}, DefaultPolicy())
	assert.Equal(t, 6, got.SampleCount, "sample gate uses the first configured ETF")
	assert.InDelta(t, 0.3, got.MeanReturnPct, 1e-12)
	assert.InDelta(t, 50, got.WinRatePct, 1e-12)
	assert.Equal(t, models.FlatBuyETF, got.Action)
}
