package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/s07362022/leadlag/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(3, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testReport(id string, at time.Time) *models.Report {
	stats := models.InstrumentStats{
		Symbol: "2330.TW",
		Name:   "台積電",
		Crash:  models.RegimeStats{Instrument: "台積電", Regime: models.RegimeCrash, SampleCount: 6, Wins: 4, WinRatePct: 66.7, MeanReturnPct: 2.4},
		Surge:  models.RegimeStats{Instrument: "台積電", Regime: models.RegimeSurge, SampleCount: 5, Wins: 2, WinRatePct: 40, MeanReturnPct: 0.8},
		Flat:   models.RegimeStats{Instrument: "台積電", Regime: models.RegimeFlat, SampleCount: 40, Wins: 22, WinRatePct: 55, MeanReturnPct: 0.3},
	}
	crash := models.RecommendationSet{Regime: models.RegimeCrash, Source: "core_3m", Picks: []models.Pick{{Instrument: "台積電", MeanReturnPct: 2.4}}}

	return &models.Report{
		ID:          id,
		GeneratedAt: at,
		Signal: &models.MarketSignal{
			Symbol:    "QQQ",
			Date:      at.Truncate(24 * time.Hour),
			ChangePct: -1.9,
			Threshold: models.ThresholdPair{Crash: -1.2, Surge: 1.2},
			Regime:    models.RegimeCrash,
		},
		Runs: []models.BacktestRun{{
			Name:         "core_3m",
			Universe:     "core",
			LookbackDays: 95,
			HorizonDays:  3,
			Start:        at.AddDate(0, 0, -95),
			End:          at,
			Instruments:  []models.InstrumentStats{stats},
			Skipped:      []models.SkippedInstrument{{Symbol: "2337.TW", Reason: "fetch failed"}},
		}},
		Recommendations: []models.RunRecommendation{{
			Run:                "core_3m",
			RecommendationPair: models.RecommendationPair{Crash: crash, Surge: models.RecommendationSet{Regime: models.RegimeSurge, Source: "core_3m"}},
		}},
		Composite: models.Composite{
			Short: models.RecommendationPair{Crash: models.RecommendationSet{Regime: models.RegimeCrash, Source: "short", Picks: crash.Picks}},
		},
		Flat: models.FlatAdvice{Action: models.FlatNoBuy, Reason: "weak"},
	}
}

func TestStorage_SaveAndLatestReport(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	if err := s.SaveReport(testReport("r1", now.Add(-time.Hour))); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	if err := s.SaveReport(testReport("r2", now)); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	got, err := s.LatestReport()
	if err != nil {
		t.Fatalf("LatestReport: %v", err)
	}
	if got.ID != "r2" {
		t.Errorf("got ID %s, want r2", got.ID)
	}
	if got.Signal == nil || got.Signal.Regime != models.RegimeCrash {
		t.Errorf("signal not restored: %+v", got.Signal)
	}
	if len(got.Runs) != 1 || got.Runs[0].Instruments[0].Crash.MeanReturnPct != 2.4 {
		t.Errorf("runs not restored: %+v", got.Runs)
	}
	rec, ok := got.Recommendation("core_3m")
	if !ok || !rec.Crash.Contains("台積電") {
		t.Errorf("recommendations not restored: %+v", got.Recommendations)
	}
}

func TestStorage_LatestReport_Empty(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.LatestReport(); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStorage_GetReport(t *testing.T) {
	s := newTestStorage(t)
	if err := s.SaveReport(testReport("r1", time.Now())); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	if _, err := s.GetReport("r1"); err != nil {
		t.Errorf("GetReport: %v", err)
	}
	if _, err := s.GetReport("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStorage_SaveReport_RequiresID(t *testing.T) {
	s := newTestStorage(t)
	if err := s.SaveReport(testReport("", time.Now())); err == nil {
		t.Error("expected error for report without id")
	}
}

func TestStorage_SaveReport_EnforcesMaxReports(t *testing.T) {
	s := newTestStorage(t)
	base := time.Now()
	for i := 0; i < 5; i++ {
		if err := s.SaveReport(testReport(fmt.Sprintf("r%d", i), base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("SaveReport %d: %v", i, err)
		}
	}

	list, err := s.ListReports(10)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 reports after cap, got %d", len(list))
	}
	if list[0].ID != "r4" || list[2].ID != "r2" {
		t.Errorf("expected newest first r4..r2, got %s..%s", list[0].ID, list[2].ID)
	}

	// statistics of evicted reports cascade away
	hist, err := s.InstrumentHistory("2330.TW", 100)
	if err != nil {
		t.Fatalf("InstrumentHistory: %v", err)
	}
	if len(hist) != 3*len(models.Regimes) {
		t.Errorf("expected %d stats rows, got %d", 3*len(models.Regimes), len(hist))
	}
}

func TestStorage_ListReports(t *testing.T) {
	s := newTestStorage(t)
	r := testReport("r1", time.Now())
	if err := s.SaveReport(r); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	list, err := s.ListReports(10)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 report, got %d", len(list))
	}
	got := list[0]
	if got.Regime != models.RegimeCrash || got.ChangePct != -1.9 {
		t.Errorf("unexpected signal columns: %+v", got)
	}
	if got.FlatAction != models.FlatNoBuy {
		t.Errorf("unexpected flat action: %s", got.FlatAction)
	}
	if got.Runs != 1 || got.Skipped != 1 {
		t.Errorf("expected 1 run with 1 skipped, got %d/%d", got.Runs, got.Skipped)
	}
	if !got.GeneratedAt.Equal(time.Unix(0, r.GeneratedAt.UnixNano())) {
		t.Errorf("generated_at mismatch: %v", got.GeneratedAt)
	}
}

func TestStorage_ListReports_NoSignal(t *testing.T) {
	s := newTestStorage(t)
	r := testReport("r1", time.Now())
	r.Signal = nil
	if err := s.SaveReport(r); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	list, err := s.ListReports(10)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if list[0].Regime != "" {
		t.Errorf("expected empty regime, got %q", list[0].Regime)
	}
}

func TestStorage_InstrumentHistory(t *testing.T) {
	s := newTestStorage(t)
	if err := s.SaveReport(testReport("r1", time.Now())); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	hist, err := s.InstrumentHistory("2330.TW", 10)
	if err != nil {
		t.Fatalf("InstrumentHistory: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected 3 regime rows, got %d", len(hist))
	}
	for _, rec := range hist {
		if rec.Run != "core_3m" || rec.HorizonDays != 3 {
			t.Errorf("unexpected run columns: %+v", rec)
		}
		if rec.Regime == models.RegimeCrash && rec.Wins != 4 {
			t.Errorf("crash wins = %d, want 4", rec.Wins)
		}
	}

	none, err := s.InstrumentHistory("9999.TW", 10)
	if err != nil {
		t.Fatalf("InstrumentHistory: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no rows, got %d", len(none))
	}
}

func TestStorage_Recommendations(t *testing.T) {
	s := newTestStorage(t)
	if err := s.SaveReport(testReport("r1", time.Now())); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	recs, err := s.Recommendations("r1")
	if err != nil {
		t.Fatalf("Recommendations: %v", err)
	}
	if picks := recs["core_3m/crash"]; len(picks) != 1 || picks[0].Instrument != "台積電" {
		t.Errorf("unexpected core_3m crash picks: %+v", picks)
	}
	if picks := recs["short/crash"]; len(picks) != 1 {
		t.Errorf("unexpected short crash picks: %+v", picks)
	}
}

func TestStorage_DefaultPath(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	s, err := New(10, "")
	if err != nil {
		t.Fatalf("New with empty path: %v", err)
	}
	defer s.Close()
}
