// Package advisor runs one advisory cycle: it fetches price history, runs
// every configured backtest, and assembles the recommendation report.
package advisor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/s07362022/leadlag/internal/engine"
	"github.com/s07362022/leadlag/internal/logger"
	"github.com/s07362022/leadlag/internal/models"
	"github.com/s07362022/leadlag/internal/recommend"
	"golang.org/x/sync/errgroup"
)

// PriceSource retrieves daily bars dated within [start, end).
type PriceSource interface {
	FetchBars(ctx context.Context, symbol string, start, end time.Time) (models.Series, error)
}

// RunConfig is one backtest run and how its recommendations are extracted.
type RunConfig struct {
	engine.RunSpec
	Mode recommend.Mode
}

// Config represents the advisory cycle configuration.
type Config struct {
	Leading            models.Instrument
	LeadingHistoryDays int
	Universes          map[string][]models.Instrument
	ETFs               []string
	FlatRun            string
	Runs               []RunConfig
	Intersections      [][2]string
	CompositeShort     []string
	CompositeLong      []string
	Params             engine.Params
	Policy             recommend.Policy
	Workers            int
}

// Advisor produces reports from a price source.
type Advisor struct {
	source PriceSource
	config Config
	now    func() time.Time
}

// New creates an advisor. Workers below 1 are raised to 1.
func New(source PriceSource, config Config) *Advisor {
	if config.Workers < 1 {
		config.Workers = 1
	}
	return &Advisor{
		source: source,
		config: config,
		now:    time.Now,
	}
}

// Run executes one cycle. Per-instrument fetch failures are recorded as
// skipped instruments; only a missing leading series or an invalid
// configuration fails the cycle.
func (a *Advisor) Run(ctx context.Context) (*models.Report, error) {
	if err := a.config.Params.Validate(); err != nil {
		return nil, err
	}
	if err := a.config.Policy.Validate(); err != nil {
		return nil, err
	}

	now := a.now()
	report := &models.Report{
		ID:            uuid.NewString(),
		GeneratedAt:   now,
		Intersections: make(map[string]models.RecommendationPair),
	}

	end := models.DayKey(now)
	leading, err := a.source.FetchBars(ctx, a.config.Leading.Symbol, end.AddDate(0, 0, -a.config.LeadingHistoryDays), end)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leading series %s: %w", a.config.Leading.Symbol, err)
	}
	if leading.Name == "" {
		leading.Name = a.config.Leading.Name
	}
	logger.Info("Fetched %d bars of leading series %s", leading.Len(), leading.Symbol)

	if index, err := engine.NewLeadingIndex(leading, a.config.Params.VolWindow); err == nil {
		if sig, err := engine.LatestSignal(index, a.config.Params.Calibration); err == nil {
			report.Signal = &sig
		} else {
			logger.Warn("Latest signal unavailable: %v", err)
			report.Failures = append(report.Failures, fmt.Sprintf("signal: %v", err))
		}
	}

	runs := make([]models.BacktestRun, len(a.config.Runs))
	g, gctx := errgroup.WithContext(ctx)
	for i, rc := range a.config.Runs {
		g.Go(func() error {
			run, err := a.backtest(gctx, rc, leading, now)
			if err != nil {
				return fmt.Errorf("run %s: %w", rc.Name, err)
			}
			runs[i] = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	report.Runs = runs

	for i, run := range runs {
		report.Recommendations = append(report.Recommendations,
			recommend.Synthesize(run, a.config.Runs[i].Mode, a.config.Policy))
	}

	for _, pair := range a.config.Intersections {
		ra, okA := report.Run(pair[0])
		rb, okB := report.Run(pair[1])
		if !okA || !okB {
			logger.Warn("Skipping intersection %s/%s: unknown run", pair[0], pair[1])
			continue
		}
		report.Intersections[recommend.IntersectionName(ra.Name, rb.Name)] = recommend.Intersect(ra, rb, a.config.Policy)
	}

	report.Composite = recommend.BuildComposite(report.Recommendations, a.config.CompositeShort, a.config.CompositeLong)

	if flatRun, ok := report.Run(a.config.FlatRun); ok {
		report.Flat = recommend.AdviseFlat(flatRun, a.config.ETFs, a.config.Policy)
	} else {
		report.Flat = models.FlatAdvice{Action: models.FlatWait, Reason: "flat-day run not configured"}
	}

	for _, run := range runs {
		for _, s := range run.Skipped {
			report.Failures = append(report.Failures, fmt.Sprintf("%s: %s %s", run.Name, s.Symbol, s.Reason))
		}
	}

	logger.Info("Report %s ready: %d runs, %d skipped instruments", report.ID, len(runs), countSkipped(runs))
	return report, nil
}

// backtest fetches one run's universe and evaluates it against the full
// leading history.
func (a *Advisor) backtest(ctx context.Context, rc RunConfig, leading models.Series, now time.Time) (models.BacktestRun, error) {
	universe, ok := a.config.Universes[rc.Universe]
	if !ok {
		return models.BacktestRun{}, fmt.Errorf("%w: unknown universe %q", engine.ErrInvalidConfiguration, rc.Universe)
	}

	start, end := rc.Window(now)
	series, failed := a.fetchUniverse(ctx, universe, start, end)
	if err := ctx.Err(); err != nil {
		return models.BacktestRun{}, err
	}

	run, err := engine.Run(rc.RunSpec, leading, series, a.config.Params, start, end)
	if err != nil {
		return models.BacktestRun{}, err
	}
	run.Skipped = append(failed, run.Skipped...)

	logger.Info("Backtest %s finished: %d instruments, %d skipped", run, len(run.Instruments), len(run.Skipped))
	return run, nil
}

// fetchUniverse retrieves every instrument with at most Workers requests in
// flight. Results keep universe order; failed fetches are reported
// separately.
func (a *Advisor) fetchUniverse(ctx context.Context, universe []models.Instrument, start, end time.Time) ([]models.Series, []models.SkippedInstrument) {
	results := make([]models.Series, len(universe))
	errs := make([]error, len(universe))

	var g errgroup.Group
	g.SetLimit(a.config.Workers)
	for i, inst := range universe {
		g.Go(func() error {
			s, err := a.source.FetchBars(ctx, inst.Symbol, start, end)
			if err != nil {
				errs[i] = err
				return nil
			}
			s.Symbol = inst.Symbol
			s.Name = inst.Name
			results[i] = s
			return nil
		})
	}
	_ = g.Wait()

	var (
		series []models.Series
		failed []models.SkippedInstrument
	)
	for i, inst := range universe {
		if errs[i] != nil {
			logger.Warn("Failed to fetch %s: %v", inst.Symbol, errs[i])
			failed = append(failed, models.SkippedInstrument{Symbol: inst.Symbol, Reason: "fetch failed"})
			continue
		}
		series = append(series, results[i])
	}
	return series, failed
}

func countSkipped(runs []models.BacktestRun) int {
	n := 0
	for _, r := range runs {
		n += len(r.Skipped)
	}
	return n
}
