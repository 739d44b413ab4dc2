package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/s07362022/leadlag/internal/logger"
	"github.com/s07362022/leadlag/internal/models"
)

// Params are the calibration inputs shared by every run.
type Params struct {
	VolWindow   int
	Calibration Calibration
}

// DefaultParams returns a 20-day volatility window with the default calibration.
func DefaultParams() Params {
	return Params{VolWindow: 20, Calibration: DefaultCalibration()}
}

// Validate fails fast on constants that violate their required ordering.
func (p Params) Validate() error {
	if p.VolWindow < 2 {
		return fmt.Errorf("%w: vol_window must be at least 2, got %d", ErrInvalidConfiguration, p.VolWindow)
	}
	return p.Calibration.Validate()
}

// RunSpec identifies one (lookback, horizon) backtest over a universe.
type RunSpec struct {
	Name         string
	Universe     string
	LookbackDays int
	HorizonDays  int
}

// Validate checks the run window.
func (s RunSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: run name must not be empty", ErrInvalidConfiguration)
	}
	if s.LookbackDays < 1 {
		return fmt.Errorf("%w: run %s lookback_days must be at least 1", ErrInvalidConfiguration, s.Name)
	}
	if s.HorizonDays < 1 {
		return fmt.Errorf("%w: run %s horizon_days must be at least 1", ErrInvalidConfiguration, s.Name)
	}
	return nil
}

// Window returns the [start, end) date range of the run's lagged series
// ending at now.
func (s RunSpec) Window(now time.Time) (time.Time, time.Time) {
	end := models.DayKey(now)
	return end.AddDate(0, 0, -s.LookbackDays), end
}

// Backtest evaluates one lagged instrument against the leading index.
func Backtest(leading *LeadingIndex, inst models.Instrument, lagged []models.PriceBar, horizon int, cal Calibration) (models.InstrumentStats, SimulationSummary, error) {
	if len(lagged) < horizon+2 {
		return models.InstrumentStats{}, SimulationSummary{}, fmt.Errorf("%w: %s has %d bars", ErrDataUnavailable, inst.Symbol, len(lagged))
	}

	align, err := Align(horizon, leading.Bars(), lagged)
	if err != nil {
		return models.InstrumentStats{}, SimulationSummary{}, fmt.Errorf("%s: %w", inst.Symbol, err)
	}

	outcomes, summary := Simulate(inst.Label(), leading, lagged, align, cal)
	return Aggregate(inst, outcomes), summary, nil
}

// Run evaluates every lagged series against the leading series. Instruments
// that cannot be evaluated are recorded in Skipped and do not abort the run.
func Run(spec RunSpec, leading models.Series, lagged []models.Series, p Params, start, end time.Time) (models.BacktestRun, error) {
	if err := p.Validate(); err != nil {
		return models.BacktestRun{}, err
	}
	if err := spec.Validate(); err != nil {
		return models.BacktestRun{}, err
	}
	if leading.Len() < 2 {
		return models.BacktestRun{}, fmt.Errorf("%w: leading series %s has %d bars", ErrDataUnavailable, leading.Symbol, leading.Len())
	}

	index, err := NewLeadingIndex(leading, p.VolWindow)
	if err != nil {
		return models.BacktestRun{}, err
	}

	run := models.BacktestRun{
		Name:         spec.Name,
		Universe:     spec.Universe,
		LookbackDays: spec.LookbackDays,
		HorizonDays:  spec.HorizonDays,
		Start:        start,
		End:          end,
	}

	for _, s := range lagged {
		inst := models.Instrument{Symbol: s.Symbol, Name: s.Name}
		stats, summary, err := Backtest(index, inst, s.Bars, spec.HorizonDays, p.Calibration)
		if err != nil {
			reason := "error"
			switch {
			case errors.Is(err, ErrDataUnavailable):
				reason = "data unavailable"
			case errors.Is(err, ErrInsufficientAlignment):
				reason = "insufficient alignment"
			}
			logger.Warn("Run %s: skipping %s: %v", spec.Name, s.Symbol, err)
			run.Skipped = append(run.Skipped, models.SkippedInstrument{Symbol: s.Symbol, Reason: reason})
			continue
		}

		if summary.MissingFields > 0 || summary.UnknownSignal > 0 {
			logger.Debug("Run %s: %s emitted %d/%d outcomes (%d unknown signal, %d missing fields)",
				spec.Name, s.Symbol, summary.Emitted, summary.Candidates, summary.UnknownSignal, summary.MissingFields)
		}
		run.Instruments = append(run.Instruments, stats)
	}

	return run, nil
}
