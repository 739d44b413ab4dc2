package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/s07362022/leadlag/internal/logger"
	"github.com/s07362022/leadlag/internal/models"
	"github.com/s07362022/leadlag/internal/report"
	"github.com/spf13/cobra"
)

var (
	reportNoSave   bool
	reportNoNotify bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run every backtest once and print the advisory report",
	Long: `Fetch the leading index and every configured universe, run the backtests,
print the report to stdout, store it and deliver it to Telegram when enabled.

Examples:
  leadlag report
  leadlag report --no-save --no-notify`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().BoolVar(&reportNoSave, "no-save", false, "Do not store the report")
	reportCmd.Flags().BoolVar(&reportNoNotify, "no-notify", false, "Do not deliver the report to Telegram")
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := setup(!reportNoNotify)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := a.cycle(ctx, !reportNoSave)
	if err != nil {
		return err
	}
	return report.Render(os.Stdout, r)
}

// cycle produces one report, stores it when save is set and delivers it to
// Telegram. Storage and delivery failures are logged, not returned.
func (a *app) cycle(ctx context.Context, save bool) (*models.Report, error) {
	start := time.Now()
	logger.Info("Starting advisory cycle")

	r, err := a.advisor.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("advisory cycle failed: %w", err)
	}

	if save {
		if err := a.store.SaveReport(r); err != nil {
			logger.Error("Failed to store report %s: %v", r.ID, err)
		} else {
			logger.Debug("Stored report %s", r.ID)
		}
	}

	if a.telegram != nil {
		if err := a.telegram.SendReport(r); err != nil {
			logger.Error("Failed to send Telegram report: %v", err)
		} else {
			logger.Info("Sent report %s to Telegram", r.ID)
		}
	}

	logger.Info("Advisory cycle completed in %v (%d runs, %d failures)", time.Since(start), len(r.Runs), len(r.Failures))
	return r, nil
}
