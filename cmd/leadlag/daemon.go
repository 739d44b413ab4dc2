package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/s07362022/leadlag/internal/logger"
	"github.com/s07362022/leadlag/internal/models"
	"github.com/s07362022/leadlag/internal/scheduler"
	"github.com/spf13/cobra"
)

var daemonRunNow bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Produce reports on the configured schedule",
	Long: `Run the advisory cycle on schedule.cron in schedule.timezone and answer the
Telegram /ping and /report commands until interrupted.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().BoolVar(&daemonRunNow, "run-now", false, "Run one cycle immediately on startup")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := setup(true)
	if err != nil {
		return err
	}
	defer a.close()

	loc, err := time.LoadLocation(a.cfg.Schedule.Timezone)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.telegram != nil {
		a.telegram.ListenForCommands(ctx, func(context.Context) (*models.Report, error) {
			return a.store.LatestReport()
		})
	}

	consecutiveFailures := 0
	job := scheduler.JobFunc{JobName: "report", Fn: func(ctx context.Context) error {
		_, err := a.cycle(ctx, true)
		a.handleCycleResult(err, &consecutiveFailures)
		return err
	}}

	sched := scheduler.New(loc)
	if err := sched.AddJob(ctx, a.cfg.Schedule.Cron, job); err != nil {
		return err
	}

	if daemonRunNow {
		sched.RunNow(ctx, job) //nolint:errcheck
	}

	sched.Start()
	<-ctx.Done()
	logger.Info("Shutdown signal received, cleaning up...")
	sched.Stop()
	logger.Info("Service stopped")
	return nil
}

// handleCycleResult notifies Telegram on the first failure of a consecutive
// sequence and on recovery.
func (a *app) handleCycleResult(err error, consecutiveFailures *int) {
	if err != nil {
		*consecutiveFailures++
		logger.Error("Advisory cycle failed: %v", err)
		if *consecutiveFailures == 1 && a.telegram != nil {
			if sendErr := a.telegram.SendError(err); sendErr != nil {
				logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
			}
		}
		return
	}
	if *consecutiveFailures > 0 && a.telegram != nil {
		if sendErr := a.telegram.SendRecovery(*consecutiveFailures); sendErr != nil {
			logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
		}
	}
	*consecutiveFailures = 0
}
