package main

import (
	"fmt"
	"os"

	"github.com/s07362022/leadlag/internal/advisor"
	"github.com/s07362022/leadlag/internal/config"
	"github.com/s07362022/leadlag/internal/logger"
	"github.com/s07362022/leadlag/internal/storage"
	"github.com/s07362022/leadlag/internal/telegram"
	"github.com/s07362022/leadlag/internal/yahoo"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "leadlag",
	Short: "Lead/lag regime backtester and next-day advisor",
	Long: `leadlag classifies each session of a leading index as crash, surge or flat
against a volatility-adaptive threshold, backtests how lagged instruments
behaved on the following days, and turns the statistics into buy lists.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the components shared by subcommands.
type app struct {
	cfg      *config.Config
	store    *storage.Storage
	advisor  *advisor.Advisor
	telegram *telegram.Client
}

// setup loads and validates configuration, then opens storage. Telegram is
// created only when withTelegram is set and it is enabled.
func setup(withTelegram bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", configPath)

	store, err := storage.New(cfg.Storage.MaxReports, cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := &app{
		cfg:     cfg,
		store:   store,
		advisor: advisor.New(yahoo.NewClient(cfg.YahooClient()), cfg.Advisor()),
	}

	if withTelegram && cfg.Telegram.Enabled {
		a.telegram, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}
	return a, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		logger.Error("Failed to close storage: %v", err)
	}
}
