package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/s07362022/leadlag/internal/advisor"
	"github.com/s07362022/leadlag/internal/engine"
	"github.com/s07362022/leadlag/internal/models"
	"github.com/s07362022/leadlag/internal/recommend"
	"github.com/s07362022/leadlag/internal/yahoo"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Market        MarketConfig                   `mapstructure:"market"`
	Universes     map[string][]models.Instrument `mapstructure:"universes"`
	ETFs          ETFConfig                      `mapstructure:"etfs"`
	Engine        EngineConfig                   `mapstructure:"engine"`
	Policy        recommend.Policy               `mapstructure:"policy"`
	Runs          []RunConfig                    `mapstructure:"runs"`
	Intersections [][]string                     `mapstructure:"intersections"`
	Composite     CompositeConfig                `mapstructure:"composite"`
	Yahoo         YahooConfig                    `mapstructure:"yahoo"`
	Workers       WorkersConfig                  `mapstructure:"workers"`
	Telegram      TelegramConfig                 `mapstructure:"telegram"`
	Storage       StorageConfig                  `mapstructure:"storage"`
	Schedule      ScheduleConfig                 `mapstructure:"schedule"`
	Logging       LoggingConfig                  `mapstructure:"logging"`
}

// MarketConfig names the leading instrument
type MarketConfig struct {
	LeadingSymbol string `mapstructure:"leading_symbol"`
	LeadingName   string `mapstructure:"leading_name"`
	HistoryDays   int    `mapstructure:"history_days"`
}

// ETFConfig lists the ETFs advised on flat days and the run whose statistics
// are used for the advice
type ETFConfig struct {
	Symbols []string `mapstructure:"symbols"`
	Run     string   `mapstructure:"run"`
}

// EngineConfig holds the volatility window and threshold calibration
type EngineConfig struct {
	VolWindow          int `mapstructure:"vol_window"`
	engine.Calibration `mapstructure:",squash"`
}

// RunConfig describes one backtest run
type RunConfig struct {
	Name         string `mapstructure:"name"`
	Universe     string `mapstructure:"universe"`
	LookbackDays int    `mapstructure:"lookback_days"`
	HorizonDays  int    `mapstructure:"horizon_days"`
	Mode         string `mapstructure:"mode"`
}

// CompositeConfig lists the runs merged into the short and long blocks
type CompositeConfig struct {
	Short []string `mapstructure:"short"`
	Long  []string `mapstructure:"long"`
}

// YahooConfig holds market data client configuration
type YahooConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelayBase    time.Duration `mapstructure:"retry_delay_base"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	BreakerFailures   uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout    time.Duration `mapstructure:"breaker_timeout"`
}

// WorkersConfig bounds concurrent fetches per run
type WorkersConfig struct {
	FetchConcurrency int `mapstructure:"fetch_concurrency"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds run history configuration
type StorageConfig struct {
	MaxReports int    `mapstructure:"max_reports"`
	DBPath     string `mapstructure:"db_path"`
}

// ScheduleConfig holds the daemon's cron schedule
type ScheduleConfig struct {
	Cron     string `mapstructure:"cron"`
	Timezone string `mapstructure:"timezone"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	setDefaults(v)

	// LEADLAG_TELEGRAM_BOT_TOKEN overrides telegram.bot_token
	v.SetEnvPrefix("LEADLAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("market.leading_symbol", "QQQ")
	v.SetDefault("market.leading_name", "Nasdaq 100")
	v.SetDefault("market.history_days", 500)

	v.SetDefault("etfs.symbols", []string{"0050.TW", "0052.TW"})
	v.SetDefault("etfs.run", "core_3m")

	cal := engine.DefaultCalibration()
	v.SetDefault("engine.vol_window", 20)
	v.SetDefault("engine.base_low", cal.BaseLow)
	v.SetDefault("engine.base_high", cal.BaseHigh)
	v.SetDefault("engine.vol_low", cal.VolLow)
	v.SetDefault("engine.vol_high", cal.VolHigh)

	p := recommend.DefaultPolicy()
	v.SetDefault("policy.min_samples", p.MinSamples)
	v.SetDefault("policy.short_min_return", p.ShortMinReturn)
	v.SetDefault("policy.long_min_return", p.LongMinReturn)
	v.SetDefault("policy.long_horizon_days", p.LongHorizonDays)
	v.SetDefault("policy.tie_epsilon", p.TieEpsilon)
	v.SetDefault("policy.win_weight", p.WinWeight)
	v.SetDefault("policy.return_weight", p.ReturnWeight)
	v.SetDefault("policy.return_scale", p.ReturnScale)
	v.SetDefault("policy.top_n", p.TopN)
	v.SetDefault("policy.flat_min_samples", p.FlatMinSamples)
	v.SetDefault("policy.flat_min_return", p.FlatMinReturn)
	v.SetDefault("policy.flat_min_win_rate", p.FlatMinWinRate)

	v.SetDefault("runs", []map[string]interface{}{
		{"name": "core_3m", "universe": "core", "lookback_days": 95, "horizon_days": 3, "mode": "decide"},
		{"name": "core_6m", "universe": "core", "lookback_days": 185, "horizon_days": 3, "mode": "decide"},
		{"name": "screen_3m", "universe": "screen", "lookback_days": 120, "horizon_days": 3, "mode": "ranked"},
		{"name": "screen_10d", "universe": "screen", "lookback_days": 200, "horizon_days": 10, "mode": "ranked"},
	})
	v.SetDefault("intersections", [][]string{{"core_3m", "core_6m"}})
	v.SetDefault("composite.short", []string{"core_3m", "screen_3m"})
	v.SetDefault("composite.long", []string{"screen_10d"})

	v.SetDefault("yahoo.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("yahoo.timeout", "30s")
	v.SetDefault("yahoo.max_retries", 3)
	v.SetDefault("yahoo.retry_delay_base", "1s")
	v.SetDefault("yahoo.requests_per_second", 2.0)
	v.SetDefault("yahoo.burst", 2)
	v.SetDefault("yahoo.breaker_failures", 5)
	v.SetDefault("yahoo.breaker_timeout", "60s")

	v.SetDefault("workers.fetch_concurrency", 4)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("storage.max_reports", 90)
	v.SetDefault("storage.db_path", "./data/leadlag.db")

	v.SetDefault("schedule.cron", "0 0 7 * * MON-FRI")
	v.SetDefault("schedule.timezone", "Asia/Taipei")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", engine.ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Market.LeadingSymbol == "" {
		return invalid("market.leading_symbol is required")
	}
	if c.Market.HistoryDays <= c.Engine.VolWindow {
		return invalid("market.history_days must exceed engine.vol_window")
	}

	if len(c.Universes) == 0 {
		return invalid("universes must define at least one universe")
	}
	for name, insts := range c.Universes {
		if len(insts) == 0 {
			return invalid("universes.%s must contain at least one instrument", name)
		}
		for _, inst := range insts {
			if inst.Symbol == "" {
				return invalid("universes.%s contains an instrument without a symbol", name)
			}
		}
	}

	if err := c.Params().Validate(); err != nil {
		return err
	}
	if err := c.Policy.Validate(); err != nil {
		return err
	}

	if len(c.Runs) == 0 {
		return invalid("runs must contain at least one run")
	}
	runs := make(map[string]bool, len(c.Runs))
	for _, r := range c.Runs {
		if runs[r.Name] {
			return invalid("runs.%s is defined twice", r.Name)
		}
		runs[r.Name] = true
		if _, ok := c.Universes[strings.ToLower(r.Universe)]; !ok {
			return invalid("runs.%s references unknown universe %q", r.Name, r.Universe)
		}
		if r.Mode != string(recommend.ModeDecide) && r.Mode != string(recommend.ModeRanked) {
			return invalid("runs.%s mode must be one of: decide, ranked", r.Name)
		}
		if err := r.spec().Validate(); err != nil {
			return err
		}
	}

	for _, pair := range c.Intersections {
		if len(pair) != 2 {
			return invalid("intersections entries must name exactly two runs")
		}
		for _, name := range pair {
			if !runs[name] {
				return invalid("intersections references unknown run %q", name)
			}
		}
	}
	for _, name := range append(append([]string(nil), c.Composite.Short...), c.Composite.Long...) {
		if !runs[name] {
			return invalid("composite references unknown run %q", name)
		}
	}
	if len(c.ETFs.Symbols) > 0 && !runs[c.ETFs.Run] {
		return invalid("etfs.run references unknown run %q", c.ETFs.Run)
	}

	if c.Yahoo.BaseURL == "" {
		return invalid("yahoo.base_url is required")
	}
	if c.Yahoo.Timeout <= 0 {
		return invalid("yahoo.timeout must be positive")
	}
	if c.Yahoo.MaxRetries < 1 {
		return invalid("yahoo.max_retries must be at least 1")
	}
	if c.Yahoo.RequestsPerSecond < 0 {
		return invalid("yahoo.requests_per_second must not be negative")
	}
	if c.Workers.FetchConcurrency < 1 {
		return invalid("workers.fetch_concurrency must be at least 1")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return invalid("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return invalid("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Storage.MaxReports < 1 {
		return invalid("storage.max_reports must be at least 1")
	}
	if c.Storage.DBPath == "" {
		return invalid("storage.db_path is required")
	}

	if c.Schedule.Cron == "" {
		return invalid("schedule.cron is required")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return invalid("schedule.timezone %q is not a known location", c.Schedule.Timezone)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return invalid("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return invalid("logging.format must be one of: json, text")
	}

	return nil
}

func (r RunConfig) spec() engine.RunSpec {
	return engine.RunSpec{
		Name:         r.Name,
		Universe:     strings.ToLower(r.Universe),
		LookbackDays: r.LookbackDays,
		HorizonDays:  r.HorizonDays,
	}
}

// Params returns the engine calibration
func (c *Config) Params() engine.Params {
	return engine.Params{VolWindow: c.Engine.VolWindow, Calibration: c.Engine.Calibration}
}

// Advisor returns the advisory cycle configuration
func (c *Config) Advisor() advisor.Config {
	runs := make([]advisor.RunConfig, len(c.Runs))
	for i, r := range c.Runs {
		runs[i] = advisor.RunConfig{RunSpec: r.spec(), Mode: recommend.Mode(r.Mode)}
	}

	pairs := make([][2]string, 0, len(c.Intersections))
	for _, p := range c.Intersections {
		if len(p) == 2 {
			pairs = append(pairs, [2]string{p[0], p[1]})
		}
	}

	return advisor.Config{
		Leading:            models.Instrument{Symbol: c.Market.LeadingSymbol, Name: c.Market.LeadingName},
		LeadingHistoryDays: c.Market.HistoryDays,
		Universes:          c.Universes,
		ETFs:               c.ETFs.Symbols,
		FlatRun:            c.ETFs.Run,
		Runs:               runs,
		Intersections:      pairs,
		CompositeShort:     c.Composite.Short,
		CompositeLong:      c.Composite.Long,
		Params:             c.Params(),
		Policy:             c.Policy,
		Workers:            c.Workers.FetchConcurrency,
	}
}

// YahooClient returns the market data client configuration
func (c *Config) YahooClient() yahoo.Config {
	return yahoo.Config{
		BaseURL:           c.Yahoo.BaseURL,
		Timeout:           c.Yahoo.Timeout,
		MaxRetries:        c.Yahoo.MaxRetries,
		RetryDelayBase:    c.Yahoo.RetryDelayBase,
		RequestsPerSecond: c.Yahoo.RequestsPerSecond,
		Burst:             c.Yahoo.Burst,
		BreakerFailures:   c.Yahoo.BreakerFailures,
		BreakerTimeout:    c.Yahoo.BreakerTimeout,
	}
}
