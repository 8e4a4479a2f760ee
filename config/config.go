// Package config loads the service configuration from an optional JSON
// file with environment-variable overrides. Fatal problems (missing
// credentials with trading enabled, nonsense thresholds) are surfaced once
// at startup.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	BinanceConfig  BinanceConfig  `json:"binance"`
	RedisConfig    RedisConfig    `json:"redis"`
	FetchConfig    FetchConfig    `json:"fetch"`
	ScreenerConfig ScreenerConfig `json:"screener"`
	RegimeConfig   RegimeConfig   `json:"regime"`
	DecisionConfig DecisionConfig `json:"decision"`
	TradingConfig  TradingConfig  `json:"trading"`
	LoggingConfig  LoggingConfig  `json:"logging"`
	ServiceConfig  ServiceConfig  `json:"service"`
}

type BinanceConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	TestNet   bool   `json:"testnet"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type FetchConfig struct {
	FailureThreshold int `json:"failure_threshold"`
	RecoverySeconds  int `json:"recovery_seconds"`
}

type ScreenerConfig struct {
	Workers         int      `json:"workers"`
	MinQuoteVolume  float64  `json:"min_quote_volume"`
	MinAbsChangePct float64  `json:"min_abs_change_pct"`
	ResultLimit     int      `json:"result_limit"`
	Timeframe       string   `json:"timeframe"`
	TrendTimeframe  string   `json:"trend_timeframe"`
	ExcludedSymbols []string `json:"excluded_symbols"`
}

type RegimeConfig struct {
	Timeframes         []string `json:"timeframes"`
	ThresholdRanging   int      `json:"threshold_ranging"`
	ThresholdTrending  int      `json:"threshold_trending"`
	ThresholdExplosive int      `json:"threshold_explosive"`
	BasePositionUsd    float64  `json:"base_position_usd"`
}

type DecisionConfig struct {
	StaticThreshold int `json:"static_threshold"`
}

type TradingConfig struct {
	Enabled  bool `json:"enabled"`
	DryRun   bool `json:"dry_run"`
	Leverage int  `json:"leverage"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Output string `json:"output"`
	Pretty bool   `json:"pretty"`
}

type ServiceConfig struct {
	ScanIntervalSeconds    int    `json:"scan_interval_seconds"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds"`
	LeaderLockKey          string `json:"leader_lock_key"`
	LeaderLockTTLSeconds   int    `json:"leader_lock_ttl_seconds"`
	LiquidationWindowSecs  int    `json:"liquidation_window_seconds"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		RedisConfig: RedisConfig{
			Enabled: true,
			Addr:    "localhost:6379",
		},
		FetchConfig: FetchConfig{
			FailureThreshold: 5,
			RecoverySeconds:  60,
		},
		ScreenerConfig: ScreenerConfig{
			Workers:         10,
			MinQuoteVolume:  5_000_000,
			MinAbsChangePct: 1.0,
			ResultLimit:     20,
			Timeframe:       "15m",
			TrendTimeframe:  "4h",
		},
		RegimeConfig: RegimeConfig{
			Timeframes:         []string{"15m", "1h", "4h"},
			ThresholdRanging:   65,
			ThresholdTrending:  60,
			ThresholdExplosive: 70,
			BasePositionUsd:    1_000,
		},
		DecisionConfig: DecisionConfig{
			StaticThreshold: 75,
		},
		TradingConfig: TradingConfig{
			Enabled:  false,
			DryRun:   true,
			Leverage: 3,
		},
		LoggingConfig: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
		ServiceConfig: ServiceConfig{
			ScanIntervalSeconds:    300,
			ShutdownTimeoutSeconds: 30,
			LeaderLockKey:          "market-sentry:stream-leader",
			LeaderLockTTLSeconds:   30,
			LiquidationWindowSecs:  300,
		},
	}
}

// Load reads the config file named by CONFIG_PATH (default config.json when
// it exists), applies env overrides and validates the result.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.json"
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && os.Getenv("CONFIG_PATH") == "":
		// No file, defaults plus env are fine.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.BinanceConfig.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.BinanceConfig.APIKey)
	cfg.BinanceConfig.SecretKey = getEnvOrDefault("BINANCE_SECRET_KEY", cfg.BinanceConfig.SecretKey)
	if v := os.Getenv("BINANCE_TESTNET"); v != "" {
		cfg.BinanceConfig.TestNet = v == "true"
	}

	cfg.RedisConfig.Addr = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Addr)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		cfg.RedisConfig.Enabled = v == "true"
	}
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	if v := os.Getenv("TRADING_ENABLED"); v != "" {
		cfg.TradingConfig.Enabled = v == "true"
	}
	if v := os.Getenv("TRADING_DRY_RUN"); v != "" {
		cfg.TradingConfig.DryRun = v == "true"
	}

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	if v := os.Getenv("LOG_PRETTY"); v != "" {
		cfg.LoggingConfig.Pretty = v == "true"
	}

	cfg.ServiceConfig.ScanIntervalSeconds = getEnvIntOrDefault("SCAN_INTERVAL_SECONDS", cfg.ServiceConfig.ScanIntervalSeconds)
}

// Validate surfaces fatal configuration problems before anything starts.
func (c *Config) Validate() error {
	if c.TradingConfig.Enabled && !c.TradingConfig.DryRun {
		if c.BinanceConfig.APIKey == "" || c.BinanceConfig.SecretKey == "" {
			return fmt.Errorf("live trading enabled without api credentials")
		}
	}
	if c.ScreenerConfig.Workers <= 0 {
		return fmt.Errorf("screener workers must be positive, got %d", c.ScreenerConfig.Workers)
	}
	if c.DecisionConfig.StaticThreshold < 0 || c.DecisionConfig.StaticThreshold > 100 {
		return fmt.Errorf("decision threshold %d outside [0,100]", c.DecisionConfig.StaticThreshold)
	}
	if c.FetchConfig.FailureThreshold <= 0 || c.FetchConfig.RecoverySeconds <= 0 {
		return fmt.Errorf("circuit breaker thresholds must be positive")
	}
	if len(c.RegimeConfig.Timeframes) == 0 {
		return fmt.Errorf("at least one regime timeframe required")
	}
	if c.ServiceConfig.ScanIntervalSeconds <= 0 {
		return fmt.Errorf("scan interval must be positive")
	}
	return nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
