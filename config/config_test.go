package config

import (
	"strings"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidateCatchesFatalConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"live trading without credentials", func(c *Config) {
			c.TradingConfig.Enabled = true
			c.TradingConfig.DryRun = false
		}, "credentials"},
		{"zero workers", func(c *Config) {
			c.ScreenerConfig.Workers = 0
		}, "workers"},
		{"threshold out of range", func(c *Config) {
			c.DecisionConfig.StaticThreshold = 140
		}, "threshold"},
		{"broken breaker", func(c *Config) {
			c.FetchConfig.FailureThreshold = 0
		}, "circuit breaker"},
		{"no timeframes", func(c *Config) {
			c.RegimeConfig.Timeframes = nil
		}, "timeframe"},
		{"zero scan interval", func(c *Config) {
			c.ServiceConfig.ScanIntervalSeconds = 0
		}, "interval"},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: expected an error", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

func TestDryRunDoesNotRequireCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TradingConfig.Enabled = true
	cfg.TradingConfig.DryRun = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("dry run must not require credentials: %v", err)
	}
}
