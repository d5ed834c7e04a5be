package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		TradingConfig: TradingConfig{
			TickInterval:    time.Minute,
			SlotCapitalUnit: 2500,
			DryRun:          true,
		},
		RiskConfig: RiskConfig{
			RiskPerTradePct:     2.0,
			MaxDailyLossPct:     5.0,
			MaxPortfolioRiskPct: 20.0,
		},
		CircuitConfig: CircuitConfig{
			L1Drop24h: -0.05,
			L2Drop24h: -0.10,
			L3Drop7d:  -0.20,
		},
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero slot unit", func(c *Config) { c.TradingConfig.SlotCapitalUnit = 0 }},
		{"negative per-trade risk", func(c *Config) { c.RiskConfig.RiskPerTradePct = -1 }},
		{"portfolio cap under per-trade risk", func(c *Config) { c.RiskConfig.MaxPortfolioRiskPct = 1 }},
		{"inverted circuit thresholds", func(c *Config) { c.CircuitConfig.L2Drop24h = -0.04 }},
		{"live mode without jwt secret", func(c *Config) { c.TradingConfig.DryRun = false }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoad_EnvDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.TradingConfig.TickInterval != 60*time.Second {
		t.Errorf("Expected default tick interval 60s, got %v", cfg.TradingConfig.TickInterval)
	}
	if !cfg.TradingConfig.DryRun {
		t.Error("Expected dry-run to default on")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate: %v", err)
	}
}
