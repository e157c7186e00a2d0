package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eddiefleurent/ivcrush/internal/decision"
	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/eddiefleurent/ivcrush/internal/provider"
	"github.com/eddiefleurent/ivcrush/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestLoad_ExampleFile(t *testing.T) {
	for _, k := range []string{"TRADIER_API_KEY", "IVCRUSH_AUTH_TOKEN", EnvAccountSize, EnvFramework, EnvStrictThresholds, EnvLogLevel} {
		t.Setenv(k, "")
	}
	cfg, warnings := Load(filepath.Join("..", "..", "config.yaml.example"))
	assert.Empty(t, warnings)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, warnings := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "using defaults")
	assert.Equal(t, Default(), cfg)
}

func TestLoad_SyntaxErrorUsesDefaults(t *testing.T) {
	cfg, warnings := Load(writeConfig(t, "account: [size: 5\n"))
	assert.True(t, hasWarning(warnings, "parsing config"))
	assert.Equal(t, Default().Account, cfg.Account)
}

func TestLoad_FieldErrorsKeepDefaults(t *testing.T) {
	path := writeConfig(t, `
account:
  size: 250000
  max_position_pct: lots
signals:
  iv_rv_threshold: 1.4
  bogus_key: 3
`)
	cfg, warnings := Load(path)

	assert.Equal(t, 250000.0, cfg.Account.Size, "valid sibling still applied")
	assert.Equal(t, 0.05, cfg.Account.MaxPositionPct, "malformed field keeps default")
	assert.Equal(t, 1.4, cfg.Signals.IVRVThreshold)
	assert.True(t, hasWarning(warnings, "bogus_key"))
	assert.True(t, hasWarning(warnings, "lots"))
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_TRADIER_KEY", "secret")
	cfg, warnings := Load(writeConfig(t, "provider:\n  name: tradier\n  api_key: ${TEST_TRADIER_KEY}\n"))
	assert.Empty(t, warnings)
	assert.Equal(t, provider.NameTradier, cfg.Provider.Name)
	assert.Equal(t, "secret", cfg.Provider.APIKey)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvAccountSize:      "50000",
		EnvFramework:        "Hybrid",
		EnvStrictThresholds: "true",
		EnvLogLevel:         "debug",
	}
	cfg := Default()
	warnings := cfg.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	assert.Empty(t, warnings)
	assert.Empty(t, cfg.Normalize())

	assert.Equal(t, 50000.0, cfg.Account.Size)
	assert.Equal(t, string(decision.FrameworkHybrid), cfg.Decision.Framework)
	assert.True(t, cfg.Signals.Strict)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestApplyEnv_MalformedIgnored(t *testing.T) {
	env := map[string]string{EnvAccountSize: "a lot", EnvStrictThresholds: "maybe"}
	cfg := Default()
	warnings := cfg.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	assert.Len(t, warnings, 2)
	assert.Equal(t, Default().Account.Size, cfg.Account.Size)
	assert.False(t, cfg.Signals.Strict)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		check   func(*testing.T, *Config)
		warning string
	}{
		{
			name:    "negative account",
			mutate:  func(c *Config) { c.Account.Size = -1 },
			check:   func(t *testing.T, c *Config) { assert.Equal(t, 100000.0, c.Account.Size) },
			warning: "account.size",
		},
		{
			name:    "utilization is fixed",
			mutate:  func(c *Config) { c.Risk.MaxPortfolioUtilization = 0.9 },
			check:   func(t *testing.T, c *Config) { assert.Equal(t, risk.MaxPortfolioUtilization, c.Risk.MaxPortfolioUtilization) },
			warning: "fixed",
		},
		{
			name:    "unknown framework",
			mutate:  func(c *Config) { c.Decision.Framework = "aggressive" },
			check:   func(t *testing.T, c *Config) { assert.Equal(t, "original", c.Decision.Framework) },
			warning: "decision.framework",
		},
		{
			name:   "option type case folded",
			mutate: func(c *Config) { c.Trade.OptionType = "PUT" },
			check:  func(t *testing.T, c *Config) { assert.Equal(t, "put", c.Trade.OptionType) },
		},
		{
			name:    "bad option type",
			mutate:  func(c *Config) { c.Trade.OptionType = "straddle" },
			check:   func(t *testing.T, c *Config) { assert.Equal(t, "call", c.Trade.OptionType) },
			warning: "trade.option_type",
		},
		{
			name:    "negative weight",
			mutate:  func(c *Config) { c.Decision.Weights.Timing = -0.1 },
			check:   func(t *testing.T, c *Config) { assert.Equal(t, decision.DefaultWeights(), c.Decision.Weights) },
			warning: "decision.weights",
		},
		{
			name:    "step larger than range",
			mutate:  func(c *Config) { c.PnL.PriceRangePct = 5; c.PnL.PriceStepPct = 8 },
			check:   func(t *testing.T, c *Config) { assert.Equal(t, 1.0, c.PnL.PriceStepPct) },
			warning: "pnl.price_step_pct",
		},
		{
			name:    "target win rate below minimum",
			mutate:  func(c *Config) { c.Decision.TargetWinRate = 0.2 },
			check:   func(t *testing.T, c *Config) { assert.Equal(t, 0.70, c.Decision.TargetWinRate) },
			warning: "decision.target_win_rate",
		},
		{
			name:    "tradier without key",
			mutate:  func(c *Config) { c.Provider.Name = "tradier" },
			check:   func(t *testing.T, c *Config) { assert.Equal(t, provider.NameMock, c.Provider.Name) },
			warning: "api_key",
		},
		{
			name:   "sqlite default path",
			mutate: func(c *Config) { c.Storage.Backend = "SQLite"; c.Storage.Path = "" },
			check:  func(t *testing.T, c *Config) { assert.Equal(t, "data/positions.db", c.Storage.Path) },
		},
		{
			name:    "bad duration",
			mutate:  func(c *Config) { c.Provider.CacheTTL = "forever" },
			check:   func(t *testing.T, c *Config) { assert.Equal(t, "5m", c.Provider.CacheTTL) },
			warning: "provider.cache_ttl",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "chatty" },
			check:   func(t *testing.T, c *Config) { assert.Equal(t, "info", c.Logging.Level) },
			warning: "logging.level",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			check:   func(t *testing.T, c *Config) { assert.Equal(t, 8080, c.Server.Port) },
			warning: "server.port",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			warnings := cfg.Normalize()
			tt.check(t, cfg)
			if tt.warning == "" {
				assert.Empty(t, warnings)
			} else {
				assert.True(t, hasWarning(warnings, tt.warning), "warnings: %v", warnings)
			}
		})
	}
}

func TestDefaultsNormalizeCleanly(t *testing.T) {
	assert.Empty(t, Default().Normalize())
}

func TestConverters(t *testing.T) {
	cfg := Default()
	cfg.Account.Size = 40000
	cfg.Signals.Strict = true
	cfg.Trade.OptionType = "put"
	cfg.Decision.Framework = "enhanced"
	cfg.Provider.Timeout = "3s"
	cfg.Provider.MaxRetries = 1
	require.Empty(t, cfg.Normalize())

	ac := cfg.AnalyzerConfig()
	assert.True(t, ac.StrictThresholds)
	assert.Equal(t, 40000.0, ac.Sizing.AccountSize)
	assert.Equal(t, models.OptionTypePut, ac.Trade.OptionType)
	assert.Equal(t, decision.FrameworkEnhanced, ac.Decision.Framework)
	assert.Equal(t, -0.00406, ac.Thresholds.TSSlope)
	assert.Equal(t, 0.7, ac.PnL.Multipliers.Conservative)
	assert.Equal(t, 4, ac.BatchConcurrency)

	lim := cfg.RiskLimits()
	assert.Equal(t, 40000.0, lim.AccountSize)
	assert.Equal(t, 0.20, lim.MaxConcentrationPct)

	ps := cfg.ProviderSettings()
	assert.Equal(t, 3*time.Second, ps.Timeout)
	assert.Equal(t, 5*time.Minute, ps.CacheTTL)
	assert.Equal(t, 1, ps.Retry.MaxRetries)

	lo := cfg.LogOptions()
	assert.Equal(t, "info", lo.Level)
	assert.Equal(t, "text", lo.Format)
}
