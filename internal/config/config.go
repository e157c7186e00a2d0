// Package config loads the analyzer configuration from YAML. Loading never
// fails: anything missing or malformed keeps its documented default and is
// reported as a warning.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/eddiefleurent/ivcrush/internal/analyzer"
	"github.com/eddiefleurent/ivcrush/internal/decision"
	"github.com/eddiefleurent/ivcrush/internal/logging"
	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/eddiefleurent/ivcrush/internal/pnl"
	"github.com/eddiefleurent/ivcrush/internal/provider"
	"github.com/eddiefleurent/ivcrush/internal/risk"
	"github.com/eddiefleurent/ivcrush/internal/signals"
	"github.com/eddiefleurent/ivcrush/internal/sizing"
	"github.com/eddiefleurent/ivcrush/internal/storage"
	"github.com/eddiefleurent/ivcrush/internal/trade"
	"github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvAccountSize      = "IVCRUSH_ACCOUNT_SIZE"
	EnvFramework        = "IVCRUSH_FRAMEWORK"
	EnvStrictThresholds = "IVCRUSH_STRICT_THRESHOLDS"
	EnvLogLevel         = "IVCRUSH_LOG_LEVEL"
)

// DefaultPath is read when no path is given.
const DefaultPath = "config.yaml"

// Config represents the complete application configuration.
type Config struct {
	Account  AccountConfig  `yaml:"account"`
	Signals  SignalsConfig  `yaml:"signals"`
	Trade    TradeConfig    `yaml:"trade"`
	PnL      PnLConfig      `yaml:"pnl"`
	Sizing   SizingConfig   `yaml:"sizing"`
	Risk     RiskConfig     `yaml:"risk"`
	Decision DecisionConfig `yaml:"decision"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Storage  StorageConfig  `yaml:"storage"`
	Provider ProviderConfig `yaml:"provider"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AccountConfig is the trading account.
type AccountConfig struct {
	Size           float64 `yaml:"size"`
	MaxPositionPct float64 `yaml:"max_position_pct"`
}

// SignalsConfig holds the three signal thresholds.
type SignalsConfig struct {
	TSSlopeThreshold float64 `yaml:"ts_slope_threshold"`
	IVRVThreshold    float64 `yaml:"iv_rv_threshold"`
	MinAvgVolume     float64 `yaml:"min_avg_volume"`
	SlopeWindowDays  float64 `yaml:"slope_window_days"`
	// Strict rejects values exactly at a threshold.
	Strict bool `yaml:"strict"`
}

// TradeConfig controls expiration selection and liquidity checks.
type TradeConfig struct {
	MaxSpreadPct      float64 `yaml:"max_spread_pct"`
	MinOpenInterest   int64   `yaml:"min_open_interest"`
	BackTargetGapDays int     `yaml:"back_target_gap_days"`
	OptionType        string  `yaml:"option_type"`
	RiskFreeRate      float64 `yaml:"risk_free_rate"`
	IncludeStraddle   bool    `yaml:"include_straddle"`
}

// PnLConfig shapes the scenario grid.
type PnLConfig struct {
	PriceRangePct float64 `yaml:"price_range_pct"`
	PriceStepPct  float64 `yaml:"price_step_pct"`
	Conservative  float64 `yaml:"conservative"`
	Expected      float64 `yaml:"expected"`
	Optimistic    float64 `yaml:"optimistic"`
}

// SizingConfig tunes fractional Kelly.
type SizingConfig struct {
	KellyMultiplier      float64 `yaml:"kelly_multiplier"`
	EmergencyCeiling     float64 `yaml:"emergency_ceiling"`
	Floor                float64 `yaml:"floor"`
	PracticalContractCap int     `yaml:"practical_contract_cap"`
	AccountPerContract   float64 `yaml:"account_per_contract"`
}

// RiskConfig holds the portfolio limits.
type RiskConfig struct {
	// MaxPortfolioUtilization is fixed at 0.75; other values are reset.
	MaxPortfolioUtilization float64 `yaml:"max_portfolio_utilization"`
	MaxConcentrationPct     float64 `yaml:"max_concentration_pct"`
	MaxPortfolioDelta       float64 `yaml:"max_portfolio_delta"`
}

// DecisionConfig selects and tunes the decision framework.
type DecisionConfig struct {
	Framework         string           `yaml:"framework"`
	Weights           decision.Weights `yaml:"weights"`
	MinWinRate        float64          `yaml:"min_win_rate"`
	TargetWinRate     float64          `yaml:"target_win_rate"`
	MinRiskReward     float64          `yaml:"min_risk_reward"`
	TargetRiskReward  float64          `yaml:"target_risk_reward"`
	ExecuteScore      float64          `yaml:"execute_score"`
	MinExecuteSignals int              `yaml:"min_execute_signals"`
}

// AnalysisConfig bounds batch work and snapshot size.
type AnalysisConfig struct {
	BatchConcurrency int `yaml:"batch_concurrency"`
	MaxExpirations   int `yaml:"max_expirations"`
}

// StorageConfig defines storage settings for the position ledger.
type StorageConfig struct {
	Backend string `yaml:"backend"` // json | sqlite
	Path    string `yaml:"path"`
}

// ProviderConfig selects the market-data source.
type ProviderConfig struct {
	Name              string `yaml:"name"` // mock | tradier
	APIKey            string `yaml:"api_key"`
	BaseURL           string `yaml:"base_url"`
	Sandbox           bool   `yaml:"sandbox"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	Timeout           string `yaml:"timeout"`
	MaxRetries        int    `yaml:"max_retries"`
	RedisAddr         string `yaml:"redis_addr"`
	CacheTTL          string `yaml:"cache_ttl"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the documented defaults.
func Default() *Config {
	sz := sizing.DefaultConfig()
	lim := risk.DefaultLimits()
	tr := trade.DefaultConfig()
	grid := pnl.DefaultConfig()
	enh := decision.DefaultEnhancedConfig()
	logOpts := logging.DefaultOptions()

	return &Config{
		Account: AccountConfig{Size: sz.AccountSize, MaxPositionPct: sz.MaxPositionPct},
		Signals: SignalsConfig{
			TSSlopeThreshold: signals.DefaultTSSlopeThreshold,
			IVRVThreshold:    signals.DefaultIVRVThreshold,
			MinAvgVolume:     signals.DefaultMinAvgVolume,
			SlopeWindowDays:  signals.DefaultSlopeWindowDays,
		},
		Trade: TradeConfig{
			MaxSpreadPct:      tr.Limits.MaxSpreadPct,
			MinOpenInterest:   tr.Limits.MinOpenInterest,
			BackTargetGapDays: tr.BackTargetGapDays,
			OptionType:        string(tr.OptionType),
			RiskFreeRate:      tr.RiskFreeRate,
			IncludeStraddle:   tr.IncludeStraddle,
		},
		PnL: PnLConfig{
			PriceRangePct: grid.PriceRangePct,
			PriceStepPct:  grid.PriceStepPct,
			Conservative:  grid.Multipliers.Conservative,
			Expected:      grid.Multipliers.Expected,
			Optimistic:    grid.Multipliers.Optimistic,
		},
		Sizing: SizingConfig{
			KellyMultiplier:      sz.KellyMultiplier,
			EmergencyCeiling:     sz.EmergencyCeiling,
			Floor:                sz.MinFraction,
			PracticalContractCap: sz.PracticalContractCap,
			AccountPerContract:   sz.AccountPerContract,
		},
		Risk: RiskConfig{
			MaxPortfolioUtilization: risk.MaxPortfolioUtilization,
			MaxConcentrationPct:     lim.MaxConcentrationPct,
			MaxPortfolioDelta:       lim.MaxPortfolioDelta,
		},
		Decision: DecisionConfig{
			Framework:         string(decision.FrameworkOriginal),
			Weights:           enh.Weights,
			MinWinRate:        enh.MinWinRate,
			TargetWinRate:     enh.TargetWinRate,
			MinRiskReward:     enh.MinRiskReward,
			TargetRiskReward:  enh.TargetRiskReward,
			ExecuteScore:      enh.ExecuteScore,
			MinExecuteSignals: enh.MinExecuteSignals,
		},
		Analysis: AnalysisConfig{
			BatchConcurrency: analyzer.DefaultConfig().BatchConcurrency,
			MaxExpirations:   provider.DefaultMaxExpirations,
		},
		Storage: StorageConfig{Backend: storage.BackendJSON, Path: "data/positions.json"},
		Provider: ProviderConfig{
			Name:       provider.NameMock,
			Sandbox:    true,
			Timeout:    "10s",
			MaxRetries: provider.DefaultRetryConfig.MaxRetries,
			CacheTTL:   "5m",
		},
		Server: ServerConfig{Port: 8080},
		Logging: LoggingConfig{
			Level:      logOpts.Level,
			Format:     logOpts.Format,
			MaxSizeMB:  logOpts.MaxSizeMB,
			MaxBackups: logOpts.MaxBackups,
			MaxAgeDays: logOpts.MaxAgeDays,
		},
	}
}

// Load reads path on top of the defaults, applies environment overrides and
// normalizes the result. Every problem becomes a warning; the returned
// config is always usable.
func Load(path string) (*Config, []string) {
	if path == "" {
		path = DefaultPath
	}
	cfg := Default()
	var warnings []string

	data, err := os.ReadFile(path) // #nosec G304 -- path is a user-provided config file path
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("reading config file: %v; using defaults", err))
	} else {
		warnings = append(warnings, cfg.decode(data)...)
	}

	warnings = append(warnings, cfg.ApplyEnv(os.LookupEnv)...)
	warnings = append(warnings, cfg.Normalize()...)
	return cfg, warnings
}

// decode applies YAML over cfg. Field-level type errors and unknown keys
// leave the affected defaults in place.
func (c *Config) decode(data []byte) []string {
	expanded := os.ExpandEnv(string(data))
	if strings.TrimSpace(expanded) == "" {
		return nil
	}

	decoded := *c
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	err := dec.Decode(&decoded)
	if err == nil || errors.Is(err, io.EOF) {
		*c = decoded
		return nil
	}

	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		*c = decoded
		out := make([]string, 0, len(typeErr.Errors))
		for _, e := range typeErr.Errors {
			out = append(out, "config: "+e+"; keeping default")
		}
		return out
	}
	return []string{fmt.Sprintf("parsing config: %v; using defaults", err)}
}

// ApplyEnv applies the IVCRUSH_* overrides found by lookup. Malformed values
// are ignored with a warning.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) []string {
	var warnings []string
	if v, ok := lookup(EnvAccountSize); ok && v != "" {
		size, err := strconv.ParseFloat(v, 64)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s=%q is not a number; ignored", EnvAccountSize, v))
		} else {
			c.Account.Size = size
		}
	}
	if v, ok := lookup(EnvFramework); ok && v != "" {
		c.Decision.Framework = v
	}
	if v, ok := lookup(EnvStrictThresholds); ok && v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s=%q is not a boolean; ignored", EnvStrictThresholds, v))
		} else {
			c.Signals.Strict = strict
		}
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	return warnings
}

type normalizer struct {
	warnings []string
}

func (n *normalizer) warnf(format string, args ...any) {
	n.warnings = append(n.warnings, fmt.Sprintf(format, args...))
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// float resets *v to def unless ok(*v).
func (n *normalizer) float(name string, v *float64, def float64, ok func(float64) bool) {
	if finite(*v) && ok(*v) {
		return
	}
	n.warnf("%s=%v out of range; using %v", name, *v, def)
	*v = def
}

func (n *normalizer) integer(name string, v *int, def int, ok func(int) bool) {
	if ok(*v) {
		return
	}
	n.warnf("%s=%d out of range; using %d", name, *v, def)
	*v = def
}

func positive(v float64) bool     { return v > 0 }
func fraction(v float64) bool     { return v > 0 && v <= 1 }
func nonNegative(v float64) bool  { return v >= 0 }
func positiveInt(v int) bool      { return v > 0 }
func nonNegativeInt(v int) bool   { return v >= 0 }
func any64(float64) bool          { return true }
func unitInterval(v float64) bool { return v >= 0 && v < 1 }

// Normalize resets out-of-range values to their defaults and returns a
// warning for each.
func (c *Config) Normalize() []string {
	def := Default()
	n := &normalizer{}

	n.float("account.size", &c.Account.Size, def.Account.Size, positive)
	n.float("account.max_position_pct", &c.Account.MaxPositionPct, def.Account.MaxPositionPct, fraction)

	n.float("signals.ts_slope_threshold", &c.Signals.TSSlopeThreshold, def.Signals.TSSlopeThreshold, any64)
	n.float("signals.iv_rv_threshold", &c.Signals.IVRVThreshold, def.Signals.IVRVThreshold, positive)
	n.float("signals.min_avg_volume", &c.Signals.MinAvgVolume, def.Signals.MinAvgVolume, nonNegative)
	n.float("signals.slope_window_days", &c.Signals.SlopeWindowDays, def.Signals.SlopeWindowDays, positive)

	n.float("trade.max_spread_pct", &c.Trade.MaxSpreadPct, def.Trade.MaxSpreadPct, positive)
	if c.Trade.MinOpenInterest < 0 {
		n.warnf("trade.min_open_interest=%d out of range; using %d", c.Trade.MinOpenInterest, def.Trade.MinOpenInterest)
		c.Trade.MinOpenInterest = def.Trade.MinOpenInterest
	}
	n.integer("trade.back_target_gap_days", &c.Trade.BackTargetGapDays, def.Trade.BackTargetGapDays, positiveInt)
	if ot := models.OptionType(strings.ToLower(c.Trade.OptionType)); ot.Valid() {
		c.Trade.OptionType = string(ot)
	} else {
		n.warnf("trade.option_type=%q is not call or put; using %s", c.Trade.OptionType, def.Trade.OptionType)
		c.Trade.OptionType = def.Trade.OptionType
	}
	n.float("trade.risk_free_rate", &c.Trade.RiskFreeRate, def.Trade.RiskFreeRate, unitInterval)

	n.float("pnl.price_range_pct", &c.PnL.PriceRangePct, def.PnL.PriceRangePct, func(v float64) bool { return v > 0 && v <= 100 })
	n.float("pnl.price_step_pct", &c.PnL.PriceStepPct, def.PnL.PriceStepPct, positive)
	if c.PnL.PriceStepPct > c.PnL.PriceRangePct {
		n.warnf("pnl.price_step_pct=%v exceeds price_range_pct=%v; using %v", c.PnL.PriceStepPct, c.PnL.PriceRangePct, def.PnL.PriceStepPct)
		c.PnL.PriceStepPct = math.Min(def.PnL.PriceStepPct, c.PnL.PriceRangePct)
	}
	n.float("pnl.conservative", &c.PnL.Conservative, def.PnL.Conservative, positive)
	n.float("pnl.expected", &c.PnL.Expected, def.PnL.Expected, positive)
	n.float("pnl.optimistic", &c.PnL.Optimistic, def.PnL.Optimistic, positive)

	n.float("sizing.kelly_multiplier", &c.Sizing.KellyMultiplier, def.Sizing.KellyMultiplier, fraction)
	n.float("sizing.emergency_ceiling", &c.Sizing.EmergencyCeiling, def.Sizing.EmergencyCeiling, fraction)
	n.float("sizing.floor", &c.Sizing.Floor, def.Sizing.Floor, func(v float64) bool { return v >= 0 && v < c.Sizing.EmergencyCeiling })
	n.integer("sizing.practical_contract_cap", &c.Sizing.PracticalContractCap, def.Sizing.PracticalContractCap, positiveInt)
	n.float("sizing.account_per_contract", &c.Sizing.AccountPerContract, def.Sizing.AccountPerContract, positive)

	if c.Risk.MaxPortfolioUtilization != risk.MaxPortfolioUtilization {
		n.warnf("risk.max_portfolio_utilization is fixed at %v; ignoring %v", risk.MaxPortfolioUtilization, c.Risk.MaxPortfolioUtilization)
		c.Risk.MaxPortfolioUtilization = risk.MaxPortfolioUtilization
	}
	n.float("risk.max_concentration_pct", &c.Risk.MaxConcentrationPct, def.Risk.MaxConcentrationPct, fraction)
	n.float("risk.max_portfolio_delta", &c.Risk.MaxPortfolioDelta, def.Risk.MaxPortfolioDelta, positive)

	if f, err := decision.ParseFramework(c.Decision.Framework); err != nil {
		n.warnf("decision.framework=%q unknown; using %s", c.Decision.Framework, def.Decision.Framework)
		c.Decision.Framework = def.Decision.Framework
	} else {
		c.Decision.Framework = string(f)
	}
	if !validWeights(c.Decision.Weights) {
		n.warnf("decision.weights must be non-negative with a positive sum; using defaults")
		c.Decision.Weights = decision.DefaultWeights()
	}
	n.float("decision.min_win_rate", &c.Decision.MinWinRate, def.Decision.MinWinRate, unitInterval)
	n.float("decision.target_win_rate", &c.Decision.TargetWinRate, def.Decision.TargetWinRate,
		func(v float64) bool { return v > c.Decision.MinWinRate && v <= 1 })
	n.float("decision.min_risk_reward", &c.Decision.MinRiskReward, def.Decision.MinRiskReward, nonNegative)
	n.float("decision.target_risk_reward", &c.Decision.TargetRiskReward, def.Decision.TargetRiskReward, positive)
	n.float("decision.execute_score", &c.Decision.ExecuteScore, def.Decision.ExecuteScore, fraction)
	n.integer("decision.min_execute_signals", &c.Decision.MinExecuteSignals, def.Decision.MinExecuteSignals,
		func(v int) bool { return v >= 0 && v <= 3 })

	n.integer("analysis.batch_concurrency", &c.Analysis.BatchConcurrency, def.Analysis.BatchConcurrency, positiveInt)
	n.integer("analysis.max_expirations", &c.Analysis.MaxExpirations, def.Analysis.MaxExpirations,
		func(v int) bool { return v >= 2 })

	switch strings.ToLower(c.Storage.Backend) {
	case storage.BackendJSON, storage.BackendSQLite:
		c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	default:
		n.warnf("storage.backend=%q unknown; using %s", c.Storage.Backend, def.Storage.Backend)
		c.Storage.Backend = def.Storage.Backend
	}
	if c.Storage.Path == "" {
		c.Storage.Path = def.Storage.Path
		if c.Storage.Backend == storage.BackendSQLite {
			c.Storage.Path = "data/positions.db"
		}
	}

	switch strings.ToLower(c.Provider.Name) {
	case provider.NameMock:
		c.Provider.Name = provider.NameMock
	case provider.NameTradier:
		c.Provider.Name = provider.NameTradier
		if c.Provider.APIKey == "" {
			n.warnf("provider.api_key is empty; using the mock provider")
			c.Provider.Name = provider.NameMock
		}
	default:
		n.warnf("provider.name=%q unknown; using %s", c.Provider.Name, def.Provider.Name)
		c.Provider.Name = def.Provider.Name
	}
	n.integer("provider.requests_per_minute", &c.Provider.RequestsPerMinute, 0, nonNegativeInt)
	n.integer("provider.max_retries", &c.Provider.MaxRetries, def.Provider.MaxRetries, nonNegativeInt)
	n.duration("provider.timeout", &c.Provider.Timeout, def.Provider.Timeout)
	n.duration("provider.cache_ttl", &c.Provider.CacheTTL, def.Provider.CacheTTL)

	n.integer("server.port", &c.Server.Port, def.Server.Port, func(v int) bool { return v > 0 && v <= 65535 })

	if _, err := logrus.ParseLevel(strings.TrimSpace(c.Logging.Level)); err != nil {
		n.warnf("logging.level=%q unknown; using %s", c.Logging.Level, def.Logging.Level)
		c.Logging.Level = def.Logging.Level
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
		c.Logging.Format = strings.ToLower(c.Logging.Format)
	default:
		n.warnf("logging.format=%q unknown; using %s", c.Logging.Format, def.Logging.Format)
		c.Logging.Format = def.Logging.Format
	}
	n.integer("logging.max_size_mb", &c.Logging.MaxSizeMB, def.Logging.MaxSizeMB, positiveInt)
	n.integer("logging.max_backups", &c.Logging.MaxBackups, def.Logging.MaxBackups, nonNegativeInt)
	n.integer("logging.max_age_days", &c.Logging.MaxAgeDays, def.Logging.MaxAgeDays, nonNegativeInt)

	return n.warnings
}

func validWeights(w decision.Weights) bool {
	sum := 0.0
	for _, v := range []float64{w.SignalStrength, w.RiskReward, w.WinRate, w.Liquidity, w.PositionSize, w.Timing} {
		if !finite(v) || v < 0 {
			return false
		}
		sum += v
	}
	return sum > 0
}

func (n *normalizer) duration(name string, v *string, def string) {
	d, err := time.ParseDuration(*v)
	if err == nil && d > 0 {
		return
	}
	n.warnf("%s=%q is not a positive duration; using %s", name, *v, def)
	*v = def
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// AnalyzerConfig assembles the per-stage settings.
func (c *Config) AnalyzerConfig() analyzer.Config {
	cfg := analyzer.DefaultConfig()
	cfg.Thresholds = signals.Thresholds{
		TSSlope:         c.Signals.TSSlopeThreshold,
		IVRV:            c.Signals.IVRVThreshold,
		MinAvgVolume:    c.Signals.MinAvgVolume,
		SlopeWindowDays: c.Signals.SlopeWindowDays,
	}
	cfg.StrictThresholds = c.Signals.Strict
	cfg.Trade = trade.Config{
		Limits: trade.Limits{
			MaxSpreadPct:    c.Trade.MaxSpreadPct,
			MinOpenInterest: c.Trade.MinOpenInterest,
		},
		OptionType:        models.OptionType(c.Trade.OptionType),
		BackTargetGapDays: c.Trade.BackTargetGapDays,
		RiskFreeRate:      c.Trade.RiskFreeRate,
		IncludeStraddle:   c.Trade.IncludeStraddle,
	}
	cfg.PnL = pnl.Config{
		Multipliers: pnl.Multipliers{
			Conservative: c.PnL.Conservative,
			Expected:     c.PnL.Expected,
			Optimistic:   c.PnL.Optimistic,
		},
		PriceRangePct: c.PnL.PriceRangePct,
		PriceStepPct:  c.PnL.PriceStepPct,
		RiskFreeRate:  c.Trade.RiskFreeRate,
	}
	cfg.Sizing = sizing.Config{
		AccountSize:          c.Account.Size,
		MaxPositionPct:       c.Account.MaxPositionPct,
		KellyMultiplier:      c.Sizing.KellyMultiplier,
		EmergencyCeiling:     c.Sizing.EmergencyCeiling,
		MinFraction:          c.Sizing.Floor,
		PracticalContractCap: c.Sizing.PracticalContractCap,
		AccountPerContract:   c.Sizing.AccountPerContract,
	}
	cfg.Decision = decision.Config{
		Framework: decision.Framework(c.Decision.Framework),
		Enhanced: decision.EnhancedConfig{
			Weights:           c.Decision.Weights,
			MinWinRate:        c.Decision.MinWinRate,
			TargetWinRate:     c.Decision.TargetWinRate,
			MinRiskReward:     c.Decision.MinRiskReward,
			TargetRiskReward:  c.Decision.TargetRiskReward,
			ExecuteScore:      c.Decision.ExecuteScore,
			MinExecuteSignals: c.Decision.MinExecuteSignals,
		},
	}
	cfg.BatchConcurrency = c.Analysis.BatchConcurrency
	return cfg
}

// RiskLimits returns the portfolio limits.
func (c *Config) RiskLimits() risk.Limits {
	return risk.Limits{
		AccountSize:         c.Account.Size,
		MaxPositionPct:      c.Account.MaxPositionPct,
		MaxConcentrationPct: c.Risk.MaxConcentrationPct,
		MaxPortfolioDelta:   c.Risk.MaxPortfolioDelta,
	}
}

// ProviderSettings returns the provider stack configuration.
func (c *Config) ProviderSettings() provider.Config {
	retry := provider.DefaultRetryConfig
	retry.MaxRetries = c.Provider.MaxRetries
	return provider.Config{
		Name:              c.Provider.Name,
		APIKey:            c.Provider.APIKey,
		BaseURL:           c.Provider.BaseURL,
		RedisAddr:         c.Provider.RedisAddr,
		Sandbox:           c.Provider.Sandbox,
		RequestsPerMinute: c.Provider.RequestsPerMinute,
		Timeout:           mustDuration(c.Provider.Timeout),
		CacheTTL:          mustDuration(c.Provider.CacheTTL),
		Retry:             retry,
		Breaker:           provider.DefaultCircuitBreakerSettings(),
	}
}

// LogOptions returns the logger settings.
func (c *Config) LogOptions() logging.Options {
	return logging.Options{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
	}
}
