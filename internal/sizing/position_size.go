package sizing

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Config holds the account constraints applied to the Kelly fraction.
type Config struct {
	AccountSize          float64
	MaxPositionPct       float64
	KellyMultiplier      float64
	EmergencyCeiling     float64
	MinFraction          float64
	PracticalContractCap int
	AccountPerContract   float64
}

// DefaultConfig returns the documented sizing defaults for a $100k account.
func DefaultConfig() Config {
	return Config{
		AccountSize:          100_000,
		MaxPositionPct:       0.05,
		KellyMultiplier:      0.25,
		EmergencyCeiling:     0.20,
		MinFraction:          0.001,
		PracticalContractCap: 10_000,
		AccountPerContract:   1_000,
	}
}

// PositionSize is the immutable result of one sizing pass. Re-sizing produces
// a new value.
type PositionSize struct {
	capitalRequired      decimal.Decimal
	kelly                KellyParameters
	adjustments          []string
	validationErrors     []string
	fractionalKelly      float64
	signalMultiplier     float64
	riskAdjustedFraction float64
	maxLossPerContract   float64
	kellyContracts       int
	contracts            int
}

// Kelly returns the parameters the size was derived from.
func (p PositionSize) Kelly() KellyParameters { return p.kelly }

// KellyFraction is the full-Kelly fraction.
func (p PositionSize) KellyFraction() float64 { return p.kelly.KellyFraction() }

// SignalMultiplier is the conviction scale applied.
func (p PositionSize) SignalMultiplier() float64 { return p.signalMultiplier }

// RiskAdjustedFraction is the account fraction put at risk after all clamps.
func (p PositionSize) RiskAdjustedFraction() float64 { return p.riskAdjustedFraction }

// Contracts is the final contract count.
func (p PositionSize) Contracts() int { return p.contracts }

// KellyContracts is the count the scaled Kelly fraction alone implies.
func (p PositionSize) KellyContracts() int { return p.kellyContracts }

// MaxLossPerContract is the dollar risk of one contract.
func (p PositionSize) MaxLossPerContract() float64 { return p.maxLossPerContract }

// CapitalRequired is contracts times max loss per contract.
func (p PositionSize) CapitalRequired() decimal.Decimal { return p.capitalRequired }

// AdjustmentReason explains every reduction from the Kelly-implied size.
func (p PositionSize) AdjustmentReason() string { return strings.Join(p.adjustments, "; ") }

// ValidationErrors returns a copy of the reasons the size is unusable.
func (p PositionSize) ValidationErrors() []string {
	return append([]string(nil), p.validationErrors...)
}

// IsValid reports a tradeable size.
func (p PositionSize) IsValid() bool { return len(p.validationErrors) == 0 }

// MarshalJSON renders the size with its derived fields.
func (p PositionSize) MarshalJSON() ([]byte, error) {
	capital, _ := p.capitalRequired.Float64()
	return json.Marshal(struct {
		Kelly                KellyParameters `json:"kelly"`
		AdjustmentReason     string          `json:"adjustment_reason,omitempty"`
		ValidationErrors     []string        `json:"validation_errors,omitempty"`
		KellyFraction        float64         `json:"kelly_fraction"`
		FractionalKelly      float64         `json:"fractional_kelly"`
		SignalMultiplier     float64         `json:"signal_multiplier"`
		RiskAdjustedFraction float64         `json:"risk_adjusted_fraction"`
		MaxLossPerContract   float64         `json:"max_loss_per_contract"`
		CapitalRequired      float64         `json:"capital_required"`
		KellyContracts       int             `json:"kelly_contracts"`
		Contracts            int             `json:"contracts"`
		IsValid              bool            `json:"is_valid"`
	}{
		Kelly:                p.kelly,
		AdjustmentReason:     p.AdjustmentReason(),
		ValidationErrors:     p.validationErrors,
		KellyFraction:        p.KellyFraction(),
		FractionalKelly:      p.fractionalKelly,
		SignalMultiplier:     p.signalMultiplier,
		RiskAdjustedFraction: p.riskAdjustedFraction,
		MaxLossPerContract:   p.maxLossPerContract,
		CapitalRequired:      capital,
		KellyContracts:       p.kellyContracts,
		Contracts:            p.contracts,
		IsValid:              p.IsValid(),
	})
}

// Sizer applies the account constraints to Kelly estimates.
type Sizer struct {
	logger *logrus.Logger
	cfg    Config
}

// NewSizer creates a sizer, replacing unusable settings with defaults.
func NewSizer(cfg Config, logger *logrus.Logger) *Sizer {
	def := DefaultConfig()
	if cfg.AccountSize <= 0 {
		cfg.AccountSize = def.AccountSize
	}
	if cfg.MaxPositionPct <= 0 || cfg.MaxPositionPct > 1 {
		cfg.MaxPositionPct = def.MaxPositionPct
	}
	if cfg.KellyMultiplier <= 0 || cfg.KellyMultiplier > 1 {
		cfg.KellyMultiplier = def.KellyMultiplier
	}
	if cfg.EmergencyCeiling <= 0 || cfg.EmergencyCeiling > 1 {
		cfg.EmergencyCeiling = def.EmergencyCeiling
	}
	if cfg.MinFraction < 0 {
		cfg.MinFraction = def.MinFraction
	}
	if cfg.PracticalContractCap <= 0 {
		cfg.PracticalContractCap = def.PracticalContractCap
	}
	if cfg.AccountPerContract <= 0 {
		cfg.AccountPerContract = def.AccountPerContract
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Sizer{cfg: cfg, logger: logger}
}

// Config returns the settings in effect.
func (s *Sizer) Config() Config { return s.cfg }

// PracticalContractCeiling is min(cap, account / account-per-contract).
func (s *Sizer) PracticalContractCeiling() int {
	byAccount := int(math.Floor(s.cfg.AccountSize / s.cfg.AccountPerContract))
	if byAccount < s.cfg.PracticalContractCap {
		return byAccount
	}
	return s.cfg.PracticalContractCap
}

// Size computes the contract count for one trade.
func (s *Sizer) Size(k KellyParameters, maxLossPerContract float64) PositionSize {
	p := PositionSize{
		kelly:              k,
		maxLossPerContract: maxLossPerContract,
		signalMultiplier:   SignalMultiplier(k.SignalStrength()),
		capitalRequired:    decimal.Zero,
	}
	p.fractionalKelly = k.KellyFraction() * s.cfg.KellyMultiplier
	raw := p.fractionalKelly * p.signalMultiplier

	switch {
	case k.Degraded():
		p.validationErrors = append(p.validationErrors, "no winning or losing scenarios to estimate edge from")
	case k.KellyFraction() == 0:
		p.validationErrors = append(p.validationErrors, "kelly fraction is zero: no positive edge")
	case p.signalMultiplier == 0:
		p.validationErrors = append(p.validationErrors, "no signals: position not sized")
	}
	if maxLossPerContract <= 0 || math.IsNaN(maxLossPerContract) {
		p.validationErrors = append(p.validationErrors,
			fmt.Sprintf("max loss per contract must be positive (got %.2f)", maxLossPerContract))
	}
	if !p.IsValid() {
		return p
	}

	frac := raw
	limit, limitName := TierMaxPositionPct(k.SignalStrength()), "signal tier"
	if s.cfg.MaxPositionPct < limit {
		limit, limitName = s.cfg.MaxPositionPct, "account position limit"
	}
	if s.cfg.EmergencyCeiling < limit {
		limit, limitName = s.cfg.EmergencyCeiling, "emergency ceiling"
	}
	if frac > limit {
		p.adjustments = append(p.adjustments,
			fmt.Sprintf("risk fraction %.4f clamped to %.4f by %s", frac, limit, limitName))
		frac = limit
	}
	if frac < s.cfg.MinFraction {
		p.adjustments = append(p.adjustments,
			fmt.Sprintf("risk fraction %.4f raised to floor %.4f", frac, s.cfg.MinFraction))
		frac = s.cfg.MinFraction
	}
	p.riskAdjustedFraction = frac

	p.kellyContracts = int(math.Floor(raw * s.cfg.AccountSize / maxLossPerContract))
	contracts := int(math.Floor(frac * s.cfg.AccountSize / maxLossPerContract))
	if ceiling := s.PracticalContractCeiling(); contracts > ceiling {
		p.adjustments = append(p.adjustments,
			fmt.Sprintf("contracts %d capped at practical ceiling %d", contracts, ceiling))
		contracts = ceiling
	}
	p.contracts = contracts
	if contracts <= 0 {
		p.validationErrors = append(p.validationErrors,
			fmt.Sprintf("risk budget $%.2f is below one contract's max loss $%.2f",
				frac*s.cfg.AccountSize, maxLossPerContract))
		p.contracts = 0
	}
	p.capitalRequired = decimal.NewFromFloat(maxLossPerContract).Mul(decimal.NewFromInt(int64(p.contracts)))

	s.logger.WithFields(logrus.Fields{
		"kelly":      k.KellyFraction(),
		"fraction":   frac,
		"contracts":  p.contracts,
		"adjustment": p.AdjustmentReason(),
	}).Debug("position sized")
	return p
}
