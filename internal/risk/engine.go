// Package risk checks candidate positions against portfolio limits and owns
// the position ledger.
package risk

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/eddiefleurent/ivcrush/internal/storage"
)

// MaxPortfolioUtilization is the hard ceiling on total capital at risk.
const MaxPortfolioUtilization = 0.75

// Score weights.
const (
	positionWeight    = 0.40
	utilizationWeight = 0.35
	deltaWeight       = 0.25
)

// Limits are the portfolio constraints.
type Limits struct {
	AccountSize         float64
	MaxPositionPct      float64
	MaxConcentrationPct float64
	MaxPortfolioDelta   float64
}

// DefaultLimits returns the documented limits for a $100k account.
func DefaultLimits() Limits {
	return Limits{
		AccountSize:         100_000,
		MaxPositionPct:      0.05,
		MaxConcentrationPct: 0.20,
		MaxPortfolioDelta:   0.10,
	}
}

// Level is a coarse bucket of the risk score.
type Level string

// Levels.
const (
	LevelLow     Level = "LOW"
	LevelMedium  Level = "MEDIUM"
	LevelHigh    Level = "HIGH"
	LevelExtreme Level = "EXTREME"
)

// LevelFor buckets a 0-100 score.
func LevelFor(score float64) Level {
	switch {
	case score < 30:
		return LevelLow
	case score < 60:
		return LevelMedium
	case score < 80:
		return LevelHigh
	default:
		return LevelExtreme
	}
}

// Check is one limit test.
type Check struct {
	Name    string  `json:"name"`
	Message string  `json:"message,omitempty"`
	Value   float64 `json:"value"`
	Limit   float64 `json:"limit"`
	Passed  bool    `json:"passed"`
}

// Assessment is the advisory compliance report for one candidate.
type Assessment struct {
	Level                 Level    `json:"risk_level"`
	Checks                []Check  `json:"checks"`
	Violations            []string `json:"violations,omitempty"`
	PositionRiskPct       float64  `json:"position_risk_pct"`
	PortfolioUtilization  float64  `json:"portfolio_utilization"`
	SectorConcentration   float64  `json:"sector_concentration"`
	StrategyConcentration float64  `json:"strategy_concentration"`
	DeltaExposure         float64  `json:"delta_exposure"`
	RiskScore             float64  `json:"risk_score"`
	IsCompliant           bool     `json:"is_compliant"`
}

// Engine owns the ledger. All reads and writes go through its mutex so that
// concurrent admissions cannot lose updates.
type Engine struct {
	store     storage.Interface
	logger    *logrus.Logger
	positions []models.Position
	limits    Limits
	mu        sync.RWMutex
}

// NewEngine loads the ledger from store. A nil store keeps the ledger in
// memory only.
func NewEngine(limits Limits, store storage.Interface, logger *logrus.Logger) (*Engine, error) {
	def := DefaultLimits()
	if limits.AccountSize <= 0 {
		limits.AccountSize = def.AccountSize
	}
	if limits.MaxPositionPct <= 0 || limits.MaxPositionPct > 1 {
		limits.MaxPositionPct = def.MaxPositionPct
	}
	if limits.MaxConcentrationPct <= 0 || limits.MaxConcentrationPct > 1 {
		limits.MaxConcentrationPct = def.MaxConcentrationPct
	}
	if limits.MaxPortfolioDelta <= 0 {
		limits.MaxPortfolioDelta = def.MaxPortfolioDelta
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	e := &Engine{store: store, logger: logger, limits: limits}
	if store != nil {
		positions, err := store.LoadPositions()
		if err != nil {
			return nil, fmt.Errorf("loading ledger: %w", err)
		}
		e.positions = positions
	}
	return e, nil
}

// Limits returns the limits in effect.
func (e *Engine) Limits() Limits { return e.limits }

// AssessPosition checks candidate against the current open ledger without
// admitting it.
func (e *Engine) AssessPosition(candidate *models.Position) Assessment {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.assess(candidate)
}

func knownSector(sector string) bool {
	sector = strings.TrimSpace(sector)
	return sector != "" && !strings.EqualFold(sector, models.UnknownSector)
}

func (e *Engine) assess(c *models.Position) Assessment {
	account := decimal.NewFromFloat(e.limits.AccountSize)
	ratio := func(d decimal.Decimal) float64 {
		f, _ := d.Div(account).Float64()
		return f
	}

	candidateRisk := c.RiskAmount()
	total, sector, strategy := candidateRisk, candidateRisk, candidateRisk
	deltaDollars := c.DeltaDollars()
	// Untagged positions share no sector with each other.
	pooled := knownSector(c.Sector)
	for i := range e.positions {
		p := &e.positions[i]
		if !p.IsOpen() || p.ID == c.ID {
			continue
		}
		r := p.RiskAmount()
		total = total.Add(r)
		if pooled && strings.EqualFold(p.Sector, c.Sector) {
			sector = sector.Add(r)
		}
		if p.StrategyType == c.StrategyType {
			strategy = strategy.Add(r)
		}
		deltaDollars += p.DeltaDollars()
	}

	a := Assessment{
		PositionRiskPct:       ratio(candidateRisk),
		PortfolioUtilization:  ratio(total),
		SectorConcentration:   ratio(sector),
		StrategyConcentration: ratio(strategy),
		DeltaExposure:         math.Abs(deltaDollars) / e.limits.AccountSize,
	}
	a.Checks = []Check{
		limitCheck("position_limit", a.PositionRiskPct, e.limits.MaxPositionPct),
		limitCheck("portfolio_utilization", a.PortfolioUtilization, MaxPortfolioUtilization),
		limitCheck("sector_concentration", a.SectorConcentration, e.limits.MaxConcentrationPct),
		limitCheck("strategy_concentration", a.StrategyConcentration, e.limits.MaxConcentrationPct),
		limitCheck("delta_exposure", a.DeltaExposure, e.limits.MaxPortfolioDelta),
	}
	for _, ch := range a.Checks {
		if !ch.Passed {
			a.Violations = append(a.Violations, ch.Message)
		}
	}
	a.IsCompliant = len(a.Violations) == 0

	a.RiskScore = 100 * (positionWeight*component(a.PositionRiskPct, e.limits.MaxPositionPct) +
		utilizationWeight*component(a.PortfolioUtilization, MaxPortfolioUtilization) +
		deltaWeight*component(a.DeltaExposure, e.limits.MaxPortfolioDelta))
	a.Level = LevelFor(a.RiskScore)
	return a
}

func limitCheck(name string, value, limit float64) Check {
	ch := Check{Name: name, Value: value, Limit: limit, Passed: value <= limit}
	if !ch.Passed {
		ch.Message = fmt.Sprintf("%s %.2f%% exceeds limit %.2f%%", name, value*100, limit*100)
	}
	return ch
}

func component(value, limit float64) float64 {
	if limit <= 0 {
		return 1
	}
	return math.Min(1, value/limit)
}

// AdmitPosition assesses candidate and appends it to the ledger in one
// critical section, then persists. Compliance is advisory: a non-compliant
// candidate is still admitted and its assessment returned. A position that
// fails validation or cannot be persisted is not admitted.
func (e *Engine) AdmitPosition(candidate *models.Position) (Assessment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if candidate.ID == "" {
		candidate.ID = uuid.NewString()
	}
	if err := candidate.Validate(); err != nil {
		return Assessment{}, fmt.Errorf("%v: %w", err, models.ErrValidation)
	}
	if !candidate.IsOpen() {
		return Assessment{}, fmt.Errorf("position %s is not open: %w", candidate.ID, models.ErrValidation)
	}
	for i := range e.positions {
		if e.positions[i].ID == candidate.ID {
			return Assessment{}, fmt.Errorf("position %s already in ledger: %w", candidate.ID, models.ErrValidation)
		}
	}

	a := e.assess(candidate)
	next := append(append([]models.Position(nil), e.positions...), *candidate)
	if err := e.persist(next); err != nil {
		return a, err
	}
	e.positions = next

	entry := e.logger.WithFields(logrus.Fields{
		"id":         candidate.ID,
		"symbol":     candidate.Symbol,
		"contracts":  candidate.Contracts,
		"risk_score": a.RiskScore,
	})
	if a.IsCompliant {
		entry.Info("position admitted")
	} else {
		entry.WithField("violations", a.Violations).Warn("position admitted outside limits")
	}
	return a, nil
}

// ClosePosition marks an open position closed. Closed entries stay in the
// ledger as history and no longer count against limits.
func (e *Engine) ClosePosition(id, reason string) (models.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i := range e.positions {
		if e.positions[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.Position{}, fmt.Errorf("%s: %w", id, storage.ErrPositionNotFound)
	}

	next := append([]models.Position(nil), e.positions...)
	if err := next[idx].Close(reason); err != nil {
		return models.Position{}, fmt.Errorf("%v: %w", err, models.ErrValidation)
	}
	if err := e.persist(next); err != nil {
		return models.Position{}, err
	}
	e.positions = next
	e.logger.WithFields(logrus.Fields{"id": id, "reason": reason}).Info("position closed")
	return next[idx], nil
}

func (e *Engine) persist(positions []models.Position) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.SavePositions(positions); err != nil {
		return fmt.Errorf("persisting ledger: %w", err)
	}
	return nil
}

// Positions returns a copy of the ledger, closed entries included.
func (e *Engine) Positions() []models.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]models.Position{}, e.positions...)
}

// OpenPositions returns a copy of the open entries.
func (e *Engine) OpenPositions() []models.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	open := []models.Position{}
	for _, p := range e.positions {
		if p.IsOpen() {
			open = append(open, p)
		}
	}
	return open
}

// Position looks up one entry by ID.
func (e *Engine) Position(id string) (models.Position, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, p := range e.positions {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Position{}, fmt.Errorf("%s: %w", id, storage.ErrPositionNotFound)
}

// IsNotFound reports whether err means the position does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrPositionNotFound)
}

// Summary aggregates the open ledger.
type Summary struct {
	SectorExposure   map[string]float64 `json:"sector_exposure"`
	StrategyExposure map[string]float64 `json:"strategy_exposure"`
	Symbols          []string           `json:"symbols"`
	NetGreeks        models.Greeks      `json:"net_greeks"`
	TotalRisk        decimal.Decimal    `json:"total_risk"`
	AccountSize      float64            `json:"account_size"`
	Utilization      float64            `json:"utilization"`
	NetDeltaDollars  float64            `json:"net_delta_dollars"`
	DeltaExposure    float64            `json:"delta_exposure"`
	RiskScore        float64            `json:"risk_score"`
	Level            Level              `json:"risk_level"`
	OpenPositions    int                `json:"open_positions"`
	ClosedPositions  int                `json:"closed_positions"`
}

// PortfolioSummary reports totals over the open positions. Exposures are
// fractions of the account.
func (e *Engine) PortfolioSummary() Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Summary{
		SectorExposure:   map[string]float64{},
		StrategyExposure: map[string]float64{},
		Symbols:          []string{},
		TotalRisk:        decimal.Zero,
		AccountSize:      e.limits.AccountSize,
	}
	account := decimal.NewFromFloat(e.limits.AccountSize)
	sectors := map[string]decimal.Decimal{}
	strategies := map[string]decimal.Decimal{}
	symbols := map[string]bool{}
	for i := range e.positions {
		p := &e.positions[i]
		if !p.IsOpen() {
			s.ClosedPositions++
			continue
		}
		s.OpenPositions++
		r := p.RiskAmount()
		s.TotalRisk = s.TotalRisk.Add(r)
		sectors[p.Sector] = sectors[p.Sector].Add(r)
		strategies[string(p.StrategyType)] = strategies[string(p.StrategyType)].Add(r)
		s.NetGreeks = s.NetGreeks.Add(p.PositionGreeks())
		s.NetDeltaDollars += p.DeltaDollars()
		symbols[p.Symbol] = true
	}
	for k, v := range sectors {
		s.SectorExposure[k], _ = v.Div(account).Float64()
	}
	for k, v := range strategies {
		s.StrategyExposure[k], _ = v.Div(account).Float64()
	}
	for sym := range symbols {
		s.Symbols = append(s.Symbols, sym)
	}
	sort.Strings(s.Symbols)

	s.Utilization, _ = s.TotalRisk.Div(account).Float64()
	s.DeltaExposure = math.Abs(s.NetDeltaDollars) / e.limits.AccountSize
	s.RiskScore = 100 * (utilizationWeight*component(s.Utilization, MaxPortfolioUtilization) +
		deltaWeight*component(s.DeltaExposure, e.limits.MaxPortfolioDelta)) / (utilizationWeight + deltaWeight)
	s.Level = LevelFor(s.RiskScore)
	return s
}
