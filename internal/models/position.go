package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PositionState represents the lifecycle state of a ledger entry.
type PositionState string

const (
	// StateOpen is an admitted position counted against portfolio limits.
	StateOpen PositionState = "open"
	// StateClosed is a position removed from the active ledger.
	StateClosed PositionState = "closed"
)

// StrategyType identifies the option structure a position holds.
type StrategyType string

const (
	// StrategyCalendar is a short front / long back calendar spread.
	StrategyCalendar StrategyType = "calendar_spread"
	// StrategyStraddle is a short ATM straddle.
	StrategyStraddle StrategyType = "short_straddle"
)

// Valid returns true if the StrategyType is one of the defined constants
func (t StrategyType) Valid() bool {
	switch t {
	case StrategyCalendar, StrategyStraddle:
		return true
	default:
		return false
	}
}

// UnknownSector is used when a position carries no sector tag.
const UnknownSector = "unknown"

// Position is one entry in the portfolio ledger.
type Position struct {
	EntryDate       time.Time     `json:"entry_date"`
	ExitDate        time.Time     `json:"exit_date,omitempty"`
	ID              string        `json:"id"`
	Symbol          string        `json:"symbol"`
	StrategyType    StrategyType  `json:"strategy_type"`
	Sector          string        `json:"sector"`
	State           PositionState `json:"state"`
	ExitReason      string        `json:"exit_reason,omitempty"`
	Greeks          Greeks        `json:"greeks"` // net per-share greeks of one contract
	Contracts       int           `json:"contracts"`
	NetDebit        float64       `json:"net_debit"`        // per share
	MaxLoss         float64       `json:"max_loss"`         // dollars per contract
	UnderlyingPrice float64       `json:"underlying_price"` // at entry
}

// NewPosition creates an open ledger entry.
func NewPosition(id, symbol string, strategy StrategyType, contracts int,
	netDebit, maxLossPerContract, underlying float64, greeks Greeks, sector string) *Position {
	if strings.TrimSpace(sector) == "" {
		sector = UnknownSector
	}
	return &Position{
		ID:              id,
		Symbol:          strings.ToUpper(symbol),
		StrategyType:    strategy,
		Contracts:       contracts,
		NetDebit:        netDebit,
		MaxLoss:         maxLossPerContract,
		UnderlyingPrice: underlying,
		Greeks:          greeks,
		Sector:          sector,
		State:           StateOpen,
		EntryDate:       time.Now().UTC(),
	}
}

// RiskAmount is the total dollars at risk: max loss per contract times contracts.
func (p *Position) RiskAmount() decimal.Decimal {
	return decimal.NewFromFloat(p.MaxLoss).Mul(decimal.NewFromInt(int64(p.Contracts)))
}

// DeltaDollars is the dollar exposure to a one-point move in the underlying.
func (p *Position) DeltaDollars() float64 {
	return p.Greeks.Delta * p.UnderlyingPrice * SharesPerContract * float64(p.Contracts)
}

// PositionGreeks returns the greeks scaled to the full position size.
func (p *Position) PositionGreeks() Greeks {
	return p.Greeks.Scale(SharesPerContract * float64(p.Contracts))
}

// IsOpen reports whether the position still counts against limits.
func (p *Position) IsOpen() bool {
	return p.State == StateOpen
}

// Close marks the position closed with a reason.
func (p *Position) Close(reason string) error {
	if p.State == StateClosed {
		return fmt.Errorf("position %s already closed", p.ID)
	}
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("position %s: exit reason required", p.ID)
	}
	p.State = StateClosed
	p.ExitReason = reason
	p.ExitDate = time.Now().UTC()
	if !p.EntryDate.Before(p.ExitDate) {
		p.ExitDate = p.EntryDate.Add(time.Nanosecond)
	}
	return nil
}

// Validate ensures the position data is consistent with its state.
func (p *Position) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("position ID is required")
	}
	if strings.TrimSpace(p.Symbol) == "" {
		return fmt.Errorf("position %s: symbol is required", p.ID)
	}
	if !p.StrategyType.Valid() {
		return fmt.Errorf("position %s: unknown strategy type %q", p.ID, p.StrategyType)
	}
	if p.Contracts <= 0 {
		return fmt.Errorf("position %s: contracts must be > 0 (current: %d)", p.ID, p.Contracts)
	}
	if p.MaxLoss < 0 {
		return fmt.Errorf("position %s: max loss cannot be negative (current: %.2f)", p.ID, p.MaxLoss)
	}
	if p.EntryDate.IsZero() {
		return fmt.Errorf("position %s: entry date must be set", p.ID)
	}

	switch p.State {
	case StateOpen:
		if !p.ExitDate.IsZero() {
			return fmt.Errorf("position %s in state %s: exit date must be zero (current: %v)",
				p.ID, p.State, p.ExitDate)
		}
		if strings.TrimSpace(p.ExitReason) != "" {
			return fmt.Errorf("position %s in state %s: exit reason must be empty (current: %s)",
				p.ID, p.State, p.ExitReason)
		}
	case StateClosed:
		if p.ExitDate.IsZero() {
			return fmt.Errorf("position %s in state %s: exit date must be set", p.ID, p.State)
		}
		if strings.TrimSpace(p.ExitReason) == "" {
			return fmt.Errorf("position %s in state %s: exit reason must be set", p.ID, p.State)
		}
		if !p.EntryDate.Before(p.ExitDate) {
			return fmt.Errorf("position %s in state %s: entry date (%v) must be before exit date (%v)",
				p.ID, p.State, p.EntryDate, p.ExitDate)
		}
	default:
		return fmt.Errorf("position %s: unknown state %q", p.ID, p.State)
	}
	return nil
}
