// Package trade builds calendar-spread and straddle trades from an option chain
// snapshot and flags the ones that are not feasible to enter.
package trade

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/eddiefleurent/ivcrush/internal/pricing"
)

// Limits are the feasibility checks applied to every constructed trade.
type Limits struct {
	MaxSpreadPct    float64 `yaml:"max_spread_pct"`
	MinOpenInterest int64   `yaml:"min_open_interest"`
}

// DefaultLimits returns the documented feasibility limits.
func DefaultLimits() Limits {
	return Limits{MaxSpreadPct: 15, MinOpenInterest: 10}
}

// BreakevenRange is the band of underlying prices at front expiration within
// which the spread is worth more than it cost.
type BreakevenRange struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	// Exists is false when the spread never recovers its debit.
	Exists bool `json:"exists"`
}

// Width is Upper - Lower, zero when the range does not exist.
func (b BreakevenRange) Width() float64 {
	if !b.Exists {
		return 0
	}
	return b.Upper - b.Lower
}

// CalendarTrade is a short front / long back spread at one strike. All derived
// values are fixed at construction.
type CalendarTrade struct {
	asOf             time.Time
	front            models.OptionQuote
	back             models.OptionQuote
	symbol           string
	tradeType        models.OptionType
	validationErrors []string
	breakeven        BreakevenRange
	underlying       float64
	netDebit         float64
	frontDTE         int
	backDTE          int
	riskFreeRate     float64
}

// NewCalendarTrade builds the trade, computes its derived fields and runs the
// feasibility checks. Infeasible trades are returned with IsValid false.
func NewCalendarTrade(symbol string, underlying float64, front, back models.OptionQuote,
	asOf time.Time, rate float64, limits Limits, vm pricing.VolatilityMath) *CalendarTrade {
	t := &CalendarTrade{
		asOf:         asOf,
		front:        front,
		back:         back,
		symbol:       symbol,
		tradeType:    front.OptionType,
		underlying:   underlying,
		netDebit:     back.MidPrice() - front.MidPrice(),
		frontDTE:     front.DaysToExpiry(asOf),
		backDTE:      back.DaysToExpiry(asOf),
		riskFreeRate: rate,
	}
	t.validationErrors = t.validate(limits)
	if vm != nil {
		t.breakeven = t.solveBreakevens(vm)
	}
	return t
}

func (t *CalendarTrade) validate(limits Limits) []string {
	var errs []string
	if t.front.OptionType != t.back.OptionType {
		errs = append(errs, fmt.Sprintf("leg types differ: front %s, back %s", t.front.OptionType, t.back.OptionType))
	}
	if math.Abs(t.front.Strike-t.back.Strike) > 1e-6 {
		errs = append(errs, fmt.Sprintf("leg strikes differ: front %.2f, back %.2f", t.front.Strike, t.back.Strike))
	}
	if t.netDebit <= 0 {
		errs = append(errs, fmt.Sprintf("net debit must be positive (got %.2f)", t.netDebit))
	}
	if t.frontDTE >= t.backDTE {
		errs = append(errs, fmt.Sprintf("front expiration (%d DTE) must precede back expiration (%d DTE)",
			t.frontDTE, t.backDTE))
	}
	errs = append(errs, checkLeg("front", t.front, limits)...)
	errs = append(errs, checkLeg("back", t.back, limits)...)
	return errs
}

func checkLeg(name string, q models.OptionQuote, limits Limits) []string {
	var errs []string
	if spread := q.SpreadPercentage(); spread > limits.MaxSpreadPct {
		errs = append(errs, fmt.Sprintf("%s leg spread %.1f%% exceeds %.1f%%", name, spread, limits.MaxSpreadPct))
	}
	if q.OpenInterest < limits.MinOpenInterest {
		errs = append(errs, fmt.Sprintf("%s leg open interest %d below minimum %d",
			name, q.OpenInterest, limits.MinOpenInterest))
	}
	return errs
}

// spreadValueAtFrontExpiry values the position the moment the front leg
// expires: the back leg keeps its remaining time and IV, the front leg is
// worth intrinsic.
func (t *CalendarTrade) spreadValueAtFrontExpiry(vm pricing.VolatilityMath, spot float64) float64 {
	isCall := t.tradeType.IsCall()
	backValue := vm.Price(pricing.Input{
		Spot:   spot,
		Strike: t.back.Strike,
		Years:  pricing.YearsFromDays(float64(t.backDTE - t.frontDTE)),
		Rate:   t.riskFreeRate,
		Vol:    t.back.ImpliedVolatility,
		IsCall: isCall,
	})
	return backValue - pricing.Intrinsic(spot, t.front.Strike, isCall)
}

const breakevenIterations = 80

func (t *CalendarTrade) solveBreakevens(vm pricing.VolatilityMath) BreakevenRange {
	strike := t.front.Strike
	if strike <= 0 || t.netDebit <= 0 || t.backDTE <= t.frontDTE {
		return BreakevenRange{}
	}
	excess := func(s float64) float64 { return t.spreadValueAtFrontExpiry(vm, s) - t.netDebit }
	if excess(strike) <= 0 {
		return BreakevenRange{}
	}
	return BreakevenRange{
		Lower:  bisect(excess, strike, strike*0.25),
		Upper:  bisect(excess, strike, strike*4),
		Exists: true,
	}
}

// bisect finds the breakeven between a profitable price and an unprofitable
// one. If outside is still profitable it is returned as the bound.
func bisect(f func(float64) float64, inside, outside float64) float64 {
	if f(outside) > 0 {
		return outside
	}
	for i := 0; i < breakevenIterations; i++ {
		mid := (inside + outside) / 2
		if f(mid) > 0 {
			inside = mid
		} else {
			outside = mid
		}
	}
	return (inside + outside) / 2
}

// Symbol returns the underlying symbol.
func (t *CalendarTrade) Symbol() string { return t.symbol }

// UnderlyingPrice is the spot at construction.
func (t *CalendarTrade) UnderlyingPrice() float64 { return t.underlying }

// Strike is the shared strike of both legs.
func (t *CalendarTrade) Strike() float64 { return t.front.Strike }

// TradeType is the option type of both legs.
func (t *CalendarTrade) TradeType() models.OptionType { return t.tradeType }

// FrontOption is the short leg.
func (t *CalendarTrade) FrontOption() models.OptionQuote { return t.front }

// BackOption is the long leg.
func (t *CalendarTrade) BackOption() models.OptionQuote { return t.back }

// FrontExpiration is the short leg expiry.
func (t *CalendarTrade) FrontExpiration() time.Time { return t.front.Expiration }

// BackExpiration is the long leg expiry.
func (t *CalendarTrade) BackExpiration() time.Time { return t.back.Expiration }

// FrontDTE is the days to expiration of the short leg.
func (t *CalendarTrade) FrontDTE() int { return t.frontDTE }

// BackDTE is the days to expiration of the long leg.
func (t *CalendarTrade) BackDTE() int { return t.backDTE }

// NetDebit is the per-share cost: back mid minus front mid.
func (t *CalendarTrade) NetDebit() float64 { return t.netDebit }

// MaxLoss is the per-share maximum loss, equal to the debit paid.
func (t *CalendarTrade) MaxLoss() float64 { return t.netDebit }

// MaxLossPerContract is the dollar max loss of one spread.
func (t *CalendarTrade) MaxLossPerContract() float64 {
	return math.Max(t.netDebit, 0) * models.SharesPerContract
}

// Breakeven returns the profitable band at front expiration.
func (t *CalendarTrade) Breakeven() BreakevenRange { return t.breakeven }

// RiskFreeRate is the rate used for valuations of this trade.
func (t *CalendarTrade) RiskFreeRate() float64 { return t.riskFreeRate }

// AsOf is the snapshot time the trade was built from.
func (t *CalendarTrade) AsOf() time.Time { return t.asOf }

// IsValid reports whether the trade passed every feasibility check.
func (t *CalendarTrade) IsValid() bool { return len(t.validationErrors) == 0 }

// ValidationErrors returns a copy of the failed checks.
func (t *CalendarTrade) ValidationErrors() []string {
	return append([]string(nil), t.validationErrors...)
}

type calendarJSON struct {
	FrontExpiration  time.Time          `json:"front_expiration"`
	BackExpiration   time.Time          `json:"back_expiration"`
	FrontOption      models.OptionQuote `json:"front_option"`
	BackOption       models.OptionQuote `json:"back_option"`
	Symbol           string             `json:"symbol"`
	TradeType        models.OptionType  `json:"trade_type"`
	ValidationErrors []string           `json:"validation_errors,omitempty"`
	Breakeven        BreakevenRange     `json:"breakeven_range"`
	UnderlyingPrice  float64            `json:"underlying_price"`
	Strike           float64            `json:"strike"`
	NetDebit         float64            `json:"net_debit"`
	MaxLoss          float64            `json:"max_loss"`
	FrontDTE         int                `json:"days_to_expiration_front"`
	BackDTE          int                `json:"days_to_expiration_back"`
	IsValid          bool               `json:"is_valid"`
}

// MarshalJSON renders the trade with its derived fields.
func (t *CalendarTrade) MarshalJSON() ([]byte, error) {
	return json.Marshal(calendarJSON{
		FrontExpiration:  t.FrontExpiration(),
		BackExpiration:   t.BackExpiration(),
		FrontOption:      t.front,
		BackOption:       t.back,
		Symbol:           t.symbol,
		TradeType:        t.tradeType,
		ValidationErrors: t.validationErrors,
		Breakeven:        t.breakeven,
		UnderlyingPrice:  t.underlying,
		Strike:           t.Strike(),
		NetDebit:         t.netDebit,
		MaxLoss:          t.MaxLoss(),
		FrontDTE:         t.frontDTE,
		BackDTE:          t.backDTE,
		IsValid:          t.IsValid(),
	})
}
