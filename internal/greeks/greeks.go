// Package greeks computes per-leg and net option sensitivities for the trades
// the constructor builds.
package greeks

import (
	"encoding/json"
	"io"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/eddiefleurent/ivcrush/internal/pricing"
	"github.com/eddiefleurent/ivcrush/internal/trade"
)

// Method records how a leg's greeks were obtained.
type Method string

// Methods.
const (
	MethodBlackScholes Method = "black_scholes"
	MethodHeuristic    Method = "heuristic"
	MethodExpired      Method = "expired"
)

// Heuristic fallback constants.
const (
	nearMoneyPct       = 0.05
	nearMoneyDelta     = 0.5
	farMoneyDelta      = 0.2
	thetaDecayRate     = 0.02
	fastThetaDecayRate = 0.05
	fastDecayDTE       = 30
	heuristicVol       = 0.30
)

// Leg is the per-share greeks of one option.
type Leg struct {
	models.Greeks
	Method Method `json:"method"`
}

// Calculator computes greeks with Black-Scholes when the quote carries an IV
// and a heuristic approximation otherwise.
type Calculator struct {
	vm     pricing.VolatilityMath
	logger *logrus.Logger
	rate   float64
}

// NewCalculator creates a calculator. A nil vm defaults to Black-Scholes.
func NewCalculator(vm pricing.VolatilityMath, rate float64, logger *logrus.Logger) *Calculator {
	if vm == nil {
		vm = pricing.BlackScholes{}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Calculator{vm: vm, rate: rate, logger: logger}
}

// Leg returns the greeks of q with the underlying at spot.
func (c *Calculator) Leg(q models.OptionQuote, spot float64, asOf time.Time) Leg {
	dte := q.DaysToExpiry(asOf)
	isCall := q.OptionType.IsCall()
	if dte <= 0 {
		return Leg{Greeks: models.Greeks{Delta: expiredDelta(spot, q.Strike, isCall)}, Method: MethodExpired}
	}

	in := pricing.Input{
		Spot:   spot,
		Strike: q.Strike,
		Years:  pricing.YearsFromDays(float64(dte)),
		Rate:   c.rate,
		Vol:    q.ImpliedVolatility,
		IsCall: isCall,
	}
	if in.Valid() {
		r := c.vm.Greeks(in)
		return Leg{
			Greeks: models.Greeks{Delta: r.Delta, Gamma: r.Gamma, Theta: r.Theta, Vega: r.Vega},
			Method: MethodBlackScholes,
		}
	}

	c.logger.WithFields(logrus.Fields{
		"symbol": q.Symbol,
		"strike": q.Strike,
		"dte":    dte,
	}).Debug("no usable implied volatility, using heuristic greeks")
	return Leg{Greeks: heuristic(q, spot, dte), Method: MethodHeuristic}
}

// expiredDelta is the delta of an option at expiration: fully in, at the
// strike, or worthless.
func expiredDelta(spot, strike float64, isCall bool) float64 {
	sign := 1.0
	if !isCall {
		sign = -1
	}
	switch {
	case spot == strike:
		return 0.5 * sign
	case isCall && spot > strike, !isCall && spot < strike:
		return sign
	default:
		return 0
	}
}

func heuristic(q models.OptionQuote, spot float64, dte int) models.Greeks {
	premium := q.MidPrice()
	nearMoney := spot > 0 && math.Abs(spot-q.Strike)/spot < nearMoneyPct

	delta, gammaScale := farMoneyDelta, 0.5
	if nearMoney {
		delta, gammaScale = nearMoneyDelta, 1.0
	}
	if !q.OptionType.IsCall() {
		delta = -delta
	}

	decay := thetaDecayRate
	if dte < fastDecayDTE {
		decay = fastThetaDecayRate
	}

	// ATM approximations: vega ~ 0.4*S*sqrt(T)/100, gamma ~ 0.4/(S*sigma*sqrt(T))
	// at the fallback volatility.
	sqrtT := math.Sqrt(pricing.YearsFromDays(float64(dte)))
	var gamma, vega float64
	if spot > 0 && sqrtT > 0 {
		vega = 0.4 * spot * sqrtT / 100 * gammaScale
		gamma = 0.4 / (spot * heuristicVol * sqrtT) * gammaScale
	}
	return models.Greeks{Delta: delta, Gamma: gamma, Theta: -decay * premium, Vega: vega}
}

// Spread holds leg and net greeks of a multi-leg position. Dollar figures are
// derived on demand from Net.
type Spread struct {
	Legs            map[string]Leg `json:"legs"`
	Net             models.Greeks  `json:"net"`
	UnderlyingPrice float64        `json:"underlying_price"`
}

// DeltaDollars is the dollar P&L of one contract for a one-point move.
func (s Spread) DeltaDollars() float64 {
	return s.Net.Delta * s.UnderlyingPrice * models.SharesPerContract
}

// GammaDollars is the change in DeltaDollars for a one-point move.
func (s Spread) GammaDollars() float64 {
	return s.Net.Gamma * s.UnderlyingPrice * models.SharesPerContract
}

// ThetaDollars is the dollar decay of one contract per day.
func (s Spread) ThetaDollars() float64 {
	return s.Net.Theta * models.SharesPerContract
}

// VegaDollars is the dollar P&L of one contract per volatility point.
func (s Spread) VegaDollars() float64 {
	return s.Net.Vega * models.SharesPerContract
}

// MarshalJSON adds the dollar figures.
func (s Spread) MarshalJSON() ([]byte, error) {
	type plain Spread
	return json.Marshal(struct {
		plain
		DeltaDollars float64 `json:"delta_dollars"`
		GammaDollars float64 `json:"gamma_dollars"`
		ThetaDollars float64 `json:"theta_dollars"`
		VegaDollars  float64 `json:"vega_dollars"`
	}{
		plain:        plain(s),
		DeltaDollars: s.DeltaDollars(),
		GammaDollars: s.GammaDollars(),
		ThetaDollars: s.ThetaDollars(),
		VegaDollars:  s.VegaDollars(),
	})
}

// Calendar returns the greeks of a calendar spread: long back minus short front.
func (c *Calculator) Calendar(t *trade.CalendarTrade) Spread {
	spot := t.UnderlyingPrice()
	front := c.Leg(t.FrontOption(), spot, t.AsOf())
	back := c.Leg(t.BackOption(), spot, t.AsOf())
	return Spread{
		Legs:            map[string]Leg{"front": front, "back": back},
		Net:             back.Greeks.Sub(front.Greeks),
		UnderlyingPrice: spot,
	}
}

// Straddle returns the greeks of a short straddle: both legs sold.
func (c *Calculator) Straddle(s *trade.StraddleTrade, spot float64, asOf time.Time) Spread {
	call := c.Leg(s.CallOption(), spot, asOf)
	put := c.Leg(s.PutOption(), spot, asOf)
	return Spread{
		Legs:            map[string]Leg{"call": call, "put": put},
		Net:             call.Greeks.Add(put.Greeks).Scale(-1),
		UnderlyingPrice: spot,
	}
}
