// Package models provides the market data and ledger types shared across the
// analysis pipeline.
package models

import (
	"math"
	"time"
)

// SharesPerContract is the equity option multiplier.
const SharesPerContract = 100.0

// maxSpreadPercentage is reported when a quote has no usable two-sided market.
const maxSpreadPercentage = 100.0

// OptionType represents the type of option contract
type OptionType string

const (
	// OptionTypeCall represents a call option contract
	OptionTypeCall OptionType = "call"
	// OptionTypePut represents a put option contract
	OptionTypePut OptionType = "put"
)

// Valid returns true if the OptionType is one of the defined constants
func (t OptionType) Valid() bool {
	return t == OptionTypeCall || t == OptionTypePut
}

// IsCall reports whether the type is a call.
func (t OptionType) IsCall() bool { return t == OptionTypeCall }

// Greeks holds per-share option sensitivities. Theta is per calendar day,
// Vega per one volatility point.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// Sub returns g - o.
func (g Greeks) Sub(o Greeks) Greeks {
	return Greeks{
		Delta: g.Delta - o.Delta,
		Gamma: g.Gamma - o.Gamma,
		Theta: g.Theta - o.Theta,
		Vega:  g.Vega - o.Vega,
	}
}

// Add returns g + o.
func (g Greeks) Add(o Greeks) Greeks {
	return Greeks{
		Delta: g.Delta + o.Delta,
		Gamma: g.Gamma + o.Gamma,
		Theta: g.Theta + o.Theta,
		Vega:  g.Vega + o.Vega,
	}
}

// Scale multiplies every sensitivity by k.
func (g Greeks) Scale(k float64) Greeks {
	return Greeks{Delta: g.Delta * k, Gamma: g.Gamma * k, Theta: g.Theta * k, Vega: g.Vega * k}
}

// OptionQuote is a single option contract snapshot. One per (strike,
// expiration, type); never modified after it is fetched.
type OptionQuote struct {
	Greeks            *Greeks    `json:"greeks,omitempty"`
	Expiration        time.Time  `json:"expiration"`
	Symbol            string     `json:"symbol"`
	OptionType        OptionType `json:"option_type"`
	Strike            float64    `json:"strike"`
	Bid               float64    `json:"bid"`
	Ask               float64    `json:"ask"`
	LastPrice         float64    `json:"last_price"`
	ImpliedVolatility float64    `json:"implied_volatility"`
	Volume            int64      `json:"volume"`
	OpenInterest      int64      `json:"open_interest"`
}

// HasTwoSidedMarket reports whether bid and ask form a usable market.
func (q OptionQuote) HasTwoSidedMarket() bool {
	return q.Bid > 0 && q.Ask > 0 && q.Ask >= q.Bid
}

// MidPrice returns the bid/ask midpoint, or the last trade when the market is
// one-sided or crossed.
func (q OptionQuote) MidPrice() float64 {
	if q.HasTwoSidedMarket() {
		return (q.Bid + q.Ask) / 2
	}
	return q.LastPrice
}

// SpreadPercentage is the bid/ask width as a percentage of mid.
func (q OptionQuote) SpreadPercentage() float64 {
	mid := q.MidPrice()
	if !q.HasTwoSidedMarket() || mid <= 0 {
		return maxSpreadPercentage
	}
	return (q.Ask - q.Bid) / mid * 100
}

// DaysToExpiry returns whole calendar days from asOf to the quote expiration.
func (q OptionQuote) DaysToExpiry(asOf time.Time) int {
	return DaysUntil(asOf, q.Expiration)
}

// ChainSummary condenses one expiration of an option chain to its ATM data.
type ChainSummary struct {
	Expiration  time.Time `json:"expiration"`
	ATMStrike   float64   `json:"atm_strike"`
	ATMIV       float64   `json:"atm_iv"`
	StraddleMid float64   `json:"straddle_mid"`
}

// OHLCBar is one daily price bar.
type OHLCBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Complete reports whether all price columns are present and positive.
func (b OHLCBar) Complete() bool {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// DaysUntil calculates signed whole days between two dates, truncated to UTC days.
func DaysUntil(from, to time.Time) int {
	f := from.UTC().Truncate(24 * time.Hour)
	t := to.UTC().Truncate(24 * time.Hour)
	return int(t.Sub(f).Hours() / 24)
}

// EarningsTiming describes when results are released relative to the session.
type EarningsTiming string

const (
	// TimingBMO is before market open.
	TimingBMO EarningsTiming = "BMO"
	// TimingAMC is after market close.
	TimingAMC EarningsTiming = "AMC"
	// TimingUnknown is an unannounced release time.
	TimingUnknown EarningsTiming = "UNKNOWN"
)

// EarningsEvent is the next scheduled earnings release for a symbol.
type EarningsEvent struct {
	Date      time.Time      `json:"date"`
	Symbol    string         `json:"symbol"`
	Timing    EarningsTiming `json:"timing"`
	Confirmed bool           `json:"confirmed"`
}

// OptionChain holds the calls and puts listed for one expiration.
type OptionChain struct {
	Expiration time.Time     `json:"expiration"`
	Calls      []OptionQuote `json:"calls"`
	Puts       []OptionQuote `json:"puts"`
}

const strikeTolerance = 1e-6

// Find returns the contract of the given type at strike.
func (c OptionChain) Find(strike float64, t OptionType) (OptionQuote, bool) {
	quotes := c.Calls
	if t == OptionTypePut {
		quotes = c.Puts
	}
	for _, q := range quotes {
		if math.Abs(q.Strike-strike) < strikeTolerance {
			return q, true
		}
	}
	return OptionQuote{}, false
}

// Summarize reduces the chain to its ATM strike, IV and straddle mid. The ATM
// strike is the one nearest spot that lists both a call and a put; the IV is
// the mean of the non-zero call and put IVs. ok is false when no strike
// qualifies.
func (c OptionChain) Summarize(spot float64) (ChainSummary, bool) {
	best := -1.0
	var call, put OptionQuote
	for _, cq := range c.Calls {
		pq, found := c.Find(cq.Strike, OptionTypePut)
		if !found {
			continue
		}
		if best < 0 || math.Abs(cq.Strike-spot) < math.Abs(best-spot) {
			best, call, put = cq.Strike, cq, pq
		}
	}
	if best < 0 {
		return ChainSummary{}, false
	}

	var ivSum float64
	var ivCount int
	for _, iv := range []float64{call.ImpliedVolatility, put.ImpliedVolatility} {
		if iv > 0 && !math.IsNaN(iv) {
			ivSum += iv
			ivCount++
		}
	}
	s := ChainSummary{
		Expiration:  c.Expiration,
		ATMStrike:   best,
		StraddleMid: call.MidPrice() + put.MidPrice(),
	}
	if ivCount > 0 {
		s.ATMIV = ivSum / float64(ivCount)
	}
	return s, true
}
