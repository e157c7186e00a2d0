// Package pricing provides the closed-form Black-Scholes kernel shared by the
// greeks calculator, the P&L scenario engine and trade construction.
package pricing

import "math"

// DaysPerYear converts calendar days to year fractions.
const DaysPerYear = 365.0

// Input describes one European option valuation.
type Input struct {
	Spot   float64 // underlying price
	Strike float64
	Years  float64 // time to expiry in years
	Rate   float64 // risk-free rate
	Vol    float64 // annualized implied volatility
	IsCall bool
}

// Result holds a Black-Scholes price and its sensitivities.
// Theta is per calendar day and Vega is per one volatility point.
type Result struct {
	Price float64
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
	Rho   float64
}

// VolatilityMath is the numeric capability the analytics depend on.
type VolatilityMath interface {
	Price(in Input) float64
	Greeks(in Input) Result
	NormCDF(x float64) float64
}

// BlackScholes is the only VolatilityMath implementation.
type BlackScholes struct{}

var _ VolatilityMath = BlackScholes{}

// Valid reports whether the input can be priced in closed form.
func (in Input) Valid() bool {
	return in.Spot > 0 && in.Strike > 0 && in.Years > 0 && in.Vol > 0 &&
		!math.IsNaN(in.Vol) && !math.IsInf(in.Vol, 0)
}

// Intrinsic returns the exercise value of the option at the given spot.
func Intrinsic(spot, strike float64, isCall bool) float64 {
	if isCall {
		return math.Max(spot-strike, 0)
	}
	return math.Max(strike-spot, 0)
}

// Price returns the option value, falling back to intrinsic value when the
// input is degenerate (expired, zero volatility).
func (b BlackScholes) Price(in Input) float64 {
	if !in.Valid() {
		return Intrinsic(in.Spot, in.Strike, in.IsCall)
	}
	d1, d2 := b.d1d2(in)
	disc := math.Exp(-in.Rate * in.Years)
	if in.IsCall {
		return in.Spot*b.NormCDF(d1) - in.Strike*disc*b.NormCDF(d2)
	}
	return in.Strike*disc*b.NormCDF(-d2) - in.Spot*b.NormCDF(-d1)
}

// Greeks returns price and sensitivities. Degenerate inputs return only the
// intrinsic price with zero sensitivities; callers decide how to fall back.
func (b BlackScholes) Greeks(in Input) Result {
	if !in.Valid() {
		return Result{Price: Intrinsic(in.Spot, in.Strike, in.IsCall)}
	}
	d1, d2 := b.d1d2(in)
	sqrtT := math.Sqrt(in.Years)
	disc := math.Exp(-in.Rate * in.Years)
	pdf := normPDF(d1)

	res := Result{
		Price: b.Price(in),
		Gamma: pdf / (in.Spot * in.Vol * sqrtT),
		Vega:  in.Spot * sqrtT * pdf / 100,
	}

	decay := -(in.Spot * pdf * in.Vol) / (2 * sqrtT)
	if in.IsCall {
		res.Delta = b.NormCDF(d1)
		res.Theta = (decay - in.Rate*in.Strike*disc*b.NormCDF(d2)) / DaysPerYear
		res.Rho = in.Strike * in.Years * disc * b.NormCDF(d2) / 100
	} else {
		res.Delta = b.NormCDF(d1) - 1
		res.Theta = (decay + in.Rate*in.Strike*disc*b.NormCDF(-d2)) / DaysPerYear
		res.Rho = -in.Strike * in.Years * disc * b.NormCDF(-d2) / 100
	}
	return res
}

// NormCDF is the standard normal cumulative distribution.
func (BlackScholes) NormCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func (BlackScholes) d1d2(in Input) (float64, float64) {
	sqrtT := math.Sqrt(in.Years)
	d1 := (math.Log(in.Spot/in.Strike) + (in.Rate+0.5*in.Vol*in.Vol)*in.Years) / (in.Vol * sqrtT)
	return d1, d1 - in.Vol*sqrtT
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

// YearsFromDays converts a day count to a year fraction, never negative.
func YearsFromDays(days float64) float64 {
	if days <= 0 {
		return 0
	}
	return days / DaysPerYear
}
