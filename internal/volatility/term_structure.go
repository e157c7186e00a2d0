// Package volatility builds implied-volatility term structures and realized
// volatility estimates from market data.
package volatility

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/eddiefleurent/ivcrush/internal/models"
)

// Point is one (days-to-expiry, implied volatility) sample.
type Point struct {
	DTE float64 `json:"dte"`
	IV  float64 `json:"iv"`
}

// TermStructure is a piecewise-linear IV curve over days to expiry with flat
// extrapolation beyond the first and last knots.
type TermStructure struct {
	days []float64
	ivs  []float64
}

// BuildTermStructure sorts the samples by DTE and builds the curve. Samples
// that are not future-dated or carry no usable IV are ignored; samples sharing
// a DTE are averaged. At least two distinct knots are required.
func BuildTermStructure(points []Point) (*TermStructure, error) {
	byDay := make(map[float64][]float64, len(points))
	for _, p := range points {
		if p.DTE <= 0 || !usable(p.IV) || !usable(p.DTE) {
			continue
		}
		byDay[p.DTE] = append(byDay[p.DTE], p.IV)
	}
	if len(byDay) < 2 {
		return nil, fmt.Errorf("term structure needs 2 future expirations, have %d: %w",
			len(byDay), models.ErrInsufficientData)
	}

	days := make([]float64, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Float64s(days)

	ivs := make([]float64, len(days))
	for i, d := range days {
		sum := 0.0
		for _, v := range byDay[d] {
			sum += v
		}
		ivs[i] = sum / float64(len(byDay[d]))
	}
	return &TermStructure{days: days, ivs: ivs}, nil
}

// FromSummaries builds a term structure from chain summaries relative to asOf.
func FromSummaries(summaries []models.ChainSummary, asOf time.Time) (*TermStructure, error) {
	points := make([]Point, 0, len(summaries))
	for _, s := range summaries {
		points = append(points, Point{DTE: float64(models.DaysUntil(asOf, s.Expiration)), IV: s.ATMIV})
	}
	return BuildTermStructure(points)
}

func usable(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IV evaluates the curve at dte.
func (ts *TermStructure) IV(dte float64) float64 {
	n := len(ts.days)
	if dte <= ts.days[0] {
		return ts.ivs[0]
	}
	if dte >= ts.days[n-1] {
		return ts.ivs[n-1]
	}
	// first knot strictly greater than dte
	i := sort.Search(n, func(i int) bool { return ts.days[i] > dte })
	x0, x1 := ts.days[i-1], ts.days[i]
	y0, y1 := ts.ivs[i-1], ts.ivs[i]
	return y0 + (y1-y0)*(dte-x0)/(x1-x0)
}

// Slope returns the average IV change per day between two DTEs. Equal DTEs
// yield zero.
func (ts *TermStructure) Slope(from, to float64) float64 {
	if to == from {
		return 0
	}
	return (ts.IV(to) - ts.IV(from)) / (to - from)
}

// Knots returns a copy of the sorted samples.
func (ts *TermStructure) Knots() []Point {
	out := make([]Point, len(ts.days))
	for i := range ts.days {
		out[i] = Point{DTE: ts.days[i], IV: ts.ivs[i]}
	}
	return out
}

// FrontDTE is the nearest expiry in the curve.
func (ts *TermStructure) FrontDTE() float64 { return ts.days[0] }

// NextDTE is the expiry after the front one.
func (ts *TermStructure) NextDTE() float64 { return ts.days[1] }

// LastDTE is the farthest expiry in the curve.
func (ts *TermStructure) LastDTE() float64 { return ts.days[len(ts.days)-1] }
