package volatility

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/eddiefleurent/ivcrush/internal/models"
)

// barGen generates OHLC bars that respect High >= max(Open, Close) and
// Low <= min(Open, Close).
func barGen() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(10, 500),
		gen.Float64Range(-0.05, 0.05),
		gen.Float64Range(0, 0.03),
		gen.Float64Range(0, 0.03),
	).Map(func(v []interface{}) models.OHLCBar {
		open := v[0].(float64)
		closePx := open * (1 + v[1].(float64))
		return models.OHLCBar{
			Date:   time.Now(),
			Open:   open,
			Close:  closePx,
			High:   math.Max(open, closePx) * (1 + v[2].(float64)),
			Low:    math.Min(open, closePx) * (1 - v[3].(float64)),
			Volume: 1000,
		}
	})
}

func TestProperty_YangZhangNonNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("RV >= 0 for any valid series with at least 2 rows", prop.ForAll(
		func(bars []models.OHLCBar) bool {
			vol, ok := NewYangZhang().Estimate(bars)
			return ok && vol >= 0 && !math.IsNaN(vol) && !math.IsInf(vol, 0)
		},
		gen.SliceOfN(45, barGen()).SuchThat(func(b []models.OHLCBar) bool { return len(b) >= 2 }),
	))

	properties.Property("RV == 0 for fewer than 2 rows", prop.ForAll(
		func(bars []models.OHLCBar) bool {
			if len(bars) > 1 {
				bars = bars[:1]
			}
			return RealizedVolatility(bars) == 0.0
		},
		gen.SliceOfN(1, barGen()),
	))

	properties.TestingRun(t)
}

func TestProperty_TermStructureBoundedByKnots(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("interpolated IV lies between bounding knots and clamps outside", prop.ForAll(
		func(d1, gap, iv1, iv2, x float64) bool {
			d2 := d1 + gap
			ts, err := BuildTermStructure([]Point{{d2, iv2}, {d1, iv1}})
			if err != nil {
				return false
			}
			lo, hi := math.Min(iv1, iv2), math.Max(iv1, iv2)
			v := ts.IV(x)
			if x <= d1 {
				return v == iv1
			}
			if x >= d2 {
				return v == iv2
			}
			return v >= lo-1e-12 && v <= hi+1e-12
		},
		gen.Float64Range(1, 60),
		gen.Float64Range(1, 120),
		gen.Float64Range(0.05, 2),
		gen.Float64Range(0.05, 2),
		gen.Float64Range(-10, 250),
	))

	properties.TestingRun(t)
}
