package volatility

import (
	"math"

	"github.com/eddiefleurent/ivcrush/internal/models"
)

const (
	// DefaultWindow is the trailing number of returns used for RV30.
	DefaultWindow = 30
	// TradingDaysPerYear annualizes daily variance.
	TradingDaysPerYear = 252
)

// YangZhang estimates realized volatility from OHLC bars.
type YangZhang struct {
	Window         int
	TradingPeriods int
}

// NewYangZhang returns an estimator over the default 30-bar window.
func NewYangZhang() YangZhang {
	return YangZhang{Window: DefaultWindow, TradingPeriods: TradingDaysPerYear}
}

// Estimate returns the annualized Yang-Zhang volatility over the trailing
// window. ok is false when fewer than two complete bars are available.
func (y YangZhang) Estimate(bars []models.OHLCBar) (vol float64, ok bool) {
	clean := make([]models.OHLCBar, 0, len(bars))
	for _, b := range bars {
		if b.Complete() {
			clean = append(clean, b)
		}
	}
	if len(clean) < 2 {
		return 0, false
	}

	window := y.Window
	if window <= 0 {
		window = DefaultWindow
	}
	periods := y.TradingPeriods
	if periods <= 0 {
		periods = TradingDaysPerYear
	}
	if len(clean) > window+1 {
		clean = clean[len(clean)-window-1:]
	}

	n := len(clean) - 1
	var overnightSq, openCloseSq, rsSum float64
	for i := 1; i <= n; i++ {
		prev, bar := clean[i-1], clean[i]
		overnight := math.Log(bar.Open / prev.Close)
		openClose := math.Log(bar.Close / bar.Open)
		up := math.Log(bar.High / bar.Open)
		down := math.Log(bar.Low / bar.Open)

		overnightSq += overnight * overnight
		openCloseSq += openClose * openClose
		rsSum += up*(up-openClose) + down*(down-openClose)
	}

	denom := float64(n - 1)
	if n < 2 {
		denom = 1
	}
	k := 0.34 / (1.34 + float64(n+1)/denom)

	variance := overnightSq/denom + k*openCloseSq/denom + (1-k)*rsSum/denom
	if variance < 0 || math.IsNaN(variance) {
		variance = 0
	}
	return math.Sqrt(variance * float64(periods)), true
}

// RealizedVolatility is the degrade-to-zero form of Estimate: any shortfall in
// the input yields 0.0 so signal evaluation treats it as "no RV signal".
func RealizedVolatility(bars []models.OHLCBar) float64 {
	vol, _ := NewYangZhang().Estimate(bars)
	return vol
}

// AverageVolume is the mean volume of the trailing window of bars.
func AverageVolume(bars []models.OHLCBar, window int) float64 {
	if len(bars) == 0 {
		return 0
	}
	if window > 0 && len(bars) > window {
		bars = bars[len(bars)-window:]
	}
	var total float64
	for _, b := range bars {
		total += float64(b.Volume)
	}
	return total / float64(len(bars))
}
