// Package signals derives the three binary volatility signals that drive the
// calendar-spread decision: term-structure backwardation, IV/RV richness and
// liquidity.
package signals

import (
	"fmt"
	"io"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/eddiefleurent/ivcrush/internal/util"
	"github.com/eddiefleurent/ivcrush/internal/volatility"
)

// Default thresholds.
const (
	DefaultTSSlopeThreshold = -0.00406
	DefaultIVRVThreshold    = 1.25
	DefaultMinAvgVolume     = 1_500_000
	DefaultSlopeWindowDays  = 45
	// IV30Days is the tenor at which the term structure is sampled for IV30.
	IV30Days = 30
)

// Recommendation is the qualitative read of the signal count.
type Recommendation string

// Recommendation values.
const (
	Bullish Recommendation = "BULLISH"
	Neutral Recommendation = "NEUTRAL"
	Bearish Recommendation = "BEARISH"
)

// RecommendationFor maps a signal count to its recommendation.
func RecommendationFor(count int) Recommendation {
	switch {
	case count >= 2:
		return Bullish
	case count == 1:
		return Neutral
	default:
		return Bearish
	}
}

// Thresholds are the numeric cut-offs for the three signals.
type Thresholds struct {
	TSSlope         float64 `json:"ts_slope" yaml:"ts_slope_threshold"`
	IVRV            float64 `json:"iv_rv" yaml:"iv_rv_threshold"`
	MinAvgVolume    float64 `json:"min_avg_volume" yaml:"min_avg_volume"`
	SlopeWindowDays float64 `json:"slope_window_days" yaml:"slope_window_days"`
}

// DefaultThresholds returns the documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TSSlope:         DefaultTSSlopeThreshold,
		IVRV:            DefaultIVRVThreshold,
		MinAvgVolume:    DefaultMinAvgVolume,
		SlopeWindowDays: DefaultSlopeWindowDays,
	}
}

// Input carries everything the evaluator consumes.
type Input struct {
	Term            *volatility.TermStructure
	UnderlyingPrice float64
	StraddleMid     float64
	RealizedVol     float64
	AvgVolume       float64
}

// Result is the signal breakdown for one symbol.
type Result struct {
	ExpectedMovePct *float64       `json:"expected_move_pct,omitempty"`
	Recommendation  Recommendation `json:"recommendation"`
	Notes           []string       `json:"notes,omitempty"`
	TSSlope         float64        `json:"ts_slope"`
	SlopeStartDTE   float64        `json:"slope_start_dte"`
	SlopeEndDTE     float64        `json:"slope_end_dte"`
	IV30            float64        `json:"iv30"`
	RV30            float64        `json:"rv30"`
	IVRVRatio       float64        `json:"iv_rv_ratio"`
	AvgVolume       float64        `json:"avg_volume"`
	SignalCount     int            `json:"signal_count"`
	TSSlopeSignal   bool           `json:"ts_slope_signal"`
	IVRVSignal      bool           `json:"iv_rv_signal"`
	VolumeSignal    bool           `json:"volume_signal"`
}

// Evaluator applies a fixed set of thresholds.
type Evaluator struct {
	logger     *logrus.Logger
	thresholds Thresholds
	strict     bool
}

// NewEvaluator creates an evaluator. In strict mode the supplied thresholds
// are ignored and the defaults are pinned.
func NewEvaluator(th Thresholds, strict bool, logger *logrus.Logger) *Evaluator {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if strict {
		if th != DefaultThresholds() {
			logger.WithField("requested", th).Warn("strict thresholds enabled, ignoring overrides")
		}
		th = DefaultThresholds()
	}
	if th.SlopeWindowDays <= 0 {
		th.SlopeWindowDays = DefaultSlopeWindowDays
	}
	return &Evaluator{thresholds: th, strict: strict, logger: logger}
}

// Thresholds returns the thresholds in effect.
func (e *Evaluator) Thresholds() Thresholds { return e.thresholds }

// SlopeSignal reports backwardation. The comparison is inclusive.
func (e *Evaluator) SlopeSignal(slope float64) bool {
	return slope <= e.thresholds.TSSlope
}

// IVRVSignal returns the IV30/RV30 ratio and whether it clears the threshold.
// A zero or missing RV yields no signal.
func (e *Evaluator) IVRVSignal(iv30, rv30 float64) (float64, bool) {
	if rv30 <= 0 || math.IsNaN(rv30) || iv30 <= 0 {
		return 0, false
	}
	ratio := iv30 / rv30
	return ratio, ratio >= e.thresholds.IVRV
}

// VolumeSignal reports whether average volume clears the liquidity threshold.
func (e *Evaluator) VolumeSignal(avgVolume float64) bool {
	return avgVolume >= e.thresholds.MinAvgVolume
}

// SlopeWindow returns the DTE pair the slope is measured across: the front
// expiry and the earlier of the slope window and the next expiry. When the
// front expiry is already beyond the window, the next expiry is used.
func (e *Evaluator) SlopeWindow(ts *volatility.TermStructure) (start, end float64) {
	start = ts.FrontDTE()
	end = math.Min(e.thresholds.SlopeWindowDays, ts.NextDTE())
	if end <= start {
		end = ts.NextDTE()
	}
	return start, end
}

// Evaluate computes the three signals. A missing term structure is the only
// hard failure; absent RV or volume simply yield no signal.
func (e *Evaluator) Evaluate(in Input) (*Result, error) {
	if in.Term == nil {
		return nil, fmt.Errorf("signal evaluation: no term structure: %w", models.ErrInsufficientData)
	}

	res := &Result{RV30: in.RealizedVol, AvgVolume: in.AvgVolume}
	res.SlopeStartDTE, res.SlopeEndDTE = e.SlopeWindow(in.Term)
	res.TSSlope = in.Term.Slope(res.SlopeStartDTE, res.SlopeEndDTE)
	res.TSSlopeSignal = e.SlopeSignal(res.TSSlope)

	res.IV30 = in.Term.IV(IV30Days)
	res.IVRVRatio, res.IVRVSignal = e.IVRVSignal(res.IV30, in.RealizedVol)
	if in.RealizedVol <= 0 {
		res.Notes = append(res.Notes, "realized volatility unavailable, iv/rv signal off")
	}
	res.VolumeSignal = e.VolumeSignal(in.AvgVolume)

	for _, s := range []bool{res.TSSlopeSignal, res.IVRVSignal, res.VolumeSignal} {
		if s {
			res.SignalCount++
		}
	}
	res.Recommendation = RecommendationFor(res.SignalCount)

	if in.StraddleMid > 0 && in.UnderlyingPrice > 0 {
		move := util.PercentOf(in.StraddleMid, in.UnderlyingPrice)
		res.ExpectedMovePct = &move
	}

	e.logger.WithFields(logrus.Fields{
		"ts_slope":     res.TSSlope,
		"iv30":         res.IV30,
		"rv30":         res.RV30,
		"avg_volume":   res.AvgVolume,
		"signal_count": res.SignalCount,
	}).Debug("signals evaluated")
	return res, nil
}
