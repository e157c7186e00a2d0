package decision

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/ivcrush/internal/signals"
)

// Original confidences.
const (
	ConfidenceRecommended = 0.9
	ConfidenceConsider    = 0.6
	ConfidenceAvoid       = 0.1
)

// Original is the three-signal framework. Only the signal booleans matter:
// 3 signals recommend, exactly 2 including the slope signal warrant a look,
// anything else is avoided.
type Original struct {
	logger *logrus.Logger
}

// NewOriginal creates the three-signal strategy.
func NewOriginal(logger *logrus.Logger) *Original {
	return &Original{logger: logger}
}

// Framework implements Strategy.
func (o *Original) Framework() Framework { return FrameworkOriginal }

// Decide implements Strategy.
func (o *Original) Decide(in Input) Decision {
	sm := NewStateMachine(OriginalTransitions)
	d := Decision{Framework: FrameworkOriginal}

	r := in.Signals
	if r == nil {
		conclude(sm, StateAvoid, CondMissingPrerequisite, o.logger)
		d.Reasoning = []string{in.missing(StageSignals)}
		return o.finish(sm, d, ConfidenceAvoid)
	}
	count := 0
	for _, on := range []bool{r.TSSlopeSignal, r.IVRVSignal, r.VolumeSignal} {
		if on {
			count++
		}
	}
	d.SignalCount = count
	d.SignalBreakdown = breakdown(r)
	d.Reasoning = signalReasons(r)

	var confidence float64
	switch {
	case r.TSSlopeSignal && r.IVRVSignal && r.VolumeSignal:
		conclude(sm, StateRecommended, CondAllSignals, o.logger)
		confidence = ConfidenceRecommended
		d.Reasoning = append(d.Reasoning, "all three signals present")
	case count == 2 && r.TSSlopeSignal:
		conclude(sm, StateConsider, CondTwoSignalsWithSlope, o.logger)
		confidence = ConfidenceConsider
		d.Reasoning = append(d.Reasoning, "two signals including the term structure slope")
	default:
		conclude(sm, StateAvoid, CondInsufficientSignals, o.logger)
		confidence = ConfidenceAvoid
		if count == 2 {
			d.Reasoning = append(d.Reasoning, "two signals but term structure slope missing")
		} else {
			d.Reasoning = append(d.Reasoning, fmt.Sprintf("only %d of 3 signals present", count))
		}
	}
	return o.finish(sm, d, confidence)
}

func (o *Original) finish(sm *StateMachine, d Decision, confidence float64) Decision {
	d.Decision = sm.GetCurrentState()
	d.Condition = sm.Condition()
	d.DecidedAt = sm.TransitionTime()
	d.Confidence = confidence
	o.logger.WithFields(logrus.Fields{
		"framework":  d.Framework,
		"decision":   d.Decision,
		"condition":  d.Condition,
		"confidence": d.Confidence,
	}).Debug("decision reached")
	return d
}

// signalReasons describes each signal against its threshold.
func signalReasons(r *signals.Result) []string {
	mark := func(ok bool) string {
		if ok {
			return "PASS"
		}
		return "FAIL"
	}
	return []string{
		fmt.Sprintf("term structure slope %.5f: %s", r.TSSlope, mark(r.TSSlopeSignal)),
		fmt.Sprintf("IV30/RV30 ratio %.2f: %s", r.IVRVRatio, mark(r.IVRVSignal)),
		fmt.Sprintf("average volume %.0f: %s", r.AvgVolume, mark(r.VolumeSignal)),
	}
}
