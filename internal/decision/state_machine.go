package decision

import (
	"fmt"
	"time"
)

// State is a decision state. Every state except StatePending is terminal.
type State string

const (
	// StatePending is the state before a framework has decided.
	StatePending State = "PENDING"

	// Original framework outcomes
	StateRecommended State = "RECOMMENDED"
	StateConsider    State = "CONSIDER"
	StateAvoid       State = "AVOID"

	// Enhanced framework outcomes (StateConsider is shared)
	StateExecute State = "EXECUTE"
	StatePass    State = "PASS"
)

// Transition conditions.
const (
	CondAllSignals          = "all_signals"
	CondTwoSignalsWithSlope = "two_signals_with_slope"
	CondInsufficientSignals = "insufficient_signals"
	CondMissingPrerequisite = "missing_prerequisite"
	CondDisqualified        = "disqualified"
	CondCriteriaMet         = "criteria_met"
	CondMixedCriteria       = "mixed_criteria"
)

// StateTransition defines a valid state transition
type StateTransition struct {
	From        State
	To          State
	Condition   string
	Description string
}

// OriginalTransitions is the three-signal decision table.
var OriginalTransitions = []StateTransition{
	{StatePending, StateRecommended, CondAllSignals, "All three signals present"},
	{StatePending, StateConsider, CondTwoSignalsWithSlope, "Two signals including term structure slope"},
	{StatePending, StateAvoid, CondInsufficientSignals, "Signal requirements not met"},
	{StatePending, StateAvoid, CondMissingPrerequisite, "Signal analysis unavailable"},
}

// EnhancedTransitions is the weighted-score decision table.
var EnhancedTransitions = []StateTransition{
	{StatePending, StatePass, CondMissingPrerequisite, "Required analysis stage unavailable"},
	{StatePending, StatePass, CondDisqualified, "Disqualifying criterion hit"},
	{StatePending, StateExecute, CondCriteriaMet, "Execution criteria met"},
	{StatePending, StateConsider, CondMixedCriteria, "Neither disqualified nor execution-ready"},
}

// StateMachine runs a single decision through a transition table. It starts
// pending and accepts exactly one transition.
type StateMachine struct {
	transitionTime time.Time
	transitions    []StateTransition
	currentState   State
	condition      string
}

// NewStateMachine creates a pending state machine over table.
func NewStateMachine(table []StateTransition) *StateMachine {
	return &StateMachine{
		transitions:  table,
		currentState: StatePending,
	}
}

// GetCurrentState returns the current state
func (sm *StateMachine) GetCurrentState() State {
	return sm.currentState
}

// Condition returns the condition of the transition taken, if any.
func (sm *StateMachine) Condition() string {
	return sm.condition
}

// IsTerminal reports whether a decision has been reached.
func (sm *StateMachine) IsTerminal() bool {
	return sm.currentState != StatePending
}

// IsValidTransition checks if a transition is valid
func (sm *StateMachine) IsValidTransition(to State, condition string) error {
	if sm.IsTerminal() {
		return fmt.Errorf("decision already reached: %s", sm.currentState)
	}
	for _, t := range sm.transitions {
		if t.From == sm.currentState && t.To == to && t.Condition == condition {
			return nil
		}
	}
	return fmt.Errorf("invalid transition from %s to %s with condition '%s'", sm.currentState, to, condition)
}

// Transition moves to a terminal state.
func (sm *StateMachine) Transition(to State, condition string) error {
	if err := sm.IsValidTransition(to, condition); err != nil {
		return err
	}
	sm.currentState = to
	sm.condition = condition
	sm.transitionTime = time.Now().UTC()
	return nil
}

// TransitionTime returns when the decision was reached.
func (sm *StateMachine) TransitionTime() time.Time {
	return sm.transitionTime
}
