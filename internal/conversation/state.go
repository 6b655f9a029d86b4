// Package conversation drives the blueprint pipeline's dialogue: the
// state machine, the per-turn contract, and blueprint assembly from the
// generation engine, cache, and diagram extractor.
package conversation

import "errors"

// State is a conversation lifecycle stage. Values are stored on the
// session record and key the prompt tables, so they never change shape.
type State string

const (
	StateClarification State = "clarification"
	StateUpsell        State = "upsell"
	StateGeneration    State = "blueprint_generation"
	StatePresentation  State = "blueprint_presentation"
	StateComplete      State = "complete"
)

// ErrInvalidTransition reports a move the transitions table does not
// allow. The session is left untouched.
var ErrInvalidTransition = errors.New("invalid state transition")

// transitions is the sole authority on legal moves. Presentation may
// loop back to generation for revision requests; complete is terminal.
var transitions = map[State][]State{
	StateClarification: {StateUpsell},
	StateUpsell:        {StateGeneration},
	StateGeneration:    {StatePresentation},
	StatePresentation:  {StateGeneration, StateComplete},
	StateComplete:      {},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidState reports whether s names a known lifecycle stage.
func ValidState(s State) bool {
	_, ok := transitions[s]
	return ok
}

// Progress maps a state to its fixed completion percentage.
func Progress(s State) int {
	switch s {
	case StateClarification:
		return 20
	case StateUpsell:
		return 40
	case StateGeneration:
		return 70
	case StatePresentation:
		return 90
	case StateComplete:
		return 100
	}
	return 0
}
