// Package offerstate provides the state machine definition for clearance offers.
//
// An offer represents one buyer being shortlisted for one lot. Each offer has
// a state that progresses through the state machine until reaching a terminal
// state.
//
// State machine:
//
//	pending -> offered     (worker publishes the offer to the buyer)
//	offered -> accepted    (buyer accepts)
//	offered -> declined    (buyer declines)
//	offered -> expired     (offer TTL passed without a decision)
//	pending -> expired     (lot expired before the offer went out)
//
// Terminal states (accepted, declined, expired) cannot transition further.
package offerstate

import (
	"database/sql/driver"
	"fmt"
)

// State represents the current state of a clearance offer.
type State string

const (
	// StatePending indicates the offer was created by the match engine but
	// has not been published to the buyer yet.
	StatePending State = "pending"

	// StateOffered indicates the offer has been published and is awaiting
	// the buyer's decision.
	StateOffered State = "offered"

	// StateAccepted indicates the buyer accepted the offer.
	StateAccepted State = "accepted"

	// StateDeclined indicates the buyer declined the offer.
	StateDeclined State = "declined"

	// StateExpired indicates the offer lapsed without a decision, either
	// because its TTL passed or because the lot expired first.
	StateExpired State = "expired"
)

// AllStates returns all possible offer states.
func AllStates() []State {
	return []State{
		StatePending,
		StateOffered,
		StateAccepted,
		StateDeclined,
		StateExpired,
	}
}

// OpenStates returns the states in which an offer still counts against a lot.
func OpenStates() []State {
	return []State{
		StatePending,
		StateOffered,
	}
}

// IsValid returns true if the state is a valid State value.
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateOffered, StateAccepted, StateDeclined, StateExpired:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the state is a terminal (final) state.
// Terminal states cannot transition to any other state.
func (s State) IsTerminal() bool {
	switch s {
	case StateAccepted, StateDeclined, StateExpired:
		return true
	default:
		return false
	}
}

// IsOpen returns true if the offer is still pending a decision.
func (s State) IsOpen() bool {
	return s == StatePending || s == StateOffered
}

// CanTransitionTo returns true if a transition from this state to the
// target state is valid.
func (s State) CanTransitionTo(target State) bool {
	if s.IsTerminal() {
		return false
	}
	if s == target {
		return false
	}

	switch s {
	case StatePending:
		return target == StateOffered || target == StateExpired
	case StateOffered:
		return target == StateAccepted || target == StateDeclined || target == StateExpired
	}

	return false
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// Value implements driver.Valuer for database serialization.
func (s State) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements sql.Scanner for database deserialization.
func (s *State) Scan(src any) error {
	switch v := src.(type) {
	case string:
		state := State(v)
		if !state.IsValid() {
			return fmt.Errorf("offerstate: invalid state %q", v)
		}
		*s = state
		return nil
	case []byte:
		state := State(v)
		if !state.IsValid() {
			return fmt.Errorf("offerstate: invalid state %q", v)
		}
		*s = state
		return nil
	default:
		return fmt.Errorf("offerstate: cannot scan type %T into State", src)
	}
}

// Transition represents a state transition with validation.
type Transition struct {
	From State
	To   State
}

// Validate returns an error if the transition is invalid.
func (t Transition) Validate() error {
	if !t.From.IsValid() {
		return fmt.Errorf("offerstate: invalid source state %q", t.From)
	}
	if !t.To.IsValid() {
		return fmt.Errorf("offerstate: invalid target state %q", t.To)
	}
	if !t.From.CanTransitionTo(t.To) {
		return fmt.Errorf("offerstate: invalid transition from %q to %q", t.From, t.To)
	}
	return nil
}

// ValidTransitions returns all valid state transitions.
func ValidTransitions() []Transition {
	return []Transition{
		{From: StatePending, To: StateOffered},
		{From: StatePending, To: StateExpired},
		{From: StateOffered, To: StateAccepted},
		{From: StateOffered, To: StateDeclined},
		{From: StateOffered, To: StateExpired},
	}
}
