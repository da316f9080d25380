package domain

import (
	"fmt"
	"time"
)

// SessionState is the abandonment-detection state for one browsing session.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionArmed
	SessionTriggered
	SessionShown
	SessionDismissed
	SessionConverted
)

// String returns a human-readable representation of the state.
func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "Idle"
	case SessionArmed:
		return "Armed"
	case SessionTriggered:
		return "Triggered"
	case SessionShown:
		return "Shown"
	case SessionDismissed:
		return "Dismissed"
	case SessionConverted:
		return "Converted"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the state ends the session's recovery flow.
func (s SessionState) Terminal() bool {
	return s == SessionDismissed || s == SessionConverted
}

// Variant is the A/B arm assigned to a session.
type Variant string

const (
	VariantControl   Variant = "control"
	VariantTreatment Variant = "treatment"
)

// ExitIntentSession tracks one browsing session's abandonment state.
// It is never persisted beyond the session.
type ExitIntentSession struct {
	State     SessionState `json:"state"`
	ArmedAt   time.Time    `json:"armed_at,omitempty"`
	Variant   Variant      `json:"variant"`
	ShownOnce bool         `json:"shown_once"`
}

// Transition moves the session to a new state, enforcing
// Idle -> Armed -> Triggered -> Shown -> {Dismissed | Converted}.
// The ShownOnce flag is set permanently on reaching Shown.
func (s *ExitIntentSession) Transition(to SessionState) error {
	if !validSessionTransition(s.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
	}
	if to == SessionShown {
		s.ShownOnce = true
	}
	s.State = to
	return nil
}

func validSessionTransition(from, to SessionState) bool {
	switch from {
	case SessionIdle:
		return to == SessionArmed
	case SessionArmed:
		return to == SessionTriggered
	case SessionTriggered:
		return to == SessionShown
	case SessionShown:
		return to == SessionDismissed || to == SessionConverted
	default:
		// Dismissed and Converted are terminal for the session.
		return false
	}
}
