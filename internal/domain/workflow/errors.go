package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when no edge exists for a
	// (state, trigger) pair in the transition table
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not a valid report status
	ErrInvalidState = errors.New("invalid state")
)
