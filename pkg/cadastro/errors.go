package cadastro

import (
	"errors"
	"fmt"
)

// ErrRegistrationInFlight is returned when a registration for the same NPJ is already running.
var ErrRegistrationInFlight = errors.New("registration already in progress for this npj")

// ValidationError reports bad input. It is always returned before any portal call.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PhaseError reports a phase that could not complete. Status carries the
// portal's own status text when the portal answered; Err carries the
// transport failure when it did not.
type PhaseError struct {
	Phase  Phase
	Step   string
	Status string
	Err    error
}

func (e *PhaseError) Error() string {
	switch {
	case e.Err != nil && e.Status != "":
		return fmt.Sprintf("%s: %s: %s: %v", e.Phase, e.Step, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Phase, e.Step, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Phase, e.Step, e.Status)
	}
}

func (e *PhaseError) Unwrap() error { return e.Err }

// FailedPhase returns the phase an error stopped at, or PhaseNone.
func FailedPhase(err error) Phase {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase
	}
	return PhaseNone
}
