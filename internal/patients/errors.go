package patients

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned by every operation invoked before Initialize completes.
	ErrNotReady = errors.New("patients: store not initialized")

	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("patients: validation failed")

	// ErrAppointmentNotFound is returned by UpdateAppointment for an unknown id.
	ErrAppointmentNotFound = errors.New("patients: appointment not found")
)

// ValidationError reports a malformed caller input. State is never mutated
// when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("patients: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func required(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "is required"}
}
