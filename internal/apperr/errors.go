// Package apperr defines the error kinds surfaced by the booking and admission services.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation blocks an operation because input or preconditions are wrong. State is unchanged.
	ErrValidation = errors.New("validation failed")
	// ErrCollaborator wraps a failed store or authority call. Retryable by the operator.
	ErrCollaborator = errors.New("collaborator call failed")
	// ErrTimeout means the approval authority did not confirm the batch within the polling budget.
	ErrTimeout = errors.New("approval timed out")
	// ErrGuardedState rejects a cancel while approval is pending or granted.
	ErrGuardedState = errors.New("operation not allowed in current step")
	// ErrInvalidTransition rejects an operation the current step does not accept.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write collides with existing data (e.g. overlapping booking).
	ErrConflict = errors.New("conflict")
)

// Validation returns an ErrValidation with a formatted reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Collaborator wraps err from the named collaborator operation as ErrCollaborator.
func Collaborator(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCollaborator, op, err)
}

// Code is the machine-readable kind reported to API clients.
type Code string

const (
	CodeValidation        Code = "VALIDATION"
	CodeCollaborator      Code = "COLLABORATOR_FAILED"
	CodeTimeout           Code = "APPROVAL_TIMEOUT"
	CodeGuardedState      Code = "GUARDED_STATE"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeInternal          Code = "INTERNAL"
)

// CodeOf classifies err. Unknown errors are CodeInternal.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrCollaborator):
		return CodeCollaborator
	case errors.Is(err, ErrGuardedState):
		return CodeGuardedState
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	default:
		return CodeInternal
	}
}
