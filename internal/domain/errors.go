package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTaskStatus is returned when a status is not one of the assignable values.
	ErrInvalidTaskStatus = fmt.Errorf("%w: invalid task status", ErrValidation)

	// ErrInvalidPriority is returned when a priority is not one of the known values.
	ErrInvalidPriority = fmt.Errorf("%w: invalid task priority", ErrValidation)

	// ErrInvalidTransition is returned when a status change is not in the allowed set.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrPermissionDenied is returned when an actor may not mutate a task or board.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrBoardClosed is returned when a mutation targets a closed board.
	ErrBoardClosed = fmt.Errorf("%w: board is closed", ErrPermissionDenied)

	// ErrBoardNotToday is returned when a task is added to a board other than today's.
	ErrBoardNotToday = fmt.Errorf("%w: board is not today's board", ErrPermissionDenied)

	// ErrBoardMismatch is returned when a task does not belong to the board the caller expected.
	ErrBoardMismatch = errors.New("task does not belong to the expected board")
)

// ValidationError describes a single invalid field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// IsValidationError reports whether err is any kind of validation failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsPermissionError reports whether err denies the actor the requested mutation,
// including mutations refused because the board is closed.
func IsPermissionError(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
