package migration

import (
	"context"
	"errors"

	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/store"
)

// Class is the error taxonomy that decides whether a failure is retried.
type Class string

// Error classes
const (
	ClassTransient  Class = "transient"
	ClassValidation Class = "validation"
	ClassPermission Class = "permission"
	ClassInternal   Class = "internal"
)

// ErrTargetClosed is returned when the target board for a run is already closed.
var ErrTargetClosed = errors.New("target board is closed")

// Classify maps an error onto the taxonomy. Only ClassTransient is retried.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return ClassInternal
	case store.IsTransientError(err):
		return ClassTransient
	case domain.IsPermissionError(err), errors.Is(err, ErrTargetClosed):
		return ClassPermission
	case domain.IsValidationError(err),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrBoardMismatch),
		errors.Is(err, store.ErrInvalidEntity):
		return ClassValidation
	default:
		return ClassInternal
	}
}

// IsRetryable reports whether err belongs to a class worth retrying.
func IsRetryable(err error) bool {
	return Classify(err) == ClassTransient
}
