package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/dayboard/internal/domain"
)

// Common service errors, checked with errors.Is.
// The API layer maps them to HTTP status codes.
var (
	// ErrNotOwned indicates a board or task belongs to someone the actor may not act for.
	// API layer should map this to HTTP 403 Forbidden.
	ErrNotOwned = fmt.Errorf("%w: resource is owned by another user", domain.ErrPermissionDenied)

	// ErrElevationRequired indicates the operation is reserved for elevated roles.
	ErrElevationRequired = fmt.Errorf("%w: elevated role required", domain.ErrPermissionDenied)

	// ErrRefetchRequired is returned by the Reconciler whenever a proposed change
	// was not persisted. Clients must drop their optimistic state and reload.
	// API layer should map this to HTTP 409 Conflict.
	ErrRefetchRequired = errors.New("change was not applied, refetch the board")
)

// ServiceError is a custom error type for service errors.
type ServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("board service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("board service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(operation, message string, err error) *ServiceError {
	return &ServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
