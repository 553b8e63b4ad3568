package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/dayboard/internal/api/shared"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/migration"
	"github.com/phrazzld/dayboard/internal/service"
	"github.com/phrazzld/dayboard/internal/service/auth"
	"github.com/phrazzld/dayboard/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrRefetchRequired):
		return http.StatusConflict

	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	case domain.IsPermissionError(err),
		errors.Is(err, migration.ErrTargetClosed):
		return http.StatusForbidden

	case store.IsNotFoundError(err):
		return http.StatusNotFound

	case store.IsDuplicateError(err),
		errors.Is(err, domain.ErrBoardMismatch):
		return http.StatusConflict

	case domain.IsValidationError(err),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, shared.ErrEmptyBody),
		errors.As(err, &validationErrs):
		return http.StatusBadRequest

	case store.IsTransientError(err):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErr *domain.ValidationError
	var validationErrs validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrRefetchRequired):
		return "The change could not be saved, reload the board"

	case errors.Is(err, domain.ErrBoardClosed):
		return "Board is closed"
	case errors.Is(err, domain.ErrBoardNotToday):
		return "Tasks can only be added to today's board"
	case errors.Is(err, service.ErrElevationRequired):
		return "Elevated role required"
	case errors.Is(err, migration.ErrTargetClosed):
		return "Today's board is closed"
	case domain.IsPermissionError(err):
		return "You do not have access to this resource"

	case errors.Is(err, store.ErrBoardNotFound):
		return "Board not found"
	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"
	case store.IsNotFoundError(err):
		return "Not found"

	case errors.Is(err, domain.ErrBoardMismatch):
		return "Task does not belong to this board"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "Status change not allowed"

	case errors.As(err, &validationErrs):
		return SanitizeValidationError(validationErrs)
	case errors.As(err, &validationErr):
		return fmt.Sprintf("Invalid %s: %s", validationErr.Field, validationErr.Message)
	case errors.Is(err, domain.ErrInvalidTaskStatus):
		return "Invalid task status"
	case errors.Is(err, domain.ErrInvalidPriority):
		return "Invalid task priority"
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"
	case domain.IsValidationError(err), errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	case store.IsTransientError(err):
		return "Service temporarily unavailable, retry later"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator errors into a message naming the
// first offending field without exposing struct internals.
func SanitizeValidationError(errs validator.ValidationErrors) string {
	if len(errs) == 0 {
		return "Validation error"
	}
	fe := errs[0]
	return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too small"
	case "max":
		return "too large"
	case "oneof":
		return "invalid value"
	case "uuid":
		return "must be a UUID"
	case "datetime":
		return "invalid format"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the error response for err. A non-empty fallback
// replaces the generic message of unclassified errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}

	var opts []shared.ResponseOption
	if status == http.StatusConflict && errors.Is(err, service.ErrRefetchRequired) {
		opts = append(opts, shared.WithRefetch())
	}
	if status == http.StatusForbidden {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}
