package api

import (
	"errors"
	"net/http"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/api/shared"
	"github.com/phrazzld/dayboard/internal/domain"
)

// requireActor extracts the authenticated actor, writing a 401 when absent.
func requireActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := shared.GetActor(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return domain.Actor{}, false
	}
	return actor, true
}

// getPathUUID extracts a UUID from the URL path parameters.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, domain.NewValidationError(paramName, "is required")
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(paramName, "has invalid format")
	}
	return id, nil
}

// parseDate parses a YYYY-MM-DD value, returning fallback when raw is empty.
func parseDate(field, raw string, fallback civil.Date) (civil.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	d, err := civil.ParseDate(raw)
	if err != nil || !d.IsValid() {
		return civil.Date{}, domain.NewValidationError(field, "must be a date formatted YYYY-MM-DD")
	}
	return d, nil
}

// decodeAndValidate decodes the JSON body into v and validates it.
// An empty body is accepted when optional is set.
func decodeAndValidate(r *http.Request, v any, optional bool) error {
	if r.ContentLength == 0 && optional {
		return shared.ValidateRequest(v)
	}
	if err := shared.DecodeJSON(r, v); err != nil {
		if errors.Is(err, shared.ErrEmptyBody) {
			if optional {
				return shared.ValidateRequest(v)
			}
			return err
		}
		return domain.NewValidationError("body", "must be valid JSON")
	}
	return shared.ValidateRequest(v)
}
