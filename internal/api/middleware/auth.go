package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/dayboard/internal/api/shared"
	"github.com/phrazzld/dayboard/internal/platform/logger"
	"github.com/phrazzld/dayboard/internal/service/auth"
)

// AuthMiddleware provides JWT authentication for routes.
type AuthMiddleware struct {
	jwtService auth.JWTService
	elevated   func(role string) bool
}

// NewAuthMiddleware creates a new AuthMiddleware. elevated decides which
// roles may act on boards they do not own.
func NewAuthMiddleware(jwtService auth.JWTService, elevated func(role string) bool) *AuthMiddleware {
	if elevated == nil {
		elevated = func(string) bool { return false }
	}
	return &AuthMiddleware{
		jwtService: jwtService,
		elevated:   elevated,
	}
}

// Authenticate validates the bearer token and stores the resulting
// domain.Actor in the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := m.jwtService.ValidateToken(r.Context(), strings.TrimSpace(token))
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Token expired", err)
			case errors.Is(err, auth.ErrInvalidToken),
				errors.Is(err, auth.ErrInvalidRole),
				errors.Is(err, auth.ErrTokenNotYetValid),
				errors.Is(err, auth.ErrMissingToken):
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Invalid token", err,
					shared.WithElevatedLogLevel())
			default:
				shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Authentication error", err)
			}
			return
		}

		actor := claims.Actor(m.elevated)
		ctx := shared.WithActor(r.Context(), actor)
		log := logger.FromContext(ctx).With(
			slog.String("actor_id", actor.ID.String()),
			slog.String("role", string(actor.Role)))
		ctx = logger.WithLogger(ctx, log)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireElevated rejects requests whose actor is not elevated.
// It must run after Authenticate.
func RequireElevated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := shared.GetActor(r.Context())
		if !ok {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !actor.Elevated {
			shared.RespondWithError(w, r, http.StatusForbidden, "Elevated role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
