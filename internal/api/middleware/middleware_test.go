package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/api/shared"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/platform/logger"
	"github.com/phrazzld/dayboard/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubJWTService returns fixed claims or a fixed error.
type stubJWTService struct {
	claims *auth.Claims
	err    error
	seen   string
}

func (s *stubJWTService) GenerateToken(context.Context, auth.Identity) (string, error) {
	return "", errors.New("not implemented")
}

func (s *stubJWTService) ValidateToken(_ context.Context, token string) (*auth.Claims, error) {
	s.seen = token
	return s.claims, s.err
}

func elevatedAdmin(role string) bool { return role == string(domain.RoleAdmin) }

func serve(h http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	userID, company := uuid.New(), uuid.New()
	claims := &auth.Claims{Identity: auth.Identity{UserID: userID, Role: domain.RoleAdmin, CompanyID: &company}}

	var gotActor domain.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := shared.GetActor(r.Context())
		require.True(t, ok)
		gotActor = actor
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("valid token carries the actor", func(t *testing.T) {
		stub := &stubJWTService{claims: claims}
		rec := serve(NewAuthMiddleware(stub, elevatedAdmin).Authenticate(next), "Bearer abc.def")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "abc.def", stub.seen)
		assert.Equal(t, userID, gotActor.ID)
		assert.True(t, gotActor.Elevated)
		require.NotNil(t, gotActor.CompanyID)
		assert.Equal(t, company, *gotActor.CompanyID)
	})

	t.Run("lowercase scheme", func(t *testing.T) {
		rec := serve(NewAuthMiddleware(&stubJWTService{claims: claims}, nil).Authenticate(next), "bearer abc")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.False(t, gotActor.Elevated)
	})

	tests := []struct {
		name    string
		header  string
		err     error
		status  int
		message string
	}{
		{"missing header", "", nil, http.StatusUnauthorized, "Authorization header required"},
		{"basic scheme", "Basic dXNlcg==", nil, http.StatusUnauthorized, "Invalid authorization format"},
		{"empty token", "Bearer ", nil, http.StatusUnauthorized, "Invalid authorization format"},
		{"expired", "Bearer x", auth.ErrExpiredToken, http.StatusUnauthorized, "Token expired"},
		{"bad signature", "Bearer x", fmt.Errorf("%w: signature", auth.ErrInvalidToken), http.StatusUnauthorized, "Invalid token"},
		{"unknown role", "Bearer x", auth.ErrInvalidRole, http.StatusUnauthorized, "Invalid token"},
		{"unexpected failure", "Bearer x", errors.New("boom"), http.StatusInternalServerError, "Authentication error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubJWTService{err: tt.err}
			rec := serve(NewAuthMiddleware(stub, elevatedAdmin).Authenticate(next), tt.header)
			assert.Equal(t, tt.status, rec.Code)

			var body shared.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body.Error)
		})
	}
}

func TestRequireElevated(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := RequireElevated(ok)

	tests := []struct {
		name   string
		actor  *domain.Actor
		status int
	}{
		{"no actor", nil, http.StatusUnauthorized},
		{"regular user", &domain.Actor{ID: uuid.New(), Role: domain.RoleUser}, http.StatusForbidden},
		{"elevated", &domain.Actor{ID: uuid.New(), Role: domain.RoleSupervisor, Elevated: true}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.actor != nil {
				req = req.WithContext(shared.WithActor(req.Context(), *tt.actor))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestTraceMiddleware(t *testing.T) {
	t.Parallel()
	log, buf := logger.NewTestLogger()

	var traceID string
	h := NewTraceMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boards", nil))

	require.NotEmpty(t, traceID)
	_, err := uuid.Parse(traceID)
	assert.NoError(t, err)
	assert.Equal(t, traceID, rec.Header().Get("X-Trace-ID"))

	entries, err := buf.GetLogEntries()
	require.NoError(t, err)
	var tagged bool
	for _, e := range entries {
		if e["msg"] == "inside handler" {
			tagged = e["trace_id"] == traceID
		}
	}
	assert.True(t, tagged, "handler log lines carry the trace id")
}
