package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/config"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret  = "test-secret-that-is-long-enough-for-testing"
	wrongSecret = "wrong-secret-that-is-long-enough-for-testing"
)

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tokenLifetime := 60 * time.Minute
	company := uuid.New()
	identity := Identity{UserID: uuid.New(), Role: domain.RoleSupervisor, CompanyID: &company}

	svc := NewTestJWTService(testSecret, tokenLifetime, func() time.Time {
		return fixedTime
	})

	t.Run("generates valid token", func(t *testing.T) {
		t.Parallel()
		token, err := svc.GenerateToken(context.Background(), identity)
		require.NoError(t, err)
		require.NotEmpty(t, token)

		claims, err := svc.ValidateToken(context.Background(), token)
		require.NoError(t, err)

		assert.Equal(t, identity.UserID, claims.UserID)
		assert.Equal(t, domain.RoleSupervisor, claims.Role)
		require.NotNil(t, claims.CompanyID)
		assert.Equal(t, company, *claims.CompanyID)
		assert.Equal(t, identity.UserID.String(), claims.Subject)
		assert.Equal(t, fixedTime.Unix(), claims.IssuedAt.Unix())
		assert.Equal(t, fixedTime.Add(tokenLifetime).Unix(), claims.ExpiresAt.Unix())
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("rejects unknown role", func(t *testing.T) {
		t.Parallel()
		_, err := svc.GenerateToken(context.Background(), Identity{UserID: uuid.New(), Role: "root"})
		assert.ErrorIs(t, err, ErrInvalidRole)
	})

	t.Run("rejects empty user", func(t *testing.T) {
		t.Parallel()
		_, err := svc.GenerateToken(context.Background(), Identity{Role: domain.RoleUser})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestValidateToken(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tokenLifetime := 60 * time.Minute
	identity := Identity{UserID: uuid.New(), Role: domain.RoleUser}
	at := func(t time.Time) func() time.Time { return func() time.Time { return t } }

	forged := func(role string, userID uuid.UUID, method jwt.SigningMethod, key any) string {
		claims := jwtCustomClaims{
			UserID: userID,
			Role:   role,
			RegisteredClaims: jwt.RegisteredClaims{
				IssuedAt:  jwt.NewNumericDate(fixedTime),
				ExpiresAt: jwt.NewNumericDate(fixedTime.Add(time.Hour)),
			},
		}
		token, _ := jwt.NewWithClaims(method, claims).SignedString(key)
		return token
	}

	tests := []struct {
		name      string
		setupFunc func() (JWTService, string)
		wantErr   error
	}{
		{
			name: "valid token",
			setupFunc: func() (JWTService, string) {
				svc := NewTestJWTService(testSecret, tokenLifetime, at(fixedTime))
				token, _ := svc.GenerateToken(context.Background(), identity)
				return svc, token
			},
		},
		{
			name: "expired token",
			setupFunc: func() (JWTService, string) {
				genSvc := NewTestJWTService(testSecret, tokenLifetime, at(fixedTime))
				token, _ := genSvc.GenerateToken(context.Background(), identity)
				return NewTestJWTService(testSecret, tokenLifetime, at(fixedTime.Add(tokenLifetime+time.Hour))), token
			},
			wantErr: ErrExpiredToken,
		},
		{
			name: "within clock skew",
			setupFunc: func() (JWTService, string) {
				genSvc := NewTestJWTService(testSecret, tokenLifetime, at(fixedTime))
				token, _ := genSvc.GenerateToken(context.Background(), identity)
				return NewTestJWTService(testSecret, tokenLifetime, at(fixedTime.Add(tokenLifetime+time.Minute))), token
			},
		},
		{
			name: "invalid signature",
			setupFunc: func() (JWTService, string) {
				genSvc := NewTestJWTService(testSecret, tokenLifetime, at(fixedTime))
				token, _ := genSvc.GenerateToken(context.Background(), identity)
				return NewTestJWTService(wrongSecret, tokenLifetime, at(fixedTime)), token
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "malformed token",
			setupFunc: func() (JWTService, string) {
				return NewTestJWTService(testSecret, tokenLifetime, at(fixedTime)), "this.is.not.a.valid.jwt.token"
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "missing token",
			setupFunc: func() (JWTService, string) {
				return NewTestJWTService(testSecret, tokenLifetime, at(fixedTime)), ""
			},
			wantErr: ErrMissingToken,
		},
		{
			name: "unknown role",
			setupFunc: func() (JWTService, string) {
				return NewTestJWTService(testSecret, tokenLifetime, at(fixedTime)),
					forged("root", uuid.New(), jwt.SigningMethodHS256, []byte(testSecret))
			},
			wantErr: ErrInvalidRole,
		},
		{
			name: "missing user id",
			setupFunc: func() (JWTService, string) {
				return NewTestJWTService(testSecret, tokenLifetime, at(fixedTime)),
					forged("user", uuid.Nil, jwt.SigningMethodHS256, []byte(testSecret))
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "unexpected signing method",
			setupFunc: func() (JWTService, string) {
				return NewTestJWTService(testSecret, tokenLifetime, at(fixedTime)),
					forged("user", uuid.New(), jwt.SigningMethodHS512, []byte(testSecret))
			},
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, token := tt.setupFunc()
			claims, err := svc.ValidateToken(context.Background(), token)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, identity.UserID, claims.UserID)
			assert.Equal(t, domain.RoleUser, claims.Role)
		})
	}
}

func TestNewJWTService(t *testing.T) {
	t.Parallel()

	_, err := NewJWTService(config.AuthConfig{JWTSecret: "short", TokenLifetimeMinutes: 60})
	assert.Error(t, err)

	svc, err := NewJWTService(config.AuthConfig{JWTSecret: testSecret, TokenLifetimeMinutes: 60})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestClaimsActor(t *testing.T) {
	t.Parallel()
	company := uuid.New()
	claims := &Claims{Identity: Identity{UserID: uuid.New(), Role: domain.RoleAdmin, CompanyID: &company}}

	cfg := config.AuthConfig{ElevatedRoles: []string{"admin", "supervisor"}}
	actor := claims.Actor(cfg.IsElevated)
	assert.True(t, actor.Elevated)
	assert.Equal(t, claims.UserID, actor.ID)
	assert.Equal(t, company, *actor.CompanyID)

	claims.Role = domain.RoleUser
	assert.False(t, claims.Actor(cfg.IsElevated).Elevated)
	assert.False(t, claims.Actor(nil).Elevated)
}
