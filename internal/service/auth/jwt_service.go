// Package auth validates and issues the bearer tokens that carry caller
// identity. Users and roles are managed by an external identity provider;
// this package only trusts tokens signed with the shared secret.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/domain"
)

// JWTService defines operations for managing JWT authentication tokens.
type JWTService interface {
	// GenerateToken creates a signed JWT access token for the identity.
	// Used by operators and tests; production tokens come from the identity provider.
	GenerateToken(ctx context.Context, identity Identity) (string, error)

	// ValidateToken validates the provided access token string and extracts the claims.
	// Returns the claims containing user information if the token is valid,
	// or an error if validation fails (expired, invalid signature, unknown role).
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Identity is who a token speaks for.
type Identity struct {
	UserID    uuid.UUID
	Role      domain.Role
	CompanyID *uuid.UUID
}

// Claims represents the custom claims structure for the JWT tokens.
type Claims struct {
	Identity

	// Standard registered JWT claims
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}

// Actor turns validated claims into the actor used for authorization.
// elevated reports whether the role carries elevated privilege.
func (c *Claims) Actor(elevated func(role string) bool) domain.Actor {
	actor := domain.Actor{
		ID:   c.UserID,
		Role: c.Role,
	}
	if c.CompanyID != nil {
		company := *c.CompanyID
		actor.CompanyID = &company
	}
	if elevated != nil {
		actor.Elevated = elevated(string(c.Role))
	}
	return actor
}
