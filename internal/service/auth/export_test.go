package auth

import "time"

// NewTestJWTService creates a service with a fixed secret, lifetime and clock.
func NewTestJWTService(secret string, lifetime time.Duration, now func() time.Time) JWTService {
	return &hmacJWTService{
		signingKey:    []byte(secret),
		tokenLifetime: lifetime,
		timeFunc:      now,
		clockSkew:     2 * time.Minute,
	}
}
