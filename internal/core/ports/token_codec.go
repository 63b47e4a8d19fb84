package ports

import (
	"time"

	"github.com/99minutos/identity-service/internal/core/domain"
)

// TokenClaims is the verified content of a bearer token.
type TokenClaims struct {
	UserID    string
	Class     domain.TokenClass
	Issuer    string
	ExpiresAt time.Time
}

// TokenCodec signs and verifies bearer tokens. Verify returns
// domain.ErrTokenExpired or domain.ErrTokenInvalid, never anything else for a
// bad token.
type TokenCodec interface {
	Sign(userID string, class domain.TokenClass) (domain.IssuedToken, error)
	Verify(token string, class domain.TokenClass) (*TokenClaims, error)
	VerifyFor(token string, class domain.TokenClass, userID string) (*TokenClaims, error)
}
