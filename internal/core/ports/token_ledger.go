package ports

import (
	"context"

	"github.com/99minutos/identity-service/internal/core/domain"
)

// TokenLedger persists the single per-user TokenRecord. Token values are
// passed in raw form and stored as digests.
type TokenLedger interface {
	GetOrCreate(ctx context.Context, userID string) (*domain.TokenRecord, error)
	Find(ctx context.Context, userID string) (*domain.TokenRecord, error)

	// SetSession overwrites the session pair unconditionally.
	SetSession(ctx context.Context, userID string, s domain.Session) (*domain.TokenRecord, error)

	// RotateSession replaces the session pair only if presentedRefresh is
	// still the stored refresh token at write time. It returns
	// domain.ErrSessionNotFound when the condition no longer holds.
	RotateSession(ctx context.Context, userID, presentedRefresh string, next domain.Session) (*domain.TokenRecord, error)

	// FindByRefreshToken returns domain.ErrSessionNotFound when no record
	// currently holds value as its refresh token.
	FindByRefreshToken(ctx context.Context, value string) (*domain.TokenRecord, error)

	SetCapability(ctx context.Context, userID string, class domain.TokenClass, token domain.IssuedToken) error

	// ConsumeCapability clears the single-use slot iff presented matches the
	// stored, unexpired value. It reports whether a capability was consumed.
	ConsumeCapability(ctx context.Context, userID string, class domain.TokenClass, presented string) (bool, error)

	// ClearSession removes the session pair holding presentedRefresh.
	ClearSession(ctx context.Context, presentedRefresh string) error

	DeleteAll(ctx context.Context, userID string) error
}

// RotationLocker serializes session rotation per user. Acquire returns
// domain.ErrRotationInProgress when another rotation holds the lock.
type RotationLocker interface {
	Acquire(ctx context.Context, userID string) (release func(), err error)
}
