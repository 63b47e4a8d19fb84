package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-service/internal/api/metrics"
	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
)

const (
	// IdentityKey is the echo context key holding the authenticated *domain.User.
	IdentityKey = "identity"
	// AccessCookie is the cookie consulted when no Authorization header is sent.
	AccessCookie = "accessToken"
)

// UserLookup resolves a verified subject to a user record.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// Authenticate resolves the bearer access token to a user and stores the
// password-stripped record under IdentityKey.
//
// No credential is 401. A credential that is expired, forged, belongs to a
// deleted user or is no longer the user's current access token is 403.
func Authenticate(codec ports.TokenCodec, users UserLookup, ledger ports.TokenLedger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c)
			if err != nil {
				return deny("missing", http.StatusUnauthorized, err.Error())
			}

			claims, err := codec.Verify(token, domain.TokenAccess)
			if err != nil {
				if errors.Is(err, domain.ErrTokenExpired) {
					return deny("expired", http.StatusForbidden, "token expired")
				}
				return deny("invalid", http.StatusForbidden, "invalid token")
			}

			ctx := c.Request().Context()
			user, err := users.FindByID(ctx, claims.UserID)
			if err != nil {
				if errors.Is(err, domain.ErrUserNotFound) {
					return deny("unknown_user", http.StatusForbidden, "invalid token")
				}
				return err
			}

			rec, err := ledger.Find(ctx, user.ID)
			if err != nil {
				if errors.Is(err, domain.ErrSessionNotFound) {
					return deny("revoked", http.StatusForbidden, "session revoked")
				}
				return err
			}
			if !domain.DigestMatches(token, rec.Session.AccessDigest) {
				return deny("revoked", http.StatusForbidden, "session revoked")
			}

			c.Set(IdentityKey, user.Public())
			return next(c)
		}
	}
}

// Identity returns the user stored by Authenticate.
func Identity(c echo.Context) (*domain.User, bool) {
	u, ok := c.Get(IdentityKey).(*domain.User)
	return u, ok && u != nil
}

func bearerToken(c echo.Context) (string, error) {
	if authHeader := c.Request().Header.Get(echo.HeaderAuthorization); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", errors.New("invalid authorization header")
		}
		return strings.TrimSpace(parts[1]), nil
	}
	if cookie, err := c.Cookie(AccessCookie); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	return "", errors.New("missing authorization header")
}

func deny(reason string, code int, msg string) error {
	metrics.AuthorizationDeniedTotal.WithLabelValues(reason).Inc()
	return echo.NewHTTPError(code, msg)
}
