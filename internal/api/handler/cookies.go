package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-service/internal/core/domain"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
	// refreshCookiePath keeps the refresh token off every request but the
	// ones that consume it.
	refreshCookiePath = "/auth"
)

// CookieOptions controls how session cookies are written.
type CookieOptions struct {
	Secure bool
}

func (o CookieOptions) setSession(c echo.Context, s domain.Session) {
	c.SetCookie(o.cookie(accessCookie, "/", s.Access.Value, s.Access.ExpiresAt))
	c.SetCookie(o.cookie(refreshCookie, refreshCookiePath, s.Refresh.Value, s.Refresh.ExpiresAt))
}

func (o CookieOptions) clearSession(c echo.Context) {
	for _, ck := range []*http.Cookie{
		o.cookie(accessCookie, "/", "", time.Unix(0, 0)),
		o.cookie(refreshCookie, refreshCookiePath, "", time.Unix(0, 0)),
	} {
		ck.MaxAge = -1
		c.SetCookie(ck)
	}
}

func (o CookieOptions) cookie(name, path, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expires,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// presentedRefresh returns the refresh token from the cookie, falling back
// to the JSON body.
func presentedRefresh(c echo.Context) (string, error) {
	if ck, err := c.Cookie(refreshCookie); err == nil && ck.Value != "" {
		return ck.Value, nil
	}
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	return req.RefreshToken, nil
}
