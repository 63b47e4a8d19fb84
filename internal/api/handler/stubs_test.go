package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-service/internal/api/middleware"
	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
)

type stubAuthService struct {
	signupFn  func(ctx context.Context, in ports.SignupInput) (*ports.SignupResult, error)
	loginFn   func(ctx context.Context, email, password string) (*ports.LoginResult, error)
	verifyFn  func(ctx context.Context, userID, token string) (bool, error)
	forgotFn  func(ctx context.Context, email string) (string, error)
	resetFn   func(ctx context.Context, userID, token, password string) (string, error)
	refreshFn func(ctx context.Context, token string) (*ports.LoginResult, error)
	logoutFn  func(ctx context.Context, token string) error
}

func (s *stubAuthService) Signup(ctx context.Context, in ports.SignupInput) (*ports.SignupResult, error) {
	return s.signupFn(ctx, in)
}

func (s *stubAuthService) Login(ctx context.Context, email, password string) (*ports.LoginResult, error) {
	return s.loginFn(ctx, email, password)
}

func (s *stubAuthService) VerifyEmail(ctx context.Context, userID, token string) (bool, error) {
	return s.verifyFn(ctx, userID, token)
}

func (s *stubAuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	return s.forgotFn(ctx, email)
}

func (s *stubAuthService) ResetPassword(ctx context.Context, userID, token, password string) (string, error) {
	return s.resetFn(ctx, userID, token, password)
}

func (s *stubAuthService) RefreshSession(ctx context.Context, token string) (*ports.LoginResult, error) {
	return s.refreshFn(ctx, token)
}

func (s *stubAuthService) Logout(ctx context.Context, token string) error {
	return s.logoutFn(ctx, token)
}

type stubUserService struct {
	profileFn func(ctx context.Context, id string) (*domain.User, error)
	updateFn  func(ctx context.Context, actor *domain.User, id string, patch domain.UserPatch) (*domain.User, error)
	deleteFn  func(ctx context.Context, actor *domain.User, id string) error
}

func (s *stubUserService) Profile(ctx context.Context, id string) (*domain.User, error) {
	return s.profileFn(ctx, id)
}

func (s *stubUserService) UpdateUser(ctx context.Context, actor *domain.User, id string, patch domain.UserPatch) (*domain.User, error) {
	return s.updateFn(ctx, actor, id, patch)
}

func (s *stubUserService) DeleteUser(ctx context.Context, actor *domain.User, id string) error {
	return s.deleteFn(ctx, actor, id)
}

var testSession = domain.Session{
	Access:  domain.IssuedToken{Value: "access-1", ExpiresAt: time.Date(2026, 1, 1, 14, 0, 0, 0, time.UTC)},
	Refresh: domain.IssuedToken{Value: "refresh-1", ExpiresAt: time.Date(2026, 1, 8, 12, 0, 0, 0, time.UTC)},
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func withIdentity(c echo.Context, u *domain.User) {
	c.Set(middleware.IdentityKey, u)
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func httpCode(err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return 0
}
