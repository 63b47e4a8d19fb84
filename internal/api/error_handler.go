package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/identity-service/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
}

type unverifiedResponse struct {
	Error           string `json:"error"`
	VerifyEmailLink string `json:"verifyEmailLink"`
}

// Reporter forwards unexpected errors to an error tracker.
type Reporter func(err error, r *http.Request)

// SentryReporter captures err on a hub scoped to the request. It is a no-op
// when Sentry was never initialised.
func SentryReporter(err error, r *http.Request) {
	hub := sentry.CurrentHub().Clone()
	hub.Scope().SetRequest(r)
	hub.CaptureException(err)
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs and reports unexpected errors without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger, report Reporter) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var unverified *domain.UnverifiedError
		if errors.As(err, &unverified) {
			_ = c.JSON(http.StatusUnauthorized, unverifiedResponse{
				Error:           domain.ErrUnverified.Error(),
				VerifyEmailLink: unverified.Link,
			})
			return
		}

		code, msg, ok := resolveError(err)
		if !ok {
			log.Error().
				Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Msg("unhandled error")
			if report != nil {
				report(err, c.Request())
			}
		}
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

// resolveError maps err to a status and client message. ok is false for
// errors the service did not expect.
func resolveError(err error) (code int, msg string, ok bool) {
	// Echo's own errors (bind failures, 404 from router, middleware rejections).
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code >= http.StatusInternalServerError {
			return he.Code, http.StatusText(he.Code), false
		}
		return he.Code, fmt.Sprintf("%v", he.Message), true
	}

	switch {
	case errors.Is(err, domain.ErrDuplicateEmail):
		return http.StatusConflict, domain.ErrDuplicateEmail.Error(), true
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, domain.ErrInvalidCredentials.Error(), true
	case errors.Is(err, domain.ErrUnverified):
		return http.StatusUnauthorized, domain.ErrUnverified.Error(), true
	case errors.Is(err, domain.ErrResetTokenInvalid):
		return http.StatusUnauthorized, domain.ErrInvalidOrExpiredToken.Error(), true
	case errors.Is(err, domain.ErrInvalidOrExpiredToken):
		return http.StatusBadRequest, domain.ErrInvalidOrExpiredToken.Error(), true
	case errors.Is(err, domain.ErrEmailNotRegistered):
		return http.StatusUnauthorized, domain.ErrEmailNotRegistered.Error(), true
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusBadRequest, domain.ErrSessionNotFound.Error(), true
	case errors.Is(err, domain.ErrTokenExpired):
		return http.StatusForbidden, domain.ErrTokenExpired.Error(), true
	case errors.Is(err, domain.ErrTokenInvalid):
		return http.StatusForbidden, domain.ErrTokenInvalid.Error(), true
	case errors.Is(err, domain.ErrRotationInProgress):
		return http.StatusConflict, domain.ErrRotationInProgress.Error(), true
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, domain.ErrUnauthenticated.Error(), true
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, domain.ErrForbidden.Error(), true
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, domain.ErrUserNotFound.Error(), true
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, domain.ErrInvalidInput.Error(), true
	}
	return http.StatusInternalServerError, "internal server error", false
}
