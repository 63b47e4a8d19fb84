package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnverified         = errors.New("email has not been verified")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailNotRegistered = errors.New("email is not associated with any account")
	ErrInvalidInput       = errors.New("invalid input")

	ErrInvalidOrExpiredToken    = errors.New("token invalid or expired")
	ErrVerificationTokenInvalid = fmt.Errorf("verify email: %w", ErrInvalidOrExpiredToken)
	ErrResetTokenInvalid        = fmt.Errorf("reset password: %w", ErrInvalidOrExpiredToken)

	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrSessionNotFound    = errors.New("no matching session")
	ErrRotationInProgress = errors.New("session rotation already in progress")

	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access forbidden")
)

// UnverifiedError is returned by Login when the credentials are correct but
// the account still awaits verification. Link is the freshly issued
// verification link, returned to the caller as a fallback channel.
type UnverifiedError struct {
	Link string
}

func (e *UnverifiedError) Error() string { return ErrUnverified.Error() }

func (e *UnverifiedError) Is(target error) bool { return target == ErrUnverified }
