package ports

import (
	"context"

	"github.com/99minutos/identity-service/internal/core/domain"
)

// SignupInput is the already-validated signup payload.
type SignupInput struct {
	Email    string
	Password string
	Name     string
	Surname  string
	Profile  domain.Profile
}

type SignupResult struct {
	User            *domain.User
	Session         domain.Session
	VerifyEmailLink string
}

type LoginResult struct {
	User    *domain.User
	Session domain.Session
}

type AuthService interface {
	Signup(ctx context.Context, in SignupInput) (*SignupResult, error)
	// Login returns a *domain.UnverifiedError carrying a fresh verification
	// link when the credentials match an account that is not yet active.
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	// VerifyEmail reports alreadyVerified=true for idempotent repeats.
	VerifyEmail(ctx context.Context, userID, token string) (alreadyVerified bool, err error)
	// RequestPasswordReset returns the reset link. With generic responses
	// enabled, unknown emails return an empty link and no error.
	RequestPasswordReset(ctx context.Context, email string) (link string, err error)
	// ResetPassword returns the login link for the confirmation response.
	ResetPassword(ctx context.Context, userID, token, newPassword string) (loginLink string, err error)
	RefreshSession(ctx context.Context, refreshToken string) (*LoginResult, error)
	Logout(ctx context.Context, refreshToken string) error
}

type UserService interface {
	Profile(ctx context.Context, id string) (*domain.User, error)
	UpdateUser(ctx context.Context, actor *domain.User, targetID string, patch domain.UserPatch) (*domain.User, error)
	DeleteUser(ctx context.Context, actor *domain.User, targetID string) error
}
