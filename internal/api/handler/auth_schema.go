package handler

import (
	"time"

	"github.com/99minutos/identity-service/internal/core/domain"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

// unverifiedResponse is returned by login for accounts awaiting verification.
type unverifiedResponse struct {
	Error           string `json:"error"`
	VerifyEmailLink string `json:"verifyEmailLink"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// --- Request types ---

type profileRequest struct {
	Bio         string `json:"bio"         validate:"omitempty,max=500"`
	Nationality string `json:"nationality" validate:"omitempty,max=64"`
	Mobile      string `json:"mobile"      validate:"omitempty,max=32"`
	Avatar      string `json:"avatar"      validate:"omitempty,url"`
}

func (p profileRequest) toDomain() domain.Profile {
	return domain.Profile{Bio: p.Bio, Nationality: p.Nationality, Mobile: p.Mobile, Avatar: p.Avatar}
}

type signupRequest struct {
	Email           string         `json:"email"           validate:"required,email"`
	Password        string         `json:"password"        validate:"required,min=6"`
	ConfirmPassword string         `json:"confirmPassword" validate:"required,eqfield=Password"`
	Name            string         `json:"name"            validate:"omitempty,max=100"`
	Surname         string         `json:"surname"         validate:"omitempty,max=100"`
	Profile         profileRequest `json:"profile"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Password        string `json:"password"        validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// refreshRequest is optional; the refreshToken cookie takes precedence.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type updateUserRequest struct {
	Email           *string         `json:"email"           validate:"omitempty,email"`
	Name            *string         `json:"name"            validate:"omitempty,max=100"`
	Surname         *string         `json:"surname"         validate:"omitempty,max=100"`
	Profile         *profileRequest `json:"profile"`
	Role            *string         `json:"role"            validate:"omitempty,oneof=user admin manager supervisor moderator guide client"`
	Password        *string         `json:"password"        validate:"omitempty,min=6"`
	ConfirmPassword *string         `json:"confirmPassword"`
}

// passwordConfirmed reports whether a password change carries a matching
// confirmation. Requests without a password change always pass.
func (r updateUserRequest) passwordConfirmed() bool {
	if r.Password == nil {
		return true
	}
	return r.ConfirmPassword != nil && *r.ConfirmPassword == *r.Password
}

func (r updateUserRequest) toPatch() domain.UserPatch {
	patch := domain.UserPatch{
		Email:    r.Email,
		Name:     r.Name,
		Surname:  r.Surname,
		Password: r.Password,
	}
	if r.Profile != nil {
		p := r.Profile.toDomain()
		patch.Profile = &p
	}
	if r.Role != nil {
		role := domain.Role(*r.Role)
		patch.Role = &role
	}
	return patch
}

// --- Response types ---

type sessionResponse struct {
	AccessToken           string       `json:"accessToken"`
	AccessTokenExpiresAt  time.Time    `json:"accessTokenExpiresAt"`
	RefreshToken          string       `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time    `json:"refreshTokenExpiresAt"`
	User                  *domain.User `json:"user"`
}

type signupResponse struct {
	sessionResponse
	VerifyEmailLink string `json:"verifyEmailLink,omitempty"`
}

type forgotPasswordResponse struct {
	Message           string `json:"message"`
	ResetPasswordLink string `json:"resetPasswordLink,omitempty"`
}

type resetPasswordResponse struct {
	Message   string `json:"message"`
	LoginLink string `json:"loginLink"`
}

func newSessionResponse(user *domain.User, s domain.Session) sessionResponse {
	return sessionResponse{
		AccessToken:           s.Access.Value,
		AccessTokenExpiresAt:  s.Access.ExpiresAt,
		RefreshToken:          s.Refresh.Value,
		RefreshTokenExpiresAt: s.Refresh.ExpiresAt,
		User:                  user.Public(),
	}
}
