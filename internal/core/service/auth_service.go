package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-service/internal/api/metrics"
	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
)

// AllowListSource yields the allow-list currently in force. The role guard
// implements it so a reload is seen by signup and authorization alike.
type AllowListSource interface {
	AllowList() *domain.RoleAllowList
}

// AuthOptions is the slice of configuration the auth service depends on.
type AuthOptions struct {
	// PublicURL is the base for links embedded in emails.
	PublicURL string
	// AutoVerifyPrivileged creates allow-listed admin, manager and
	// supervisor accounts already active.
	AutoVerifyPrivileged bool
	// GenericResetResponse hides whether an email is registered when a
	// reset is requested.
	GenericResetResponse bool
}

var _ ports.AuthService = (*AuthService)(nil)

// AuthService implements signup, login, session rotation and the
// verification and password reset flows.
type AuthService struct {
	users    *CredentialStore
	ledger   ports.TokenLedger
	codec    ports.TokenCodec
	locker   ports.RotationLocker
	notifier ports.Notifier
	roles    AllowListSource
	opts     AuthOptions
	log      zerolog.Logger
}

func NewAuthService(
	users *CredentialStore,
	ledger ports.TokenLedger,
	codec ports.TokenCodec,
	locker ports.RotationLocker,
	notifier ports.Notifier,
	roles AllowListSource,
	opts AuthOptions,
	log zerolog.Logger,
) *AuthService {
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")
	return &AuthService{
		users:    users,
		ledger:   ledger,
		codec:    codec,
		locker:   locker,
		notifier: notifier,
		roles:    roles,
		opts:     opts,
		log:      log,
	}
}

func (s *AuthService) Signup(ctx context.Context, in ports.SignupInput) (res *ports.SignupResult, err error) {
	defer func() { record("signup", err) }()

	role := s.roles.AllowList().ResolveRole(in.Email)
	verified := s.opts.AutoVerifyPrivileged && role.Privileged()

	user, err := s.users.CreateUser(ctx, domain.NewUser{
		Email:    in.Email,
		Password: in.Password,
		Name:     in.Name,
		Surname:  in.Surname,
		Profile:  in.Profile,
		Role:     role,
		Verified: verified,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.GetOrCreate(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("signup: token record: %w", err)
	}
	session, err := s.startSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}

	res = &ports.SignupResult{User: user, Session: session}
	if !verified {
		link, err := s.sendVerification(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("signup: %w", err)
		}
		res.VerifyEmailLink = link
	}

	s.log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Bool("verified", verified).Msg("user signed up")
	return res, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (res *ports.LoginResult, err error) {
	defer func() { record("login", err) }()

	user, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if !user.IsActive() {
		link, err := s.sendVerification(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
		return nil, &domain.UnverifiedError{Link: link}
	}

	session, err := s.startSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("user logged in")
	return &ports.LoginResult{User: user, Session: session}, nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, userID, token string) (already bool, err error) {
	defer func() { record("verify_email", err) }()

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return false, domain.ErrVerificationTokenInvalid
		}
		return false, err
	}
	if user.IsActive() {
		return true, nil
	}

	if err := s.redeem(ctx, userID, domain.TokenEmailVerification, token); err != nil {
		if errors.Is(err, domain.ErrInvalidOrExpiredToken) {
			return false, domain.ErrVerificationTokenInvalid
		}
		return false, fmt.Errorf("verify email: %w", err)
	}

	verified, active := true, domain.StatusActive
	if _, err := s.users.UpdateUser(ctx, userID, domain.UserPatch{IsVerified: &verified, Status: &active}); err != nil {
		return false, fmt.Errorf("verify email: %w", err)
	}

	s.log.Info().Str("user_id", userID).Msg("email verified")
	return false, nil
}

func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (link string, err error) {
	defer func() { record("request_reset", err) }()

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			if s.opts.GenericResetResponse {
				return "", nil
			}
			return "", domain.ErrEmailNotRegistered
		}
		return "", err
	}

	issued, err := s.issueCapability(ctx, user.ID, domain.TokenPasswordReset)
	if err != nil {
		return "", fmt.Errorf("request reset: %w", err)
	}
	link = s.link("reset-password", user.ID, issued.Value)
	s.notifier.Notify(domain.Notification{Kind: domain.MailResetRequest, To: user.Email, Name: user.FullName(), Link: link})

	s.log.Info().Str("user_id", user.ID).Msg("password reset requested")
	if s.opts.GenericResetResponse {
		return "", nil
	}
	return link, nil
}

func (s *AuthService) ResetPassword(ctx context.Context, userID, token, newPassword string) (loginLink string, err error) {
	defer func() { record("reset_password", err) }()

	if newPassword == "" {
		return "", domain.ErrInvalidInput
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", domain.ErrResetTokenInvalid
		}
		return "", err
	}

	if err := s.redeem(ctx, userID, domain.TokenPasswordReset, token); err != nil {
		if errors.Is(err, domain.ErrInvalidOrExpiredToken) {
			return "", domain.ErrResetTokenInvalid
		}
		return "", fmt.Errorf("reset password: %w", err)
	}

	if _, err := s.users.UpdateUser(ctx, userID, domain.UserPatch{Password: &newPassword}); err != nil {
		return "", fmt.Errorf("reset password: %w", err)
	}

	loginLink = s.opts.PublicURL + "/auth/login"
	s.notifier.Notify(domain.Notification{Kind: domain.MailResetConfirmation, To: user.Email, Name: user.FullName(), Link: loginLink})

	s.log.Info().Str("user_id", userID).Msg("password reset")
	return loginLink, nil
}

// RefreshSession rotates the session held by refreshToken. The presented
// token is invalid as soon as this returns successfully.
func (s *AuthService) RefreshSession(ctx context.Context, refreshToken string) (res *ports.LoginResult, err error) {
	defer func() { record("refresh", err) }()

	if refreshToken == "" {
		return nil, domain.ErrSessionNotFound
	}
	rec, err := s.ledger.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if _, err := s.codec.VerifyFor(refreshToken, domain.TokenRefresh, rec.UserID); err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	user, err := s.users.FindByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	next, err := s.newSession(user.ID)
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if _, err := s.ledger.RotateSession(ctx, user.ID, refreshToken, next); err != nil {
		return nil, err
	}

	s.log.Debug().Str("user_id", user.ID).Msg("session rotated")
	return &ports.LoginResult{User: user, Session: next}, nil
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) (err error) {
	defer func() { record("logout", err) }()

	if refreshToken == "" {
		return domain.ErrSessionNotFound
	}
	return s.ledger.ClearSession(ctx, refreshToken)
}

func (s *AuthService) newSession(userID string) (domain.Session, error) {
	access, err := s.codec.Sign(userID, domain.TokenAccess)
	if err != nil {
		return domain.Session{}, err
	}
	refresh, err := s.codec.Sign(userID, domain.TokenRefresh)
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{Access: access, Refresh: refresh}, nil
}

// startSession issues a pair and overwrites whatever session was stored.
func (s *AuthService) startSession(ctx context.Context, userID string) (domain.Session, error) {
	session, err := s.newSession(userID)
	if err != nil {
		return domain.Session{}, err
	}
	if _, err := s.ledger.SetSession(ctx, userID, session); err != nil {
		return domain.Session{}, fmt.Errorf("store session: %w", err)
	}
	return session, nil
}

func (s *AuthService) issueCapability(ctx context.Context, userID string, class domain.TokenClass) (domain.IssuedToken, error) {
	if !class.SingleUse() {
		return domain.IssuedToken{}, fmt.Errorf("issue capability: %s is not single-use", class)
	}
	issued, err := s.codec.Sign(userID, class)
	if err != nil {
		return domain.IssuedToken{}, err
	}
	if err := s.ledger.SetCapability(ctx, userID, class, issued); err != nil {
		return domain.IssuedToken{}, fmt.Errorf("store %s token: %w", class, err)
	}
	return issued, nil
}

// sendVerification replaces any pending verification capability and mails
// the new link. The link is returned for the response body.
func (s *AuthService) sendVerification(ctx context.Context, user *domain.User) (string, error) {
	issued, err := s.issueCapability(ctx, user.ID, domain.TokenEmailVerification)
	if err != nil {
		return "", err
	}
	link := s.link("verify-email", user.ID, issued.Value)
	s.notifier.Notify(domain.Notification{Kind: domain.MailVerification, To: user.Email, Name: user.FullName(), Link: link})
	return link, nil
}

// redeem verifies a single-use token and consumes it. Every failure that the
// caller may see is domain.ErrInvalidOrExpiredToken so wrong, expired and
// already used tokens look the same.
func (s *AuthService) redeem(ctx context.Context, userID string, class domain.TokenClass, token string) error {
	if !class.SingleUse() {
		return domain.ErrInvalidOrExpiredToken
	}
	if _, err := s.codec.VerifyFor(token, class, userID); err != nil {
		return domain.ErrInvalidOrExpiredToken
	}
	ok, err := s.ledger.ConsumeCapability(ctx, userID, class, token)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidOrExpiredToken
	}
	return nil
}

func (s *AuthService) link(action, userID, token string) string {
	return fmt.Sprintf("%s/auth/%s/%s/%s", s.opts.PublicURL, action, url.PathEscape(userID), url.PathEscape(token))
}

func record(op string, err error) {
	metrics.AuthOperationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrDuplicateEmail):
		return "duplicate_email"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrUnverified):
		return "unverified"
	case errors.Is(err, domain.ErrInvalidOrExpiredToken):
		return "invalid_token"
	case errors.Is(err, domain.ErrTokenExpired):
		return "expired"
	case errors.Is(err, domain.ErrTokenInvalid):
		return "invalid"
	case errors.Is(err, domain.ErrSessionNotFound):
		return "no_session"
	case errors.Is(err, domain.ErrEmailNotRegistered):
		return "unknown_email"
	case errors.Is(err, domain.ErrRotationInProgress):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}
