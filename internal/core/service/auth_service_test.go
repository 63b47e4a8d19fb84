package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
)

// linkParts returns the user id and token embedded in a verify/reset link.
func linkParts(t *testing.T, link string) (string, string) {
	t.Helper()
	parts := strings.Split(link, "/")
	if len(parts) < 2 {
		t.Fatalf("malformed link %q", link)
	}
	return parts[len(parts)-2], parts[len(parts)-1]
}

func signup(t *testing.T, f *fixture, email, pass string) *ports.SignupResult {
	t.Helper()
	res, err := f.auth.Signup(context.Background(), ports.SignupInput{Email: email, Password: pass, Name: "Ada", Surname: "Lovelace"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	return res
}

func TestAuthService_Signup_Success(t *testing.T) {
	f := newFixture(t, AuthOptions{})

	res := signup(t, f, "A@X.com", "abcdef")

	if res.User.Email != "a@x.com" {
		t.Fatalf("expected normalized email, got %s", res.User.Email)
	}
	if res.User.PasswordHash != "" {
		t.Fatalf("password hash leaked out of the credential store")
	}
	if res.User.IsVerified || res.User.Status != domain.StatusPending || res.User.Role != domain.RoleUser {
		t.Fatalf("unexpected initial state: %+v", res.User)
	}
	if res.Session.Access.Value == "" || res.Session.Refresh.Value == "" {
		t.Fatalf("expected access and refresh tokens")
	}
	if !strings.HasPrefix(res.VerifyEmailLink, "https://id.example.com/auth/verify-email/"+res.User.ID+"/") {
		t.Fatalf("unexpected verify link %q", res.VerifyEmailLink)
	}

	sent := f.notifier.last()
	if sent.Kind != domain.MailVerification || sent.To != "a@x.com" || sent.Link != res.VerifyEmailLink || sent.Name != "Ada Lovelace" {
		t.Fatalf("unexpected notification: %+v", sent)
	}

	stored, _ := f.repo.FindByID(context.Background(), res.User.ID)
	if stored.PasswordHash == "" || stored.PasswordHash == "abcdef" {
		t.Fatalf("expected hashed password in repository")
	}
}

func TestAuthService_Signup_DuplicateEmailIsCaseInsensitive(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	signup(t, f, "a@x.com", "abcdef")

	_, err := f.auth.Signup(context.Background(), ports.SignupInput{Email: "A@x.COM", Password: "other1"})
	if !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestAuthService_Signup_AllowListedRole(t *testing.T) {
	f := newFixture(t, AuthOptions{AutoVerifyPrivileged: true})

	admin := signup(t, f, "root@x.com", "abcdef")
	if admin.User.Role != domain.RoleAdmin || !admin.User.IsActive() {
		t.Fatalf("expected pre-accepted admin, got %+v", admin.User)
	}
	if admin.VerifyEmailLink != "" {
		t.Fatalf("pre-accepted accounts get no verification link")
	}

	guide := signup(t, f, "guide@x.com", "abcdef")
	if guide.User.Role != domain.RoleGuide || guide.User.IsActive() {
		t.Fatalf("expected pending guide, got %+v", guide.User)
	}
}

func TestAuthService_Scenario_SignupVerifyLogin(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	ctx := context.Background()

	res := signup(t, f, "a@x.com", "abcdef")

	_, err := f.auth.Login(ctx, "a@x.com", "abcdef")
	var unverified *domain.UnverifiedError
	if !errors.As(err, &unverified) || !errors.Is(err, domain.ErrUnverified) {
		t.Fatalf("expected UnverifiedError, got %v", err)
	}
	if unverified.Link == "" || unverified.Link == res.VerifyEmailLink {
		t.Fatalf("expected a freshly issued verification link")
	}

	// The reissued capability replaced the one from signup.
	oldID, oldToken := linkParts(t, res.VerifyEmailLink)
	if _, err := f.auth.VerifyEmail(ctx, oldID, oldToken); !errors.Is(err, domain.ErrVerificationTokenInvalid) {
		t.Fatalf("expected superseded token to fail, got %v", err)
	}

	id, token := linkParts(t, unverified.Link)
	already, err := f.auth.VerifyEmail(ctx, id, token)
	if err != nil || already {
		t.Fatalf("verify: already=%v err=%v", already, err)
	}

	login, err := f.auth.Login(ctx, "a@x.com", "abcdef")
	if err != nil {
		t.Fatalf("login after verification: %v", err)
	}
	if login.User.ID != res.User.ID || !login.User.IsActive() || login.User.PasswordHash != "" {
		t.Fatalf("unexpected profile: %+v", login.User)
	}
	if login.Session.Refresh.Value == res.Session.Refresh.Value {
		t.Fatalf("expected fresh tokens on login")
	}
}

func TestAuthService_VerifyEmail_Idempotent(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	ctx := context.Background()
	res := signup(t, f, "a@x.com", "abcdef")
	id, token := linkParts(t, res.VerifyEmailLink)

	if _, err := f.auth.VerifyEmail(ctx, id, token); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	before, _ := f.repo.FindByID(ctx, id)

	already, err := f.auth.VerifyEmail(ctx, id, token)
	if err != nil || !already {
		t.Fatalf("expected idempotent success, got already=%v err=%v", already, err)
	}
	after, _ := f.repo.FindByID(ctx, id)
	if !after.UpdatedAt.Equal(before.UpdatedAt) || after.Role != before.Role || after.Status != before.Status {
		t.Fatalf("second verification mutated the record")
	}
}

func TestAuthService_VerifyEmail_Failures(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	ctx := context.Background()
	res := signup(t, f, "a@x.com", "abcdef")
	other := signup(t, f, "b@x.com", "abcdef")
	id, token := linkParts(t, res.VerifyEmailLink)
	_, otherToken := linkParts(t, other.VerifyEmailLink)

	cases := []struct {
		name   string
		userID string
		token  string
	}{
		{"unknown user", "user-999", token},
		{"garbage token", id, "nope"},
		{"another user's token", id, otherToken},
		{"refresh token in place of capability", id, res.Session.Refresh.Value},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.auth.VerifyEmail(ctx, tc.userID, tc.token); !errors.Is(err, domain.ErrVerificationTokenInvalid) {
				t.Fatalf("expected ErrVerificationTokenInvalid, got %v", err)
			}
		})
	}
}

func TestAuthService_VerifyEmail_Expired(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	res := signup(t, f, "a@x.com", "abcdef")
	id, token := linkParts(t, res.VerifyEmailLink)

	f.now = f.now.Add(25 * time.Hour)
	if _, err := f.auth.VerifyEmail(context.Background(), id, token); !errors.Is(err, domain.ErrInvalidOrExpiredToken) {
		t.Fatalf("expected ErrInvalidOrExpiredToken, got %v", err)
	}
}

func TestAuthService_Login_EnumerationResistance(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	signup(t, f, "a@x.com", "abcdef")

	_, errUnknown := f.auth.Login(context.Background(), "ghost@x.com", "abcdef")
	_, errWrong := f.auth.Login(context.Background(), "a@x.com", "wrong!")

	if errUnknown != domain.ErrInvalidCredentials || errWrong != domain.ErrInvalidCredentials {
		t.Fatalf("expected identical ErrInvalidCredentials, got %v / %v", errUnknown, errWrong)
	}
}

func TestAuthService_Login_RotatesSession(t *testing.T) {
	f := newFixture(t, AuthOptions{AutoVerifyPrivileged: true})
	ctx := context.Background()
	res := signup(t, f, "root@x.com", "abcdef")

	if _, err := f.auth.Login(ctx, "root@x.com", "abcdef"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := f.auth.RefreshSession(ctx, res.Session.Refresh.Value); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected signup refresh token to be invalidated by login, got %v", err)
	}
}

func TestAuthService_RefreshSession_Rotation(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	ctx := context.Background()
	res := signup(t, f, "a@x.com", "abcdef")

	next, err := f.auth.RefreshSession(ctx, res.Session.Refresh.Value)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.Session.Refresh.Value == res.Session.Refresh.Value || next.User.ID != res.User.ID {
		t.Fatalf("expected a new pair for the same user")
	}

	if _, err := f.auth.RefreshSession(ctx, res.Session.Refresh.Value); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected replayed refresh token to fail, got %v", err)
	}
	if _, err := f.auth.RefreshSession(ctx, next.Session.Refresh.Value); err != nil {
		t.Fatalf("rotated token should work: %v", err)
	}
}

func TestAuthService_RefreshSession_Expired(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	res := signup(t, f, "a@x.com", "abcdef")

	f.now = f.now.Add(8 * 24 * time.Hour)
	_, err := f.auth.RefreshSession(context.Background(), res.Session.Refresh.Value)
	if !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expired must not be reported as invalid")
	}
}

func TestAuthService_RefreshSession_Unknown(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	if _, err := f.auth.RefreshSession(context.Background(), ""); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := f.auth.RefreshSession(context.Background(), "not-stored"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAuthService_RefreshSession_ConcurrentOnlyOneWins(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	res := signup(t, f, "a@x.com", "abcdef")

	const racers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.auth.RefreshSession(context.Background(), res.Session.Refresh.Value); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected exactly one successful rotation, got %d", success)
	}
}

func TestAuthService_RefreshSession_LockHeld(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	res := signup(t, f, "a@x.com", "abcdef")

	release, _ := f.locker.Acquire(context.Background(), res.User.ID)
	defer release()

	if _, err := f.auth.RefreshSession(context.Background(), res.Session.Refresh.Value); !errors.Is(err, domain.ErrRotationInProgress) {
		t.Fatalf("expected ErrRotationInProgress, got %v", err)
	}
}

func TestAuthService_Logout(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	ctx := context.Background()
	res := signup(t, f, "a@x.com", "abcdef")

	if err := f.auth.Logout(ctx, res.Session.Refresh.Value); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := f.auth.Logout(ctx, res.Session.Refresh.Value); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected second logout to fail, got %v", err)
	}
	if _, err := f.auth.RefreshSession(ctx, res.Session.Refresh.Value); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected refresh after logout to fail, got %v", err)
	}

	// Logout leaves the pending verification intact.
	id, token := linkParts(t, res.VerifyEmailLink)
	if _, err := f.auth.VerifyEmail(ctx, id, token); err != nil {
		t.Fatalf("verify after logout: %v", err)
	}
}

func TestAuthService_PasswordReset_Flow(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	ctx := context.Background()
	res := signup(t, f, "a@x.com", "abcdef")

	link, err := f.auth.RequestPasswordReset(ctx, "A@x.com")
	if err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if f.notifier.last().Kind != domain.MailResetRequest {
		t.Fatalf("expected reset request mail")
	}

	// A reset request does not disturb the session or the pending verification.
	if _, err := f.auth.RefreshSession(ctx, res.Session.Refresh.Value); err != nil {
		t.Fatalf("session clobbered by reset request: %v", err)
	}
	vid, vtoken := linkParts(t, res.VerifyEmailLink)
	if _, err := f.auth.VerifyEmail(ctx, vid, vtoken); err != nil {
		t.Fatalf("verification clobbered by reset request: %v", err)
	}

	id, token := linkParts(t, link)
	loginLink, err := f.auth.ResetPassword(ctx, id, token, "newpass1")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if loginLink != "https://id.example.com/auth/login" {
		t.Fatalf("unexpected login link %q", loginLink)
	}
	if f.notifier.last().Kind != domain.MailResetConfirmation {
		t.Fatalf("expected reset confirmation mail")
	}

	if _, err := f.auth.ResetPassword(ctx, id, token, "again12"); !errors.Is(err, domain.ErrResetTokenInvalid) {
		t.Fatalf("expected single-use reset token, got %v", err)
	}

	if _, err := f.auth.Login(ctx, "a@x.com", "abcdef"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("old password should no longer work, got %v", err)
	}
	if _, err := f.auth.Login(ctx, "a@x.com", "newpass1"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestAuthService_PasswordReset_Failures(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	ctx := context.Background()
	res := signup(t, f, "a@x.com", "abcdef")

	if _, err := f.auth.RequestPasswordReset(ctx, "ghost@x.com"); !errors.Is(err, domain.ErrEmailNotRegistered) {
		t.Fatalf("expected ErrEmailNotRegistered, got %v", err)
	}

	// A verification token cannot be redeemed as a reset token.
	_, vtoken := linkParts(t, res.VerifyEmailLink)
	if _, err := f.auth.ResetPassword(ctx, res.User.ID, vtoken, "newpass1"); !errors.Is(err, domain.ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid, got %v", err)
	}
	if _, err := f.auth.ResetPassword(ctx, "user-404", "x", "newpass1"); !errors.Is(err, domain.ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid for unknown user, got %v", err)
	}
}

func TestAuthService_PasswordReset_GenericResponse(t *testing.T) {
	f := newFixture(t, AuthOptions{GenericResetResponse: true})
	signup(t, f, "a@x.com", "abcdef")

	unknown, err := f.auth.RequestPasswordReset(context.Background(), "ghost@x.com")
	if err != nil || unknown != "" {
		t.Fatalf("expected silent success, got %q %v", unknown, err)
	}
	known, err := f.auth.RequestPasswordReset(context.Background(), "a@x.com")
	if err != nil || known != "" {
		t.Fatalf("expected link to be withheld, got %q %v", known, err)
	}
	if f.notifier.last().Kind != domain.MailResetRequest {
		t.Fatalf("registered email should still receive the reset mail")
	}
}

func TestAuthService_RedeemRejectsSessionClasses(t *testing.T) {
	f := newFixture(t, AuthOptions{})
	res := signup(t, f, "a@x.com", "abcdef")

	refresh, err := f.codec.Sign(res.User.ID, domain.TokenRefresh)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	err = f.auth.redeem(context.Background(), res.User.ID, domain.TokenRefresh, refresh.Value)
	if !errors.Is(err, domain.ErrInvalidOrExpiredToken) {
		t.Fatalf("expected ErrInvalidOrExpiredToken, got %v", err)
	}
	if _, err := f.auth.issueCapability(context.Background(), res.User.ID, domain.TokenAccess); err == nil {
		t.Fatal("expected access class to be refused as a capability")
	}
}
