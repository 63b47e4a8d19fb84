package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/pkg/password"
	"github.com/99minutos/identity-service/internal/pkg/tokens"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubUserRepo struct {
	mu     sync.Mutex
	byID   map[string]*domain.User
	nextID int
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{byID: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == domain.NormalizeEmail(user.Email) {
			return nil, domain.ErrDuplicateEmail
		}
	}
	r.nextID++
	c := cloneUser(user)
	c.ID = fmt.Sprintf("user-%d", r.nextID)
	r.byID[c.ID] = c
	return cloneUser(c), nil
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == domain.NormalizeEmail(email) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *stubUserRepo) Update(_ context.Context, id string, p domain.UserPatch) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Surname != nil {
		u.Surname = *p.Surname
	}
	if p.Profile != nil {
		u.Profile = *p.Profile
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Password != nil {
		u.PasswordHash = *p.Password
	}
	if p.IsVerified != nil {
		u.IsVerified = *p.IsVerified
	}
	if p.Status != nil {
		u.Status = *p.Status
	}
	u.UpdatedAt = time.Now().UTC()
	return cloneUser(u), nil
}

func (r *stubUserRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false, nil
	}
	delete(r.byID, id)
	return true, nil
}

// stubLedger mirrors the conditional-write semantics of the Mongo ledger.
type stubLedger struct {
	mu      sync.Mutex
	records map[string]*domain.TokenRecord
	now     func() time.Time
}

func newStubLedger() *stubLedger {
	return &stubLedger{records: make(map[string]*domain.TokenRecord), now: time.Now}
}

func (l *stubLedger) get(userID string) *domain.TokenRecord {
	rec, ok := l.records[userID]
	if !ok {
		rec = &domain.TokenRecord{UserID: userID, CreatedAt: l.now()}
		l.records[userID] = rec
	}
	return rec
}

func (l *stubLedger) GetOrCreate(_ context.Context, userID string) (*domain.TokenRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := *l.get(userID)
	return &rec, nil
}

func (l *stubLedger) Find(_ context.Context, userID string) (*domain.TokenRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[userID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	c := *rec
	return &c, nil
}

func sessionSlot(s domain.Session) domain.SessionSlot {
	return domain.SessionSlot{
		AccessDigest:     domain.Digest(s.Access.Value),
		AccessExpiresAt:  s.Access.ExpiresAt,
		RefreshDigest:    domain.Digest(s.Refresh.Value),
		RefreshExpiresAt: s.Refresh.ExpiresAt,
	}
}

func (l *stubLedger) SetSession(_ context.Context, userID string, s domain.Session) (*domain.TokenRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := l.get(userID)
	rec.Session = sessionSlot(s)
	c := *rec
	return &c, nil
}

func (l *stubLedger) RotateSession(_ context.Context, userID, presented string, next domain.Session) (*domain.TokenRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[userID]
	if !ok || rec.Session.RefreshDigest != domain.Digest(presented) {
		return nil, domain.ErrSessionNotFound
	}
	rec.Session = sessionSlot(next)
	c := *rec
	return &c, nil
}

func (l *stubLedger) FindByRefreshToken(_ context.Context, value string) (*domain.TokenRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range l.records {
		if rec.Session.RefreshDigest != "" && rec.Session.RefreshDigest == domain.Digest(value) {
			c := *rec
			return &c, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (l *stubLedger) SetCapability(_ context.Context, userID string, class domain.TokenClass, t domain.IssuedToken) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := l.get(userID)
	slot := domain.CapabilitySlot{Digest: domain.Digest(t.Value), ExpiresAt: t.ExpiresAt}
	switch class {
	case domain.TokenEmailVerification:
		rec.EmailVerification = slot
	case domain.TokenPasswordReset:
		rec.PasswordReset = slot
	}
	return nil
}

func (l *stubLedger) ConsumeCapability(_ context.Context, userID string, class domain.TokenClass, presented string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[userID]
	if !ok {
		return false, nil
	}
	slot := rec.Capability(class)
	if !slot.Live(l.now()) || !domain.DigestMatches(presented, slot.Digest) {
		return false, nil
	}
	switch class {
	case domain.TokenEmailVerification:
		rec.EmailVerification = domain.CapabilitySlot{}
	case domain.TokenPasswordReset:
		rec.PasswordReset = domain.CapabilitySlot{}
	}
	return true, nil
}

func (l *stubLedger) ClearSession(_ context.Context, presented string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range l.records {
		if rec.Session.RefreshDigest != "" && rec.Session.RefreshDigest == domain.Digest(presented) {
			rec.Session = domain.SessionSlot{}
			return nil
		}
	}
	return domain.ErrSessionNotFound
}

func (l *stubLedger) DeleteAll(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, userID)
	return nil
}

type stubLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *stubLocker) Acquire(_ context.Context, userID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[userID] {
		return nil, domain.ErrRotationInProgress
	}
	l.held[userID] = true
	return func() {
		l.mu.Lock()
		delete(l.held, userID)
		l.mu.Unlock()
	}, nil
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (n *stubNotifier) Notify(msg domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

func (n *stubNotifier) last() domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return domain.Notification{}
	}
	return n.sent[len(n.sent)-1]
}

type staticRoles struct{ list *domain.RoleAllowList }

func (s staticRoles) AllowList() *domain.RoleAllowList { return s.list }

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fixture struct {
	repo     *stubUserRepo
	ledger   *stubLedger
	locker   *stubLocker
	notifier *stubNotifier
	codec    *tokens.Codec
	store    *CredentialStore
	auth     *AuthService
	users    *UserService
	now      time.Time
}

func newFixture(t *testing.T, opts AuthOptions) *fixture {
	t.Helper()

	f := &fixture{
		repo:     newStubUserRepo(),
		ledger:   newStubLedger(),
		locker:   &stubLocker{},
		notifier: &stubNotifier{},
		now:      time.Now(),
	}
	f.ledger.now = func() time.Time { return f.now }

	codec, err := tokens.NewCodec(tokens.Config{
		Issuer:        "identity-test",
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		VerifyTTL:     24 * time.Hour,
		ResetTTL:      time.Hour,
	}, tokens.WithClock(func() time.Time { return f.now }))
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	f.codec = codec

	allow, err := domain.NewRoleAllowList(map[domain.Role][]string{
		domain.RoleAdmin: {"root@x.com", "ops@x.com"},
		domain.RoleGuide: {"guide@x.com"},
	})
	if err != nil {
		t.Fatalf("allow list: %v", err)
	}
	roles := staticRoles{list: allow}

	if opts.PublicURL == "" {
		opts.PublicURL = "https://id.example.com"
	}

	store, err := NewCredentialStore(f.repo, password.NewHasher(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("credential store: %v", err)
	}
	f.store = store
	f.auth = NewAuthService(f.store, f.ledger, codec, f.locker, f.notifier, roles, opts, zerolog.Nop())
	f.users = NewUserService(f.store, f.ledger, roles, zerolog.Nop())
	return f
}
