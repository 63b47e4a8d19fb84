package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
)

// CredentialStore owns password hashing on top of a UserRepository. Records
// returned from it never carry the password hash.
type CredentialStore struct {
	repo   ports.UserRepository
	hasher ports.PasswordHasher
	now    func() time.Time

	// dummy is compared against when a login names an unknown email so both
	// failure paths spend the same hashing work. It is set once at
	// construction and never changes.
	dummy string
}

const timingEqualizer = "identity-service-timing-equalizer"

// NewCredentialStore hashes the dummy password up front with the store's own
// hasher, so the unknown-email path always costs a full bcrypt compare at the
// configured cost.
func NewCredentialStore(repo ports.UserRepository, hasher ports.PasswordHasher) (*CredentialStore, error) {
	dummy, err := hasher.Hash(context.Background(), timingEqualizer)
	if err != nil {
		return nil, fmt.Errorf("credential store: dummy hash: %w", err)
	}
	if dummy == "" {
		return nil, errors.New("credential store: empty dummy hash")
	}
	return &CredentialStore{repo: repo, hasher: hasher, now: time.Now, dummy: dummy}, nil
}

// CreateUser hashes the password and persists a new record.
func (s *CredentialStore) CreateUser(ctx context.Context, in domain.NewUser) (*domain.User, error) {
	email := domain.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, domain.ErrInvalidInput
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	role := in.Role
	if role == "" {
		role = domain.RoleUser
	}
	status := domain.StatusPending
	if in.Verified {
		status = domain.StatusActive
	}

	now := s.now().UTC()
	created, err := s.repo.Create(ctx, &domain.User{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		Surname:      strings.TrimSpace(in.Surname),
		Profile:      in.Profile,
		PasswordHash: hash,
		Role:         role,
		IsVerified:   in.Verified,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}
	return created.Public(), nil
}

func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.repo.FindByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return u.Public(), nil
}

func (s *CredentialStore) FindByID(ctx context.Context, id string) (*domain.User, error) {
	if id == "" {
		return nil, domain.ErrUserNotFound
	}
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.Public(), nil
}

// Authenticate returns the user when email and password match, and
// domain.ErrInvalidCredentials for both an unknown email and a wrong password.
func (s *CredentialStore) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	u, err := s.repo.FindByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			if _, err := s.hasher.Compare(ctx, s.dummy, password); err != nil {
				return nil, err
			}
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := s.hasher.Compare(ctx, u.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	return u.Public(), nil
}

// UpdateUser applies patch. The password is re-hashed only when it differs
// from the stored one; an unchanged password is dropped from the patch.
func (s *CredentialStore) UpdateUser(ctx context.Context, id string, patch domain.UserPatch) (*domain.User, error) {
	if patch.Email != nil {
		e := domain.NormalizeEmail(*patch.Email)
		if e == "" {
			return nil, domain.ErrInvalidInput
		}
		patch.Email = &e
	}

	if patch.Password != nil {
		if *patch.Password == "" {
			return nil, domain.ErrInvalidInput
		}
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		same, err := s.hasher.Compare(ctx, current.PasswordHash, *patch.Password)
		if err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		if same {
			patch.Password = nil
		} else {
			hash, err := s.hasher.Hash(ctx, *patch.Password)
			if err != nil {
				return nil, fmt.Errorf("update user: %w", err)
			}
			patch.Password = &hash
		}
	}

	if patch.Empty() {
		return s.FindByID(ctx, id)
	}

	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return updated.Public(), nil
}

func (s *CredentialStore) DeleteUser(ctx context.Context, id string) (bool, error) {
	return s.repo.Delete(ctx, id)
}
