package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
)

var _ ports.UserService = (*UserService)(nil)

// UserService implements profile reads and the administrative update and
// delete paths on top of the credential store.
type UserService struct {
	users  *CredentialStore
	ledger ports.TokenLedger
	roles  AllowListSource
	log    zerolog.Logger
}

func NewUserService(users *CredentialStore, ledger ports.TokenLedger, roles AllowListSource, log zerolog.Logger) *UserService {
	return &UserService{users: users, ledger: ledger, roles: roles, log: log}
}

func (s *UserService) Profile(ctx context.Context, id string) (*domain.User, error) {
	return s.users.FindByID(ctx, id)
}

// UpdateUser applies patch to targetID on behalf of actor.
//
// Non-admins may only edit their own record and never its role or
// verification state. An admin may edit anyone but cannot move their own
// role away from admin. A privileged role is only granted to, and only kept
// by, emails on that role's allow-list.
func (s *UserService) UpdateUser(ctx context.Context, actor *domain.User, targetID string, patch domain.UserPatch) (*domain.User, error) {
	if actor == nil {
		return nil, domain.ErrUnauthenticated
	}
	self := actor.ID == targetID
	admin := actor.Role == domain.RoleAdmin && s.roles.AllowList().Allows(domain.RoleAdmin, actor.Email)

	if !admin {
		if !self || patch.Role != nil || patch.IsVerified != nil || patch.Status != nil {
			return nil, domain.ErrForbidden
		}
	}
	if self && admin && patch.Role != nil && *patch.Role != domain.RoleAdmin {
		s.log.Warn().Str("user_id", actor.ID).Str("role", string(*patch.Role)).Msg("admin attempted self-demotion")
		return nil, domain.ErrForbidden
	}

	target, err := s.users.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	role := target.Role
	if patch.Role != nil {
		parsed, ok := domain.ParseRole(string(*patch.Role))
		if !ok {
			return nil, domain.ErrInvalidInput
		}
		role = parsed
		patch.Role = &parsed
	}
	// The resulting email must stay on the resulting role's allow-list, so an
	// email change cannot silently strip a privileged account of its role.
	if patch.Role != nil || patch.Email != nil {
		email := target.Email
		if patch.Email != nil {
			email = *patch.Email
		}
		if !s.roles.AllowList().Allows(role, email) {
			if self && admin {
				s.log.Warn().Str("user_id", actor.ID).Msg("admin change would leave the admin allow-list")
			}
			return nil, domain.ErrForbidden
		}
	}

	updated, err := s.users.UpdateUser(ctx, targetID, patch)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("actor_id", actor.ID).Str("user_id", targetID).Msg("user updated")
	return updated, nil
}

// DeleteUser removes the account and every token issued to it. Admins
// cannot delete themselves.
func (s *UserService) DeleteUser(ctx context.Context, actor *domain.User, targetID string) error {
	if actor == nil {
		return domain.ErrUnauthenticated
	}
	if actor.ID == targetID {
		return domain.ErrForbidden
	}

	deleted, err := s.users.DeleteUser(ctx, targetID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if !deleted {
		return domain.ErrUserNotFound
	}
	if err := s.ledger.DeleteAll(ctx, targetID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return fmt.Errorf("delete user tokens: %w", err)
	}

	s.log.Info().Str("actor_id", actor.ID).Str("user_id", targetID).Msg("user deleted")
	return nil
}
