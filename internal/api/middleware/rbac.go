package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-service/internal/core/domain"
)

// RoleGuard enforces role predicates against an allow-list that can be
// swapped at runtime.
type RoleGuard struct {
	list atomic.Pointer[domain.RoleAllowList]
}

func NewRoleGuard(list *domain.RoleAllowList) *RoleGuard {
	g := &RoleGuard{}
	g.Reload(list)
	return g
}

// AllowList returns the allow-list currently in force.
func (g *RoleGuard) AllowList() *domain.RoleAllowList {
	return g.list.Load()
}

// Reload replaces the allow-list. A nil list denies every privileged role.
func (g *RoleGuard) Reload(list *domain.RoleAllowList) {
	if list == nil {
		list = &domain.RoleAllowList{}
	}
	g.list.Store(list)
}

// RequireRole admits the identity only if its role equals role and its
// email is on that role's allow-list. It must run after Authenticate.
func (g *RoleGuard) RequireRole(role domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := Identity(c)
			if !ok {
				return deny("missing", http.StatusUnauthorized, "authentication required")
			}
			if user.Role != role || !g.AllowList().Allows(role, user.Email) {
				return deny("role", http.StatusForbidden, "forbidden")
			}
			return next(c)
		}
	}
}
