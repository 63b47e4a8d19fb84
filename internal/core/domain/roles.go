package domain

// RoleAllowList maps a privileged role to the set of emails permitted to hold
// it. Emails are stored normalized. The zero value allows nobody.
type RoleAllowList struct {
	emails map[Role]map[string]struct{}
}

// NewRoleAllowList builds an allow-list from raw configuration. Unknown roles
// and the plain user role are rejected.
func NewRoleAllowList(lists map[Role][]string) (*RoleAllowList, error) {
	al := &RoleAllowList{emails: make(map[Role]map[string]struct{}, len(lists))}
	for role, emails := range lists {
		if _, ok := ParseRole(string(role)); !ok || role == RoleUser {
			return nil, ErrInvalidInput
		}
		set := make(map[string]struct{}, len(emails))
		for _, e := range emails {
			if n := NormalizeEmail(e); n != "" {
				set[n] = struct{}{}
			}
		}
		al.emails[role] = set
	}
	return al, nil
}

// ResolveRole returns the default role for a new account with the given
// email: the first allow-list containing it, else RoleUser.
func (al *RoleAllowList) ResolveRole(email string) Role {
	if al == nil {
		return RoleUser
	}
	n := NormalizeEmail(email)
	for _, role := range rolePrecedence {
		if _, ok := al.emails[role][n]; ok {
			return role
		}
	}
	return RoleUser
}

// Allows reports whether email is on role's allow-list. RoleUser is open to everyone.
func (al *RoleAllowList) Allows(role Role, email string) bool {
	if role == RoleUser {
		return true
	}
	if al == nil {
		return false
	}
	_, ok := al.emails[role][NormalizeEmail(email)]
	return ok
}

// Size returns the number of emails listed for role.
func (al *RoleAllowList) Size(role Role) int {
	if al == nil {
		return 0
	}
	return len(al.emails[role])
}

// Privileged roles are created pre-verified when auto-verification is enabled.
func (r Role) Privileged() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleSupervisor:
		return true
	}
	return false
}
