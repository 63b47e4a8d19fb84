package domain

import (
	"strings"
	"time"
)

// Role is the authorization role carried by a user record.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleSupervisor Role = "supervisor"
	RoleModerator  Role = "moderator"
	RoleGuide      Role = "guide"
	RoleClient     Role = "client"
)

// rolePrecedence is the order in which allow-lists are consulted when
// resolving the role for a new account. The first match wins.
var rolePrecedence = []Role{
	RoleAdmin,
	RoleManager,
	RoleSupervisor,
	RoleModerator,
	RoleGuide,
	RoleClient,
}

// ParseRole returns the Role named by s, or false if s is not a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if r == RoleUser {
		return r, true
	}
	for _, known := range rolePrecedence {
		if r == known {
			return r, true
		}
	}
	return "", false
}

// UserStatus is the activation state of an account.
type UserStatus string

const (
	StatusPending UserStatus = "pending"
	StatusActive  UserStatus = "active"
)

// Profile holds free-form, non security-relevant attributes.
type Profile struct {
	Bio         string `json:"bio,omitempty" bson:"bio,omitempty"`
	Nationality string `json:"nationality,omitempty" bson:"nationality,omitempty"`
	Mobile      string `json:"mobile,omitempty" bson:"mobile,omitempty"`
	Avatar      string `json:"avatar,omitempty" bson:"avatar,omitempty"`
}

// User models an account known to the identity service.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name,omitempty"`
	Surname      string     `json:"surname,omitempty"`
	Profile      Profile    `json:"profile"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	IsVerified   bool       `json:"is_verified"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsActive reports whether the account completed email verification.
func (u *User) IsActive() bool {
	return u.IsVerified && u.Status == StatusActive
}

// FullName is used as the recipient name in outgoing mail.
func (u *User) FullName() string {
	return strings.TrimSpace(u.Name + " " + u.Surname)
}

// Public returns a copy of the user safe to hand outside the credential store.
func (u *User) Public() *User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.PasswordHash = ""
	return &clone
}

// NormalizeEmail lower-cases and trims an address. Email identity is
// case-insensitive everywhere in the service.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewUser carries the fields accepted at signup. Password is plaintext and
// never leaves the credential store.
type NewUser struct {
	Email    string
	Password string
	Name     string
	Surname  string
	Profile  Profile
	Role     Role
	Verified bool
}

// UserPatch is a partial update. Nil fields are left untouched.
type UserPatch struct {
	Email      *string
	Name       *string
	Surname    *string
	Profile    *Profile
	Role       *Role
	Password   *string
	IsVerified *bool
	Status     *UserStatus
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Email == nil && p.Name == nil && p.Surname == nil && p.Profile == nil &&
		p.Role == nil && p.Password == nil && p.IsVerified == nil && p.Status == nil
}
