package domain

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

// TokenClass distinguishes what a signed token may be used for.
type TokenClass string

const (
	TokenAccess            TokenClass = "access"
	TokenRefresh           TokenClass = "refresh"
	TokenEmailVerification TokenClass = "email_verification"
	TokenPasswordReset     TokenClass = "password_reset"
)

// SingleUse reports whether the class is a one-shot capability.
func (c TokenClass) SingleUse() bool {
	return c == TokenEmailVerification || c == TokenPasswordReset
}

// IssuedToken is a freshly signed token and its expiry.
type IssuedToken struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session is an access/refresh pair handed to a client.
type Session struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// SessionSlot is the persisted form of the current session pair.
type SessionSlot struct {
	AccessDigest     string    `bson:"access_digest,omitempty"`
	AccessExpiresAt  time.Time `bson:"access_expires_at,omitempty"`
	RefreshDigest    string    `bson:"refresh_digest,omitempty"`
	RefreshExpiresAt time.Time `bson:"refresh_expires_at,omitempty"`
}

// CapabilitySlot is the persisted form of a single-use token.
type CapabilitySlot struct {
	Digest    string    `bson:"digest,omitempty"`
	ExpiresAt time.Time `bson:"expires_at,omitempty"`
}

// Live reports whether the slot holds an unexpired capability.
func (s CapabilitySlot) Live(now time.Time) bool {
	return s.Digest != "" && now.Before(s.ExpiresAt)
}

// TokenRecord is the one-per-user ledger entry. Each slot is independent so
// issuing a reset link never invalidates a session or a pending verification.
type TokenRecord struct {
	UserID            string         `bson:"user_id"`
	Session           SessionSlot    `bson:"session"`
	EmailVerification CapabilitySlot `bson:"email_verification"`
	PasswordReset     CapabilitySlot `bson:"password_reset"`
	CreatedAt         time.Time      `bson:"created_at"`
	UpdatedAt         time.Time      `bson:"updated_at"`
}

// Capability returns the slot for a single-use class.
func (r *TokenRecord) Capability(class TokenClass) CapabilitySlot {
	switch class {
	case TokenEmailVerification:
		return r.EmailVerification
	case TokenPasswordReset:
		return r.PasswordReset
	}
	return CapabilitySlot{}
}

// Digest is the at-rest fingerprint of a token value. Raw tokens are never persisted.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// DigestMatches compares a presented token with a stored digest in constant time.
func DigestMatches(token, digest string) bool {
	if token == "" || digest == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Digest(token)), []byte(digest)) == 1
}
