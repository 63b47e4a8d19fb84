// Package tokens signs and verifies the service's bearer tokens.
//
// Every token is an HS256 JWT whose subject and audience are the user id and
// whose "cls" claim names its class. Access tokens are signed with the access
// secret; refresh tokens and the single-use capabilities share the refresh
// secret but are told apart by class, so a token of one class never verifies
// as another.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
)

// Claims is the JWT payload.
type Claims struct {
	Class domain.TokenClass `json:"cls"`
	jwt.RegisteredClaims
}

// Config holds secrets and lifetimes per class.
type Config struct {
	Issuer        string
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	VerifyTTL     time.Duration
	ResetTTL      time.Duration
}

type classSpec struct {
	secret []byte
	ttl    time.Duration
}

// Codec implements ports.TokenCodec.
type Codec struct {
	issuer  string
	classes map[domain.TokenClass]classSpec
	now     func() time.Time
}

// Option customises a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func NewCodec(cfg Config, opts ...Option) (*Codec, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("tokens: access and refresh secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("tokens: access and refresh secrets must differ")
	}
	c := &Codec{
		issuer: cfg.Issuer,
		classes: map[domain.TokenClass]classSpec{
			domain.TokenAccess:            {secret: []byte(cfg.AccessSecret), ttl: cfg.AccessTTL},
			domain.TokenRefresh:           {secret: []byte(cfg.RefreshSecret), ttl: cfg.RefreshTTL},
			domain.TokenEmailVerification: {secret: []byte(cfg.RefreshSecret), ttl: cfg.VerifyTTL},
			domain.TokenPasswordReset:     {secret: []byte(cfg.RefreshSecret), ttl: cfg.ResetTTL},
		},
		now: time.Now,
	}
	for class, spec := range c.classes {
		if spec.ttl <= 0 {
			return nil, fmt.Errorf("tokens: ttl for %s must be positive", class)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Sign issues a token of the given class for userID.
func (c *Codec) Sign(userID string, class domain.TokenClass) (domain.IssuedToken, error) {
	spec, ok := c.classes[class]
	if !ok {
		return domain.IssuedToken{}, fmt.Errorf("tokens: unknown class %q", class)
	}
	if userID == "" {
		return domain.IssuedToken{}, errors.New("tokens: empty subject")
	}

	now := c.now().UTC()
	exp := now.Add(spec.ttl)
	claims := Claims{
		Class: class,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{userID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(spec.secret)
	if err != nil {
		return domain.IssuedToken{}, fmt.Errorf("tokens: sign: %w", err)
	}
	return domain.IssuedToken{Value: signed, ExpiresAt: exp.Truncate(time.Second)}, nil
}

// Verify checks signature, issuer, expiry and class.
func (c *Codec) Verify(token string, class domain.TokenClass) (*ports.TokenClaims, error) {
	return c.verify(token, class, "")
}

// VerifyFor additionally requires the token to be bound to userID.
func (c *Codec) VerifyFor(token string, class domain.TokenClass, userID string) (*ports.TokenClaims, error) {
	if userID == "" {
		return nil, domain.ErrTokenInvalid
	}
	return c.verify(token, class, userID)
}

func (c *Codec) verify(token string, class domain.TokenClass, userID string) (*ports.TokenClaims, error) {
	spec, ok := c.classes[class]
	if !ok || token == "" {
		return nil, domain.ErrTokenInvalid
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(c.issuer),
		jwt.WithTimeFunc(c.now),
	}
	if userID != "" {
		opts = append(opts, jwt.WithSubject(userID), jwt.WithAudience(userID))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return spec.secret, nil
	}, opts...)

	// A token of another class signed with the same secret still parses;
	// reject it before reporting expiry so class confusion never looks like
	// a recoverable failure.
	if err == nil || errors.Is(err, jwt.ErrTokenExpired) {
		if claims.Class != class || claims.Issuer != c.issuer || !boundToSubject(claims) {
			return nil, domain.ErrTokenInvalid
		}
		if userID != "" && claims.Subject != userID {
			return nil, domain.ErrTokenInvalid
		}
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}

	return &ports.TokenClaims{
		UserID:    claims.Subject,
		Class:     claims.Class,
		Issuer:    claims.Issuer,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// boundToSubject enforces audience == subject.
func boundToSubject(claims *Claims) bool {
	if claims.Subject == "" || len(claims.Audience) != 1 {
		return false
	}
	return claims.Audience[0] == claims.Subject
}
