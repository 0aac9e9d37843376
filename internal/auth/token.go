package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the minimal length in bytes of a token signing secret.
const MinSecretLength = 32

// DefaultTTL is the lifetime of issued tokens when none is configured.
const DefaultTTL = time.Hour

var (
	// ErrInvalidToken is returned when a token cannot be verified.
	ErrInvalidToken = errors.New("invalid token")

	// ErrWeakSecret is returned when the signing secret is too short.
	ErrWeakSecret = fmt.Errorf("token secret must be at least %d bytes long", MinSecretLength)
)

type claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

type options struct {
	ttl time.Duration
	now func() time.Time
}

// Options represents an optional function to override Issuer default values.
type Options func(*options)

// WithTTL sets the lifetime of issued tokens.
func WithTTL(ttl time.Duration) Options {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock sets the clock used to issue and verify tokens.
func WithClock(now func() time.Time) Options {
	return func(o *options) {
		o.now = now
	}
}

// NewIssuer returns an Issuer signing with secret and setting issuer as the "iss" claim.
func NewIssuer(secret []byte, issuer string, args ...Options) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}

	opts := options{
		ttl: DefaultTTL,
		now: time.Now,
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Issuer{
		secret: secret,
		issuer: issuer,
		ttl:    opts.ttl,
		now:    opts.now,
	}, nil
}

// Issue returns a signed token for subject with roles, and its expiry.
func (i *Issuer) Issue(subject string, roles []string) (string, time.Time, error) {
	if subject == "" || subject == anonymousSubject {
		return "", time.Time{}, fmt.Errorf("invalid token subject %q", subject)
	}

	now := i.now()
	exp := now.Add(i.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %v", err)
	}
	return signed, exp, nil
}

// Verify checks the signature, issuer and expiry of a token and returns its principal.
func (i *Issuer) Verify(token string) (*Principal, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Subject == "" || c.Subject == anonymousSubject {
		return nil, fmt.Errorf("%w: invalid subject %q", ErrInvalidToken, c.Subject)
	}

	return &Principal{Subject: c.Subject, Roles: c.Roles}, nil
}
