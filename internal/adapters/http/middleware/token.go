package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// DefaultTokenTTL is the lifetime of issued bearer tokens.
const DefaultTokenTTL = time.Hour

// MinTokenKeyLen is the shortest HS256 secret accepted.
const MinTokenKeyLen = 32

// ErrTokenKeyTooShort is returned for an HS256 secret under MinTokenKeyLen bytes.
var ErrTokenKeyTooShort = fmt.Errorf("token signing key must be at least %d bytes", MinTokenKeyLen)

// TokenVerifier issues and verifies HS256 bearer tokens whose subject is an
// account ID.
type TokenVerifier struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenVerifier creates a verifier for the given secret and issuer.
// PRE: len(key) >= MinTokenKeyLen
// POST: Returns a verifier or ErrTokenKeyTooShort
func NewTokenVerifier(key []byte, issuer string, ttl time.Duration) (*TokenVerifier, error) {
	if len(key) < MinTokenKeyLen {
		return nil, ErrTokenKeyTooShort
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenVerifier{key: key, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for accountID.
// PRE: accountID is non-empty
// POST: Returns a compact JWS valid for the verifier's TTL
func (v *TokenVerifier) Issue(accountID string) (string, time.Time, error) {
	if accountID == "" {
		return "", time.Time{}, errors.New("token subject is empty")
	}
	now := v.now()
	exp := now.Add(v.ttl)
	tok, err := jwt.NewBuilder().
		Subject(accountID).
		Issuer(v.issuer).
		IssuedAt(now).
		Expiration(exp).
		Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, v.key))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return string(signed), exp, nil
}

// Verify checks the signature, issuer and expiry of raw and returns its subject.
// POST: Returns the account ID, or an error for any invalid token
func (v *TokenVerifier) Verify(raw string) (string, error) {
	tok, err := jwt.ParseString(raw,
		jwt.WithKey(jwa.HS256, v.key),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithClock(jwt.ClockFunc(v.now)),
		jwt.WithAcceptableSkew(30*time.Second),
	)
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	if tok.Subject() == "" {
		return "", errors.New("verify token: missing subject")
	}
	return tok.Subject(), nil
}
