// Package auth issues and verifies HMAC-SHA-512 signed access tokens.
//
// The signing key is never stored by the Signer: callers pass it on every
// Issue and Verify call. Issuer and audience are not checked;
// a token is accepted on signature, algorithm and expiry alone.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// MinKeyLength is the shortest key accepted for HMAC-SHA-512.
const MinKeyLength = 64

// DefaultAccessTokenTTL is the lifetime of an access token.
const DefaultAccessTokenTTL = 24 * time.Hour

var signingMethod = jwt.SigningMethodHS512

// Claims is the payload of an access token: the account identifier as a
// custom claim plus the registered exp and iat claims.
type Claims struct {
	Account string `json:"account"`
	jwt.RegisteredClaims
}

// Verification is the outcome of checking a token. Exactly one of Claims and
// Err is set.
type Verification struct {
	Claims *Claims
	Err    error
}

// Valid reports whether the token was accepted.
func (v Verification) Valid() bool {
	return v.Err == nil && v.Claims != nil
}

func rejected(err error) Verification {
	return Verification{Err: err}
}

// Signer creates and verifies access tokens.
type Signer struct {
	ttl time.Duration
	now func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// NewSigner returns a Signer issuing tokens valid for ttl
// (DefaultAccessTokenTTL when ttl is not positive).
func NewSigner(ttl time.Duration, opts ...Option) *Signer {
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	s := &Signer{ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckKey returns common.ErrWeakKey when key is shorter than MinKeyLength.
func CheckKey(key []byte) error {
	if len(key) < MinKeyLength {
		return fmt.Errorf("%w: %d bytes, need at least %d", common.ErrWeakKey, len(key), MinKeyLength)
	}
	return nil
}

// Issue signs a token for user.Account that expires ttl after now and
// returns it with its expiry (second precision, as encoded in the token).
func (s *Signer) Issue(user *models.User, key []byte) (string, time.Time, error) {
	if err := CheckKey(key); err != nil {
		return "", time.Time{}, err
	}

	now := s.now()
	claims := Claims{
		Account: user.Account,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(signingMethod, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %w", common.ErrTokenIssuanceFailure, err)
	}

	return token, claims.ExpiresAt.Time, nil
}

// Verify checks the signature, algorithm and expiry of raw. There is no
// leeway: a token is valid only while now is strictly before its exp.
func (s *Signer) Verify(raw string, key []byte) Verification {
	if raw == "" {
		return rejected(common.ErrMissingCredential)
	}
	if err := CheckKey(key); err != nil {
		return rejected(err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) && undecodableSignature(parser, raw) {
			return rejected(fmt.Errorf("%w: %w", common.ErrInvalidSignature, err))
		}
		return rejected(classify(err))
	}
	if !token.Valid {
		return rejected(common.ErrInvalidToken)
	}
	if claims.Account == "" {
		return rejected(fmt.Errorf("%w: missing account claim", common.ErrInvalidToken))
	}

	return Verification{Claims: claims}
}

// undecodableSignature reports whether raw has a well-formed header and
// payload but a signature segment that is not strict base64url.
func undecodableSignature(p *jwt.Parser, raw string) bool {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return false
	}
	if _, err := p.DecodeSegment(parts[0]); err != nil {
		return false
	}
	if _, err := p.DecodeSegment(parts[1]); err != nil {
		return false
	}
	_, err := p.DecodeSegment(parts[2])
	return err != nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", common.ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", common.ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", common.ErrMalformedToken, err)
	default:
		return fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}
}
