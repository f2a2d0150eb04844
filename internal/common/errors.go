// Package common defines shared constants and sentinel errors used across
// the repository, service and transport layers. Callers should use errors.Is
// to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorInvalidInput = errors.New("invalid input")

	// Verification errors. Transports collapse all of them into a single
	// unauthenticated outcome.
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrTokenExpired      = errors.New("token expired")
	ErrMalformedToken    = errors.New("malformed token")
	ErrInvalidToken      = errors.New("invalid token")

	// Key material shorter than the HMAC-SHA-512 minimum.
	ErrWeakKey = errors.New("weak key")

	// Token lifecycle errors.
	ErrRefreshPersistFailure = errors.New("refresh token is not saved")
	ErrRefreshConflict       = errors.New("refresh token was rotated concurrently")
	ErrTokenIssuanceFailure  = errors.New("token issuance failure")
)

// IsVerificationError reports whether err is one of the token rejection
// reasons produced while checking an inbound credential.
func IsVerificationError(err error) bool {
	return errors.Is(err, ErrMissingCredential) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrWeakKey)
}
