// Package common contains shared constants and sentinel errors used across
// authcore components.
package common

// AuthorizationHeaderName is the HTTP header (and gRPC metadata key) that
// carries the access token on inbound requests.
const AuthorizationHeaderName = "authorization"

// BearerPrefix precedes the token inside the authorization header value.
const BearerPrefix = "Bearer "

// RefreshTokenSize is the number of random bytes behind every refresh token.
const RefreshTokenSize = 32
