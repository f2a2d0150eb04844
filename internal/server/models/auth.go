package models

import "time"

// AuthResult is handed to the caller after a successful authentication.
// It is built fresh on every call and never persisted.
type AuthResult struct {
	AccessToken  string    `json:"access_token"`
	AccessExpiry time.Time `json:"access_expiry"`
	RefreshToken string    `json:"refresh_token"`
	Account      string    `json:"account"`
}
