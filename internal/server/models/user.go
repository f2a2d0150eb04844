// Package models defines server-side data models persisted in the database
// or returned to callers.
package models

import "time"

// User is the persisted user record. RefreshToken is empty when the account
// has no active refresh cycle, in which case RefreshTokenExpiry is
// meaningless. The two refresh fields are always written together.
type User struct {
	ID                 string
	Account            string
	PasswordHash       string
	Email              string
	CreatedAt          time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

// HasRefreshToken reports whether the user is inside a refresh cycle.
func (u *User) HasRefreshToken() bool {
	return u.RefreshToken != ""
}
