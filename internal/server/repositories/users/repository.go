// Package users declares the User Store: persistence of user records,
// including the refresh token fields.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authcore/internal/server/models"
)

// Repository defines operations on user records.
type Repository interface {
	// Create inserts a user and fills ID and CreatedAt. A duplicate account
	// yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByAccount returns the user or common.ErrorNotFound.
	GetByAccount(ctx context.Context, account string) (*models.User, error)

	// List returns every user ordered by account.
	List(ctx context.Context) ([]*models.User, error)

	// Update rewrites the password hash and email of an existing user.
	Update(ctx context.Context, user *models.User) error

	// Delete removes the user with the given account.
	Delete(ctx context.Context, account string) error

	// UpdateRefreshToken atomically replaces the refresh token and its expiry,
	// but only while the stored token still equals previous ("" matches an
	// absent token). It returns common.ErrRefreshConflict when another writer
	// got there first and common.ErrorNotFound when the account is unknown.
	UpdateRefreshToken(ctx context.Context, account, previous, token string, expiry time.Time) error
}
