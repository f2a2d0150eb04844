// Package services contains server-side business logic: refresh token
// rotation, authentication and user management.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
)

// DefaultRefreshTokenTTL is the lifetime of a rotated refresh token.
const DefaultRefreshTokenTTL = 14 * 24 * time.Hour

// RefreshTokenManager keeps an account's refresh token fresh, rotating it
// when it is absent or expired.
type RefreshTokenManager struct {
	db          dbx.TxBeginner
	repomanager repomanager.RepositoryManager
	validity    time.Duration
	log         logging.Logger

	now      func() time.Time
	newToken func() (string, error)
}

// NewRefreshTokenManager constructs a RefreshTokenManager. A non-positive
// validity falls back to DefaultRefreshTokenTTL.
func NewRefreshTokenManager(db *sql.DB, m repomanager.RepositoryManager, validity time.Duration, log logging.Logger) *RefreshTokenManager {
	return newRefreshTokenManager(db, m, validity, log)
}

func newRefreshTokenManager(db dbx.TxBeginner, m repomanager.RepositoryManager, validity time.Duration, log logging.Logger) *RefreshTokenManager {
	if validity <= 0 {
		validity = DefaultRefreshTokenTTL
	}
	if log == nil {
		log = logging.Nop()
	}
	return &RefreshTokenManager{
		db:          db,
		repomanager: m,
		validity:    validity,
		log:         log.With("module", "refresh"),
		now:         time.Now,
		newToken: func() (string, error) {
			return common.MakeRandBase64String(common.RefreshTokenSize)
		},
	}
}

// IsStale reports whether a refresh token has to be rotated at now.
func IsStale(token string, expiry, now time.Time) bool {
	return token == "" || expiry.Before(now)
}

// EnsureFresh returns token and expiry unchanged while the token is fresh.
// Otherwise it mints a new token, persists it for account in a single
// transaction and returns the new pair.
//
// The write only succeeds while the stored token still equals token, so of
// two callers rotating the same stale token exactly one wins; the other gets
// common.ErrRefreshConflict. Every other failure wraps
// common.ErrRefreshPersistFailure and means nothing was stored.
func (m *RefreshTokenManager) EnsureFresh(ctx context.Context, account, token string, expiry time.Time) (string, time.Time, error) {
	now := m.now()
	if !IsStale(token, expiry, now) {
		return token, expiry, nil
	}

	reason := "expired"
	if token == "" {
		reason = "absent"
	}

	next, err := m.newToken()
	if err != nil {
		m.log.Error(ctx, "refresh token generation failed", "account", account, "error", err)
		return "", time.Time{}, fmt.Errorf("%w: %w", common.ErrRefreshPersistFailure, err)
	}
	nextExpiry := now.Add(m.validity)

	err = dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return m.repomanager.Users(tx).UpdateRefreshToken(ctx, account, token, next, nextExpiry)
	})
	switch {
	case err == nil:
	case errors.Is(err, common.ErrRefreshConflict):
		m.log.Warn(ctx, "refresh token rotated concurrently", "account", account)
		return "", time.Time{}, err
	default:
		m.log.Error(ctx, "refresh token not persisted", "account", account, "error", err)
		return "", time.Time{}, fmt.Errorf("%w: %w", common.ErrRefreshPersistFailure, err)
	}

	m.log.Info(ctx, "refresh token re-issued", "account", account, "reason", reason)
	return next, nextExpiry, nil
}
