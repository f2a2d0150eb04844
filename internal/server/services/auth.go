package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
	"github.com/sethvargo/go-retry"
)

const defaultRetryDelay = 10 * time.Millisecond

// Refresher keeps refresh tokens fresh. Implemented by RefreshTokenManager.
type Refresher interface {
	EnsureFresh(ctx context.Context, account, token string, expiry time.Time) (string, time.Time, error)
}

// TokenSigner issues and verifies access tokens. Implemented by auth.Signer.
type TokenSigner interface {
	Issue(user *models.User, key []byte) (string, time.Time, error)
	Verify(raw string, key []byte) auth.Verification
}

// AuthService authenticates users and verifies inbound credentials.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	refresher   Refresher
	signer      TokenSigner
	log         logging.Logger

	retryAttempts uint64
	retryDelay    time.Duration
	now           func() time.Time
}

// NewAuthService constructs an AuthService. retryAttempts bounds how many
// times a login reloads the user after losing a refresh rotation race.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, refresher Refresher, signer TokenSigner, retryAttempts int, log logging.Logger) *AuthService {
	if retryAttempts < 0 {
		retryAttempts = 0
	}
	if log == nil {
		log = logging.Nop()
	}
	return &AuthService{
		db:            db,
		repomanager:   m,
		refresher:     refresher,
		signer:        signer,
		log:           log.With("module", "auth"),
		retryAttempts: uint64(retryAttempts),
		retryDelay:    defaultRetryDelay,
		now:           time.Now,
	}
}

// Authenticate makes sure user has a fresh, persisted refresh token and then
// issues an access token for it. No access token is issued when the refresh
// state could not be stored. user itself is not modified.
func (s *AuthService) Authenticate(ctx context.Context, user *models.User, key []byte) (*models.AuthResult, error) {
	if err := auth.CheckKey(key); err != nil {
		return nil, err
	}

	token, expiry, err := s.refresher.EnsureFresh(ctx, user.Account, user.RefreshToken, user.RefreshTokenExpiry)
	if err != nil {
		return nil, err
	}

	rotated := *user
	rotated.RefreshToken = token
	rotated.RefreshTokenExpiry = expiry

	access, accessExpiry, err := s.signer.Issue(&rotated, key)
	if err != nil {
		if errors.Is(err, common.ErrTokenIssuanceFailure) || errors.Is(err, common.ErrWeakKey) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", common.ErrTokenIssuanceFailure, err)
	}

	return &models.AuthResult{
		AccessToken:  access,
		AccessExpiry: accessExpiry,
		RefreshToken: token,
		Account:      rotated.Account,
	}, nil
}

// VerifyIncoming checks a request credential (an authorization header value,
// with or without the "Bearer " prefix).
func (s *AuthService) VerifyIncoming(credential string, key []byte) auth.Verification {
	raw, err := auth.ExtractBearer(credential)
	if err != nil {
		return auth.Verification{Err: err}
	}
	return s.signer.Verify(raw, key)
}

// IsAuthenticated reports whether credential carries a valid access token.
func (s *AuthService) IsAuthenticated(credential string, key []byte) bool {
	return s.VerifyIncoming(credential, key).Valid()
}

// Claims returns the verified claims of credential or the rejection reason.
func (s *AuthService) Claims(credential string, key []byte) (*auth.Claims, error) {
	v := s.VerifyIncoming(credential, key)
	if !v.Valid() {
		return nil, v.Err
	}
	return v.Claims, nil
}

// AuthenticateAccount loads account from the store and authenticates it.
func (s *AuthService) AuthenticateAccount(ctx context.Context, account string, key []byte) (*models.AuthResult, error) {
	user, err := s.repomanager.Users(s.db).GetByAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	return s.authenticateWithRetry(ctx, user, key)
}

// Login checks passwordHash against the stored hash of account and
// authenticates on a match. Unknown accounts and mismatches both yield
// common.ErrorUnauthorized.
func (s *AuthService) Login(ctx context.Context, account, passwordHash string, key []byte) (*models.AuthResult, error) {
	user, err := s.repomanager.Users(s.db).GetByAccount(ctx, account)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		s.log.Error(ctx, "user lookup failed", "account", account, "error", err)
		return nil, common.ErrorInternal
	}

	if !equalSecret(user.PasswordHash, passwordHash) {
		s.log.Info(ctx, "login rejected", "account", account)
		return nil, common.ErrorUnauthorized
	}

	return s.authenticateWithRetry(ctx, user, key)
}

// Refresh issues a new access token to the holder of the current, unexpired
// refresh token of account.
func (s *AuthService) Refresh(ctx context.Context, account, refreshToken string, key []byte) (*models.AuthResult, error) {
	user, err := s.repomanager.Users(s.db).GetByAccount(ctx, account)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		s.log.Error(ctx, "user lookup failed", "account", account, "error", err)
		return nil, common.ErrorInternal
	}

	if refreshToken == "" || !user.HasRefreshToken() || !equalSecret(user.RefreshToken, refreshToken) {
		return nil, common.ErrorUnauthorized
	}
	if IsStale(user.RefreshToken, user.RefreshTokenExpiry, s.now()) {
		return nil, common.ErrorUnauthorized
	}

	return s.Authenticate(ctx, user, key)
}

// authenticateWithRetry authenticates user and, when another request rotated
// the same refresh token first, reloads the user and tries again so the
// caller ends up with the winner's token.
func (s *AuthService) authenticateWithRetry(ctx context.Context, user *models.User, key []byte) (*models.AuthResult, error) {
	backoff := retry.WithMaxRetries(s.retryAttempts, retry.NewConstant(s.retryDelay))

	var result *models.AuthResult
	current := user
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if current == nil {
			reloaded, err := s.repomanager.Users(s.db).GetByAccount(ctx, user.Account)
			if err != nil {
				return err
			}
			current = reloaded
		}

		res, err := s.Authenticate(ctx, current, key)
		if errors.Is(err, common.ErrRefreshConflict) {
			current = nil
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func equalSecret(stored, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}
