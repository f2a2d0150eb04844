package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
)

// UserService manages user records.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

// NewUserService constructs a UserService.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *UserService {
	if log == nil {
		log = logging.Nop()
	}
	return &UserService{db: db, repomanager: m, log: log.With("module", "users")}
}

// List returns all users ordered by account.
func (s *UserService) List(ctx context.Context) ([]*models.User, error) {
	users, err := s.repomanager.Users(s.db).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	return users, nil
}

// Register creates a user. The password hash is stored as given.
func (s *UserService) Register(ctx context.Context, account, passwordHash, email string) (*models.User, error) {
	account = strings.TrimSpace(account)
	if account == "" || passwordHash == "" {
		return nil, fmt.Errorf("%w: account and password hash are required", common.ErrorInvalidInput)
	}

	user, err := s.repomanager.Users(s.db).Create(ctx, &models.User{
		Account:      account,
		PasswordHash: passwordHash,
		Email:        email,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.log.Info(ctx, "user registered", "account", account)
	return user, nil
}

// Update replaces the password hash and email of an existing user. Empty
// values keep the stored ones.
func (s *UserService) Update(ctx context.Context, account, passwordHash, email string) (*models.User, error) {
	if account == "" {
		return nil, fmt.Errorf("%w: account is required", common.ErrorInvalidInput)
	}

	var updated *models.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		user, err := repo.GetByAccount(ctx, account)
		if err != nil {
			return err
		}
		if passwordHash != "" {
			user.PasswordHash = passwordHash
		}
		if email != "" {
			user.Email = email
		}
		if err := repo.Update(ctx, user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error updating user: %w", err)
	}
	return updated, nil
}

// Delete removes the user with the given account.
func (s *UserService) Delete(ctx context.Context, account string) error {
	if account == "" {
		return fmt.Errorf("%w: account is required", common.ErrorInvalidInput)
	}
	if err := s.repomanager.Users(s.db).Delete(ctx, account); err != nil {
		return fmt.Errorf("error deleting user: %w", err)
	}
	s.log.Info(ctx, "user deleted", "account", account)
	return nil
}
