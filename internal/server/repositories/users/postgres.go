package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the SQLSTATE Postgres reports for a duplicate key.
const uniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, account, password_hash, email, created_at, refresh_token, refresh_token_expires_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u       models.User
		token   sql.NullString
		expires sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Account, &u.PasswordHash, &u.Email, &u.CreatedAt, &token, &expires); err != nil {
		return nil, err
	}
	u.RefreshToken = token.String
	if expires.Valid {
		u.RefreshTokenExpiry = expires.Time
	}
	return &u, nil
}

func nullableToken(token string) sql.NullString {
	return sql.NullString{String: token, Valid: token != ""}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, account, password_hash, email)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	id := uuid.NewString()
	err := r.db.QueryRowContext(ctx, query, id, user.Account, user.PasswordHash, user.Email).Scan(&user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	user.ID = id
	return user, nil
}

func (r *PostgresRepository) GetByAccount(ctx context.Context, account string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE account = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, account))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY account`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users SET password_hash = $2, email = $3
		WHERE account = $1
	`
	res, err := r.db.ExecContext(ctx, query, user.Account, user.PasswordHash, user.Email)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, account string) error {
	query := `DELETE FROM users WHERE account = $1`

	res, err := r.db.ExecContext(ctx, query, account)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) UpdateRefreshToken(ctx context.Context, account, previous, token string, expiry time.Time) error {
	query := `
		UPDATE users SET refresh_token = $2, refresh_token_expires_at = $3
		WHERE account = $1 AND refresh_token IS NOT DISTINCT FROM $4
	`
	res, err := r.db.ExecContext(ctx, query, account, token, expiry, nullableToken(previous))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 1 {
		return nil
	}

	// nothing matched: either the account is gone or its token moved on
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE account = $1)`, account).Scan(&exists); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if !exists {
		return common.ErrorNotFound
	}
	return common.ErrRefreshConflict
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
