package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var userCols = []string{"id", "account", "password_hash", "email", "created_at", "refresh_token", "refresh_token_expires_at"}

const (
	qInsert  = `(?s)^\s*INSERT\s+INTO\s+users\s*\(id,\s*account,\s*password_hash,\s*email\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*RETURNING\s+created_at\s*$`
	qSelect  = `(?s)^SELECT\s+id,\s*account,.*refresh_token_expires_at\s+FROM\s+users\s+WHERE\s+account\s*=\s*\$1$`
	qList    = `(?s)^SELECT\s+id,.*FROM\s+users\s+ORDER\s+BY\s+account$`
	qUpdate  = `(?s)^\s*UPDATE\s+users\s+SET\s+password_hash\s*=\s*\$2,\s*email\s*=\s*\$3\s+WHERE\s+account\s*=\s*\$1\s*$`
	qDelete  = `(?s)^DELETE\s+FROM\s+users\s+WHERE\s+account\s*=\s*\$1$`
	qRotate  = `(?s)^\s*UPDATE\s+users\s+SET\s+refresh_token\s*=\s*\$2,\s*refresh_token_expires_at\s*=\s*\$3\s+WHERE\s+account\s*=\s*\$1\s+AND\s+refresh_token\s+IS\s+NOT\s+DISTINCT\s+FROM\s+\$4\s*$`
	qExists  = `(?s)^SELECT\s+EXISTS\s*\(SELECT\s+1\s+FROM\s+users\s+WHERE\s+account\s*=\s*\$1\)$`
	dbErrRes = `db error: .*`
)

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(qInsert).
		WithArgs(sqlmock.AnyArg(), "alice", "hash", "a@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	u, err := repo.Create(context.Background(), &models.User{Account: "alice", PasswordHash: "hash", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if u.ID == "" || !u.CreatedAt.Equal(created) {
		t.Fatalf("unexpected user: %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qInsert).
		WithArgs(sqlmock.AnyArg(), "alice", "hash", "").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	_, err := repo.Create(context.Background(), &models.User{Account: "alice", PasswordHash: "hash"})
	if !errors.Is(err, common.ErrorAlreadyExists) {
		t.Fatalf("want ErrorAlreadyExists, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qInsert).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.User{Account: "alice"})
	if err == nil || !regexp.MustCompile(dbErrRes + "db down").MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetByAccount_WithRefreshToken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Now().Add(-time.Hour)
	expires := time.Now().Add(time.Hour)
	mock.ExpectQuery(qSelect).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("u-1", "alice", "hash", "", created, "tok", expires))

	u, err := repo.GetByAccount(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetByAccount error: %v", err)
	}
	if u.ID != "u-1" || u.RefreshToken != "tok" || !u.RefreshTokenExpiry.Equal(expires) {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestGetByAccount_NullRefreshFields(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qSelect).
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("u-2", "bob", "hash", "", time.Now(), nil, nil))

	u, err := repo.GetByAccount(context.Background(), "bob")
	if err != nil {
		t.Fatalf("GetByAccount error: %v", err)
	}
	if u.HasRefreshToken() || !u.RefreshTokenExpiry.IsZero() {
		t.Fatalf("expected no refresh cycle, got %+v", u)
	}
}

func TestGetByAccount_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qSelect).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByAccount(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestList(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qList).WillReturnRows(sqlmock.NewRows(userCols).
		AddRow("u-1", "alice", "h1", "", time.Now(), nil, nil).
		AddRow("u-2", "bob", "h2", "b@example.com", time.Now(), "tok", time.Now()))

	list, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 2 || list[0].Account != "alice" || list[1].RefreshToken != "tok" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestList_Empty(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qList).WillReturnRows(sqlmock.NewRows(userCols))

	list, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}
}

func TestUpdate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(qUpdate).WithArgs("alice", "h2", "new@example.com").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(qUpdate).WithArgs("ghost", "h", "").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Update(context.Background(), &models.User{Account: "alice", PasswordHash: "h2", Email: "new@example.com"}); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if err := repo.Update(context.Background(), &models.User{Account: "ghost", PasswordHash: "h"}); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(qDelete).WithArgs("alice").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(qDelete).WithArgs("ghost").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(qDelete).WithArgs("bob").WillReturnError(errors.New("db err"))

	if err := repo.Delete(context.Background(), "alice"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := repo.Delete(context.Background(), "ghost"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
	if err := repo.Delete(context.Background(), "bob"); err == nil || !regexp.MustCompile(dbErrRes + "db err").MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestUpdateRefreshToken_FromAbsent(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	expiry := time.Now().Add(14 * 24 * time.Hour)
	mock.ExpectExec(qRotate).
		WithArgs("alice", "new-token", expiry, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateRefreshToken(context.Background(), "alice", "", "new-token", expiry); err != nil {
		t.Fatalf("UpdateRefreshToken error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateRefreshToken_BindsPreviousToken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	expiry := time.Now().Add(time.Hour)
	mock.ExpectExec(qRotate).
		WithArgs("alice", "new-token", expiry, "old-token").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateRefreshToken(context.Background(), "alice", "old-token", "new-token", expiry); err != nil {
		t.Fatalf("UpdateRefreshToken error: %v", err)
	}
}

func TestUpdateRefreshToken_Conflict(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(qRotate).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(qExists).WithArgs("alice").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.UpdateRefreshToken(context.Background(), "alice", "stale", "new", time.Now())
	if !errors.Is(err, common.ErrRefreshConflict) {
		t.Fatalf("want ErrRefreshConflict, got %v", err)
	}
}

func TestUpdateRefreshToken_UnknownAccount(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(qRotate).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(qExists).WithArgs("ghost").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.UpdateRefreshToken(context.Background(), "ghost", "", "new", time.Now())
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestUpdateRefreshToken_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(qRotate).WillReturnError(errors.New("db down"))

	err := repo.UpdateRefreshToken(context.Background(), "alice", "", "new", time.Now())
	if err == nil || !regexp.MustCompile(dbErrRes + "db down").MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
