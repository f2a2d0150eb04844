package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	usersrepo "github.com/dmitrijs2005/authcore/internal/server/repositories/users"
)

// --- helpers ---

var errBoom = errors.New("boom")

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// fakeUsersRepo is an in-memory store with the same compare-and-swap
// semantics as the SQL repository.
type fakeUsersRepo struct {
	mu    sync.Mutex
	users map[string]*models.User

	getErr    error
	createErr error
	updateErr error
	deleteErr error
	listErr   error
	rotateErr error

	// beforeRotate runs inside UpdateRefreshToken before the comparison,
	// with the lock held.
	beforeRotate func(u *models.User)

	gets    int
	rotates int
}

func newFakeUsersRepo(users ...*models.User) *fakeUsersRepo {
	r := &fakeUsersRepo{users: map[string]*models.User{}}
	for _, u := range users {
		c := *u
		r.users[u.Account] = &c
	}
	return r
}

func (r *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	if _, ok := r.users[u.Account]; ok {
		return nil, common.ErrorAlreadyExists
	}
	c := *u
	c.ID = fmt.Sprintf("id-%d", len(r.users)+1)
	r.users[u.Account] = &c
	out := c
	return &out, nil
}

func (r *fakeUsersRepo) GetByAccount(_ context.Context, account string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	if r.getErr != nil {
		return nil, r.getErr
	}
	u, ok := r.users[account]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

func (r *fakeUsersRepo) List(context.Context) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]*models.User, 0, len(r.users))
	for _, u := range r.users {
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out, nil
}

func (r *fakeUsersRepo) Update(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	stored, ok := r.users[u.Account]
	if !ok {
		return common.ErrorNotFound
	}
	stored.PasswordHash = u.PasswordHash
	stored.Email = u.Email
	return nil
}

func (r *fakeUsersRepo) Delete(_ context.Context, account string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.users[account]; !ok {
		return common.ErrorNotFound
	}
	delete(r.users, account)
	return nil
}

func (r *fakeUsersRepo) UpdateRefreshToken(_ context.Context, account, previous, token string, expiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rotates++
	if r.rotateErr != nil {
		return r.rotateErr
	}
	u, ok := r.users[account]
	if !ok {
		return common.ErrorNotFound
	}
	if r.beforeRotate != nil {
		r.beforeRotate(u)
	}
	if u.RefreshToken != previous {
		return common.ErrRefreshConflict
	}
	u.RefreshToken = token
	u.RefreshTokenExpiry = expiry
	return nil
}

func (r *fakeUsersRepo) stored(account string) models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.users[account]
}

type fakeRepoManager struct {
	users *fakeUsersRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository         { return m.users }

// logEntry is one call captured by recordingLogger.
type logEntry struct {
	level string
	msg   string
	args  []any
}

type recordingLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
	with    []any
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (l *recordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	all := append(append([]any{}, l.with...), args...)
	*l.entries = append(*l.entries, logEntry{level: level, msg: msg, args: all})
}

func (l *recordingLogger) Debug(_ context.Context, msg string, args ...any) {
	l.record("debug", msg, args)
}
func (l *recordingLogger) Info(_ context.Context, msg string, args ...any) {
	l.record("info", msg, args)
}
func (l *recordingLogger) Warn(_ context.Context, msg string, args ...any) {
	l.record("warn", msg, args)
}
func (l *recordingLogger) Error(_ context.Context, msg string, args ...any) {
	l.record("error", msg, args)
}

func (l *recordingLogger) With(args ...any) logging.Logger {
	return &recordingLogger{mu: l.mu, entries: l.entries, with: append(append([]any{}, l.with...), args...)}
}

func (l *recordingLogger) all() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logEntry(nil), *l.entries...)
}

// value returns the value logged under key in e, or nil.
func (e logEntry) value(key string) any {
	for i := 0; i+1 < len(e.args); i += 2 {
		if e.args[i] == key {
			return e.args[i+1]
		}
	}
	return nil
}
