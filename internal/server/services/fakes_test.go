package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
)

// In-memory repository fakes. They ignore the DBTX handle; the services
// still drive real Begin/Commit/Rollback calls against the sqlmock db, so
// the transactional structure stays exercised.

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*models.User
	err    error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[int64]*models.User{}}
}

func (f *fakeUserRepo) Create(_ context.Context, user *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byID {
		if u.Email == user.Email || u.Username == user.Username {
			return nil, common.ErrDuplicateIdentity
		}
	}
	f.nextID++
	user.ID = f.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	f.byID[user.ID] = &cp
	return user, nil
}

func (f *fakeUserRepo) find(pred func(*models.User) bool) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byID {
		if pred(u) && u.DeleteAt == nil {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeUserRepo) FindByUsername(_ context.Context, username string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.Username == username })
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.Email == email })
}

func (f *fakeUserRepo) live(id int64) *models.User {
	u, ok := f.byID[id]
	if !ok || u.DeleteAt != nil {
		return nil
	}
	return u
}

func (f *fakeUserRepo) UpdateFields(_ context.Context, id int64, upd users.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	u := f.live(id)
	if u == nil {
		return common.ErrNotFound
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Status != nil {
		u.Status = *upd.Status
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	u.UpdatedAt = time.Now()
	return nil
}

func (f *fakeUserRepo) SoftDelete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	u := f.live(id)
	if u == nil {
		return common.ErrNotFound
	}
	now := time.Now()
	u.DeleteAt = &now
	u.UpdatedAt = now
	return nil
}

func (f *fakeUserRepo) TouchLastActive(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	u := f.live(id)
	if u == nil {
		return common.ErrNotFound
	}
	now := time.Now()
	u.LastActive = &now
	u.UpdatedAt = now
	return nil
}

func (f *fakeUserRepo) UpdateTokenCache(_ context.Context, id int64, access, refresh string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	u := f.live(id)
	if u == nil {
		return common.ErrNotFound
	}
	u.Token = access
	u.RefreshToken = refresh
	u.UpdatedAt = time.Now()
	return nil
}

type fakeTokenRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]*models.Token
	err    error
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{rows: map[string]*models.Token{}}
}

func (f *fakeTokenRepo) Create(_ context.Context, userID int64, token string, expiration time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	if _, exists := f.rows[token]; exists {
		return 0, common.ErrDuplicateIdentity
	}
	f.nextID++
	f.rows[token] = &models.Token{ID: f.nextID, UserID: userID, Token: token, Expiration: expiration}
	return f.nextID, nil
}

func (f *fakeTokenRepo) Find(_ context.Context, token string) (*models.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	row, ok := f.rows[token]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeTokenRepo) DeleteByToken(_ context.Context, token string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	if _, ok := f.rows[token]; !ok {
		return 0, nil
	}
	delete(f.rows, token)
	return 1, nil
}

func (f *fakeTokenRepo) DeleteByID(_ context.Context, id, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for k, row := range f.rows {
		if row.ID == id && row.UserID == userID {
			delete(f.rows, k)
		}
	}
	return nil
}

func (f *fakeTokenRepo) DeleteForUser(_ context.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for k, row := range f.rows {
		if row.UserID == userID {
			delete(f.rows, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeTokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for k, row := range f.rows {
		if row.Expiration.Before(now) {
			delete(f.rows, k)
			n++
		}
	}
	return n, nil
}

// expire rewinds a stored token's expiration into the past.
func (f *fakeTokenRepo) expire(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[token]; ok {
		row.Expiration = time.Now().Add(-time.Minute)
	}
}

type fakeRepoManager struct {
	users  *fakeUserRepo
	tokens *fakeTokenRepo
}

func (f *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (f *fakeRepoManager) Users(dbx.DBTX) users.Repository             { return f.users }
func (f *fakeRepoManager) Tokens(dbx.DBTX) tokens.Repository           { return f.tokens }

// newServiceDB returns a sqlmock-backed *sql.DB preloaded with enough
// unordered Begin/Commit/Rollback expectations for any single test.
func newServiceDB(t *testing.T) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 32; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectRollback()
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}
