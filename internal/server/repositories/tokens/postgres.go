// Package tokens provides a PostgreSQL-backed repository for the
// users_token table.
package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return common.ErrDuplicateIdentity
	}
	return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
}

func (r *PostgresRepository) Create(ctx context.Context, userID int64, token string, expiration time.Time) (int64, error) {
	query :=
		`INSERT INTO users_token (user_id, token, expiration)
		 VALUES ($1, $2, $3)
		 RETURNING id
		 `
	var id int64
	if err := r.db.QueryRowContext(ctx, query, userID, token, expiration).Scan(&id); err != nil {
		return 0, classify(err)
	}
	return id, nil
}

func (r *PostgresRepository) Find(ctx context.Context, token string) (*models.Token, error) {
	query :=
		`SELECT id, user_id, token, expiration
		 FROM users_token
		 WHERE token = $1
		 `
	t := &models.Token{}
	if err := r.db.QueryRowContext(ctx, query, token).Scan(&t.ID, &t.UserID, &t.Token, &t.Expiration); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, classify(err)
	}
	return t, nil
}

func (r *PostgresRepository) DeleteByToken(ctx context.Context, token string) (int64, error) {
	query :=
		`DELETE FROM users_token
		 WHERE token = $1
		 `
	res, err := r.db.ExecContext(ctx, query, token)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	return n, nil
}

func (r *PostgresRepository) DeleteByID(ctx context.Context, id, userID int64) error {
	query :=
		`DELETE FROM users_token
		 WHERE id = $1 AND user_id = $2
		 `
	if _, err := r.db.ExecContext(ctx, query, id, userID); err != nil {
		return classify(err)
	}
	return nil
}

func (r *PostgresRepository) DeleteForUser(ctx context.Context, userID int64) (int64, error) {
	query :=
		`DELETE FROM users_token
		 WHERE user_id = $1
		 `
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	return n, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query :=
		`DELETE FROM users_token
		 WHERE expiration < $1
		 `
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	return n, nil
}
