// Package users provides a PostgreSQL-backed credential store over the
// users table.
package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

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

// classify maps driver errors to the shared taxonomy: unique-constraint
// violations become ErrDuplicateIdentity, anything else is treated as a
// transient storage failure.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return common.ErrDuplicateIdentity
	}
	return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
}

func marshalPermissions(perms []string) (string, error) {
	if perms == nil {
		perms = []string{}
	}
	b, err := json.Marshal(perms)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalPermissions(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var perms []string
	if err := json.Unmarshal([]byte(raw), &perms); err != nil {
		return nil, err
	}
	return perms, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	perms, err := marshalPermissions(user.Permissions)
	if err != nil {
		return nil, fmt.Errorf("error serializing permissions: %w", err)
	}

	query :=
		`INSERT INTO users
		 (name, surname, email, phone, username, hash_password,
		  is_active, is_staff, is_superuser, role, permissions, avatar, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id, created_at, updated_at
		 `

	err = r.db.QueryRowContext(ctx, query,
		user.Name, user.Surname, user.Email, user.Phone, user.Username, user.HashPassword,
		user.IsActive, user.IsStaff, user.IsSuperuser, user.Role, perms, user.Avatar, user.Status,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return nil, classify(err)
	}

	return user, nil
}

const userColumns = `id, name, surname, email, phone, username, hash_password,
		created_at, updated_at, delete_at, last_active,
		is_active, is_staff, is_superuser, role, permissions, avatar, status,
		token, refresh_token`

func (r *PostgresRepository) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var perms string
	err := row.Scan(
		&user.ID, &user.Name, &user.Surname, &user.Email, &user.Phone,
		&user.Username, &user.HashPassword,
		&user.CreatedAt, &user.UpdatedAt, &user.DeleteAt, &user.LastActive,
		&user.IsActive, &user.IsStaff, &user.IsSuperuser,
		&user.Role, &perms, &user.Avatar, &user.Status,
		&user.Token, &user.RefreshToken,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, classify(err)
	}
	user.Permissions, err = unmarshalPermissions(perms)
	if err != nil {
		return nil, fmt.Errorf("error deserializing permissions: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + `
		 FROM users
		 WHERE username = $1 AND delete_at IS NULL
		 `
	return r.scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + `
		 FROM users
		 WHERE email = $1 AND delete_at IS NULL
		 `
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) UpdateFields(ctx context.Context, id int64, upd Update) error {

	set := []string{"updated_at = now()"}
	args := []any{}

	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Surname != nil {
		add("surname", *upd.Surname)
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if upd.Phone != nil {
		add("phone", *upd.Phone)
	}
	if upd.Role != nil {
		add("role", *upd.Role)
	}
	if upd.Permissions != nil {
		perms, err := marshalPermissions(*upd.Permissions)
		if err != nil {
			return fmt.Errorf("error serializing permissions: %w", err)
		}
		add("permissions", perms)
	}
	if upd.Avatar != nil {
		add("avatar", *upd.Avatar)
	}
	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.IsActive != nil {
		add("is_active", *upd.IsActive)
	}
	if upd.IsStaff != nil {
		add("is_staff", *upd.IsStaff)
	}
	if upd.IsSuperuser != nil {
		add("is_superuser", *upd.IsSuperuser)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d AND delete_at IS NULL`,
		strings.Join(set, ", "), len(args))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(err)
	}
	return requireRow(res)
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id int64) error {
	query :=
		`UPDATE users SET delete_at = now(), updated_at = now()
		 WHERE id = $1 AND delete_at IS NULL
		 `
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return classify(err)
	}
	return requireRow(res)
}

func (r *PostgresRepository) TouchLastActive(ctx context.Context, id int64) error {
	query :=
		`UPDATE users SET last_active = now(), updated_at = now()
		 WHERE id = $1 AND delete_at IS NULL
		 `
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return classify(err)
	}
	return requireRow(res)
}

func (r *PostgresRepository) UpdateTokenCache(ctx context.Context, id int64, access, refresh string) error {
	query :=
		`UPDATE users SET token = $1, refresh_token = $2, updated_at = now()
		 WHERE id = $3 AND delete_at IS NULL
		 `
	res, err := r.db.ExecContext(ctx, query, access, refresh, id)
	if err != nil {
		return classify(err)
	}
	return requireRow(res)
}

// requireRow converts a zero-rows-affected update into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
