// Package users declares the repository contract for persisted user records
// (the credential store). Lookups used for authentication exclude
// soft-deleted rows.
package users

import (
	"context"

	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
)

// Update carries a partial mutation of a user row. Nil fields are left
// untouched; updated_at is stamped on every call.
type Update struct {
	Name        *string
	Surname     *string
	Email       *string
	Phone       *string
	Role        *string
	Permissions *[]string
	Avatar      *string
	Status      *string
	IsActive    *bool
	IsStaff     *bool
	IsSuperuser *bool
}

type Repository interface {
	// Create inserts a new user and fills in the assigned id and timestamps.
	// An email or username collision yields common.ErrDuplicateIdentity.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// FindByUsername returns a non-soft-deleted user or common.ErrNotFound.
	FindByUsername(ctx context.Context, username string) (*models.User, error)

	// FindByEmail returns a non-soft-deleted user or common.ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*models.User, error)

	// UpdateFields applies a partial update and stamps updated_at.
	// Absent or soft-deleted id yields common.ErrNotFound.
	UpdateFields(ctx context.Context, id int64, upd Update) error

	// SoftDelete sets delete_at; the row is never removed.
	SoftDelete(ctx context.Context, id int64) error

	// TouchLastActive stamps last_active on authenticated activity.
	TouchLastActive(ctx context.Context, id int64) error

	// UpdateTokenCache maintains the denormalized token/refresh_token
	// columns (most-recent-session cache).
	UpdateTokenCache(ctx context.Context, id int64, access, refresh string) error
}
