// Package tokens declares the repository contract for the users_token table,
// which stores every active bearer token (access and refresh).
package tokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
)

// Repository defines operations for storing, retrieving, and revoking tokens.
type Repository interface {
	// Create stores a new token row for userID expiring at expiration and
	// returns the assigned row id. A token-string collision yields
	// common.ErrDuplicateIdentity.
	Create(ctx context.Context, userID int64, token string, expiration time.Time) (int64, error)

	// Find looks up a token by its opaque string.
	// Absent tokens yield common.ErrNotFound.
	Find(ctx context.Context, token string) (*models.Token, error)

	// DeleteByToken removes a token row by its token string and reports how
	// many rows went away. Deleting a non-existent token is not an error;
	// callers enforcing single use check the count under a transaction.
	DeleteByToken(ctx context.Context, token string) (int64, error)

	// DeleteByID removes a token row by id, restricted to the owning user.
	// Deleting a non-existent row is not an error.
	DeleteByID(ctx context.Context, id, userID int64) error

	// DeleteForUser removes every token row of a user (logout everywhere)
	// and returns how many were removed.
	DeleteForUser(ctx context.Context, userID int64) (int64, error)

	// DeleteExpired removes all rows whose expiration precedes now and
	// returns how many were swept.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
