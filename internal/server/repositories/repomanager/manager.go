package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX (a live connection or
// a transaction) and exposes the schema migration hook.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Tokens(db dbx.DBTX) tokens.Repository
}
