// Package migrations embeds the goose SQL migrations for the users and
// users_token tables. Down migrations run in reverse order, so teardown
// drops users_token before users, honoring the foreign-key dependency.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
