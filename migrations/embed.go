// Package migrations embeds the Postgres schema used by the postgres store backend.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
