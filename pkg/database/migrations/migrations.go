package migrations

import "embed"

// FS holds the SQL migrations of the vote store.
//
//go:embed *.sql
var FS embed.FS
