// Package migrations embeds the SQL schema migrations so the migrate binary
// ships with its own source.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
