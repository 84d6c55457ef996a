// Package migrations embeds the identity schema.
package migrations

import "embed"

// FS holds the ordered .up.sql files applied by database.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
