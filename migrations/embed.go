// Package migrations holds the SQL schema applied at startup.
package migrations

import "embed"

// FS contains the *.up.sql migration files in apply order.
//
//go:embed *.sql
var FS embed.FS
