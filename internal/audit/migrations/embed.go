// Package migrations embeds the SQL schema of the audit ledger.
package migrations

import "embed"

// FS holds the *.up.sql files, applied in name order.
//
//go:embed *.sql
var FS embed.FS
