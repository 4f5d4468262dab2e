package migrations

import "embed"

// FS holds the goose migrations for the postgres driver.
//
//go:embed *.sql
var FS embed.FS
