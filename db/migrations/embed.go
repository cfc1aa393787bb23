// Package dbmigrations exposes embedded SQL migrations for pricestage binaries.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into pricestage binaries.
//
//go:embed *.sql
var Files embed.FS
