// Package migrations holds the goose SQL migrations of the template database.
package migrations

import "embed"

// FS is the embedded migration set, rooted at the package directory.
//
//go:embed *.sql
var FS embed.FS
