// Package migrations embeds the goose SQL migrations for the handle
// directory and extra-user-memory schema (spec §6).
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
