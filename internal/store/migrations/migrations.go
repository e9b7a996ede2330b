// Package migrations embeds the schema migration files goose applies at
// startup.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
