// Package migrations embeds the sqlite schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
