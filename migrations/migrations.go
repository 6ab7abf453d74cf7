// Package migrations embeds the SQL schema for the transcript archive.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
