// Package migrations embeds the Life OS schema.
package migrations

import "embed"

// Files holds the SQL migrations. Names sort in apply order (001_init.sql,
// 002_calendar_sync.sql, ...) and each file starts with a one-line comment
// describing it.
//
//go:embed *.sql
var Files embed.FS
