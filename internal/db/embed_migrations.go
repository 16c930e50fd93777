package db

import "embed"

// MigrationFS embeds the SQL migrations (users, refresh_tokens, audit_logs).
// Applied by the migrate runner from cmd/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
