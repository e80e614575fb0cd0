package migrations

import "embed"

// Files exposes embedded SQL migration files. Top-level files target
// Postgres; the sqlite/ subdirectory carries the SQLite schema.
//
//go:embed *.sql sqlite/*.sql
var Files embed.FS
