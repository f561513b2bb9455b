// Package database's embed file bundles migration SQL into the binary so a
// deployed build carries its own schema history.
package database

import "embed"

// EmbeddedMigrations holds every numbered SQL file under migrations/.
// Callers typically narrow it with fs.Sub(EmbeddedMigrations, "migrations").
//
//go:embed migrations/*.sql
var EmbeddedMigrations embed.FS
