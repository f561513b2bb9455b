// Package database manages the SQLite connection and migration runner.
package database

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo
)

// DB wraps a pooled SQLite connection.
type DB struct {
	Conn *sql.DB
}

// New opens dbPath and applies any migrations found in migrationsFS that have
// not already been recorded in schema_migrations.
func New(dbPath string, migrationsFS fs.FS) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{Conn: conn}

	if err := db.runMigrations(migrationsFS); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("[database] connected and migrations applied")
	return db, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	return db.Conn.Close()
}

type migrationFile struct {
	name     string
	checksum string
	body     []byte
}

// loadMigrationFiles reads every *.sql file under migrationsFS in lexical
// order and hashes each one so runMigrations can tell a genuinely new
// migration from a previously-applied file that was edited in place.
func loadMigrationFiles(migrationsFS fs.FS) ([]migrationFile, error) {
	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	files := make([]migrationFile, 0, len(names))
	for _, name := range names {
		body, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		sum := sha256.Sum256(body)
		files = append(files, migrationFile{name: name, checksum: hex.EncodeToString(sum[:]), body: body})
	}
	return files, nil
}

// runMigrations applies pending *.sql files in lexical order and records each
// one's checksum in schema_migrations, so re-running the same filesystem is a
// no-op but silently editing an already-applied file is caught as drift
// instead of being executed again or ignored.
func (db *DB) runMigrations(migrationsFS fs.FS) error {
	if _, err := db.Conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	files, err := loadMigrationFiles(migrationsFS)
	if err != nil {
		return err
	}

	applied := make(map[string]string, len(files))
	rows, err := db.Conn.Query("SELECT filename, checksum FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("failed to query schema_migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, checksum string
		if err := rows.Scan(&name, &checksum); err != nil {
			return fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[name] = checksum
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate migration rows: %w", err)
	}

	applyCount := 0
	for _, file := range files {
		recordedChecksum, wasApplied := applied[file.name]
		if wasApplied {
			if recordedChecksum != file.checksum {
				return fmt.Errorf("migration %s has changed since it was applied (checksum mismatch); write a new migration instead of editing an applied one", file.name)
			}
			continue
		}

		if _, err := db.Conn.Exec(string(file.body)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", file.name, err)
		}
		if _, err := db.Conn.Exec(
			"INSERT INTO schema_migrations (filename, checksum) VALUES (?, ?)", file.name, file.checksum,
		); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", file.name, err)
		}

		log.Printf("[database] migration applied: %s", file.name)
		applyCount++
	}

	if applyCount == 0 {
		log.Println("[database] schema up to date, no migrations to apply")
	}
	return nil
}
