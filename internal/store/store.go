// Package store keeps collections and their items in SQLite.
//
// Items are stored as a JSON blob of schema fields next to the built-in
// recurrence/time columns every collection shares.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const currentVersion = 1

// ErrNotFound is returned when a collection or item does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewMemory creates an in-memory store for testing.
func NewMemory() (*Store, error) {
	return New(":memory:")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version >= currentVersion {
		return nil
	}
	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}
	_, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	return err
}

func (s *Store) migrateV1() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS collections (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		date_field  TEXT NOT NULL DEFAULT '',
		title_field TEXT NOT NULL DEFAULT 'title',
		created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	);

	CREATE TABLE IF NOT EXISTS items (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		collection_id       TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
		fields              TEXT NOT NULL DEFAULT '{}',
		recurrence_rule     TEXT NOT NULL DEFAULT 'NONE',
		recurrence_end_date TEXT,
		recurrence_days     TEXT,
		end_date_time       TEXT,
		is_all_day          INTEGER NOT NULL DEFAULT 0,
		feed_id             TEXT,
		created_at          TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	);

	CREATE INDEX IF NOT EXISTS idx_items_collection ON items(collection_id);
	CREATE INDEX IF NOT EXISTS idx_items_feed       ON items(collection_id, feed_id);
	`
	_, err := s.db.Exec(ddl)
	return err
}
