// Package store persists detection statistics, the entry selection and the
// last good catalog snapshot in SQLite.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS detections (
	id          TEXT PRIMARY KEY,
	page_id     TEXT NOT NULL DEFAULT '',
	entry_id    TEXT NOT NULL,
	entry_name  TEXT NOT NULL DEFAULT '',
	score       REAL NOT NULL DEFAULT 0,
	keywords    TEXT NOT NULL DEFAULT '[]',
	origin      TEXT NOT NULL DEFAULT 'page',
	detected_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_detections_at ON detections(detected_at);
CREATE INDEX IF NOT EXISTS idx_detections_entry ON detections(entry_id);

CREATE TABLE IF NOT EXISTS usage (
	entry_id   TEXT PRIMARY KEY,
	entry_name TEXT NOT NULL DEFAULT '',
	count      INTEGER NOT NULL DEFAULT 0,
	last_seen  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS catalog_cache (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	checksum TEXT NOT NULL,
	entries  TEXT NOT NULL,
	saved_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS selected_entries (
	entry_id TEXT PRIMARY KEY,
	position INTEGER NOT NULL
);
`

// DB wraps a sql.DB with stats and catalog-cache operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Ping reports whether the database is reachable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
