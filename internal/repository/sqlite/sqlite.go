// Package sqlite implements the snippet repository using SQLite as the
// storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means a C compiler on every build host
// and painful cross-compilation. modernc.org/sqlite is a pure Go
// translation of the SQLite sources — works everywhere Go works.
//
// Metadata rows are tiny by design: content lives in the blob store, so
// the expiry scan the janitor runs every interval never drags megabytes of
// snippet text through the page cache.
package sqlite

import (
	"database/sql"
	"fmt"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements repository.SnippetStore.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" in tests for an isolated throwaway database.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Fail fast on a bad path or permissions rather than on first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets reads proceed while a write is in flight — without it,
	// every janitor sweep would stall concurrent lookups.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return db, nil
}

// Close closes the connection pool. Always defer this next to New.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	// short_id PRIMARY KEY doubles as the uniqueness backstop behind the
	// allocator's reservation cache. The expires_at index is what makes
	// FindExpiredBefore a range scan instead of a full table walk.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS snippets (
			short_id         TEXT PRIMARY KEY,
			blob_key         TEXT NOT NULL,
			language         TEXT NOT NULL DEFAULT 'plaintext',
			author           TEXT NOT NULL DEFAULT '',
			view_secret_hash TEXT NOT NULL DEFAULT '',
			edit_secret_hash TEXT NOT NULL DEFAULT '',
			created_at       DATETIME NOT NULL,
			expires_at       DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snippets_expires_at ON snippets(expires_at);
	`)
	if err != nil {
		return fmt.Errorf("creating snippets table: %w", err)
	}
	return nil
}
