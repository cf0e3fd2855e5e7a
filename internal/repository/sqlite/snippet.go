package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/codether/codether/internal/apperror"
	"github.com/codether/codether/internal/model"
	"github.com/codether/codether/internal/repository"
)

// Compile-time check that *DB implements repository.SnippetStore.
var _ repository.SnippetStore = (*DB)(nil)

const snippetColumns = `short_id, blob_key, language, author,
	view_secret_hash, edit_secret_hash, created_at, expires_at`

// Create inserts a new snippet row. A duplicate short_id returns
// apperror.ErrConflict — the uniqueness constraint is the durable backstop
// behind the allocator's advisory reservation, so the caller retries
// allocation instead of crashing.
func (db *DB) Create(ctx context.Context, snippet *model.Snippet) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO snippets (`+snippetColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snippet.ShortID,
		snippet.BlobKey,
		snippet.Language,
		snippet.Author,
		snippet.ViewSecretHash,
		snippet.EditSecretHash,
		snippet.CreatedAt,
		snippet.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict(snippet.ShortID)
		}
		return fmt.Errorf("sqlite: creating snippet %s: %w", snippet.ShortID, err)
	}
	return nil
}

// FindByShortID retrieves a single snippet. Absence is apperror.ErrNotFound,
// distinct from any database failure.
func (db *DB) FindByShortID(ctx context.Context, shortID string) (*model.Snippet, error) {
	var s model.Snippet
	err := db.conn.QueryRowContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets WHERE short_id = ?`,
		shortID,
	).Scan(
		&s.ShortID,
		&s.BlobKey,
		&s.Language,
		&s.Author,
		&s.ViewSecretHash,
		&s.EditSecretHash,
		&s.CreatedAt,
		&s.ExpiresAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound(shortID)
		}
		return nil, fmt.Errorf("sqlite: getting snippet %s: %w", shortID, err)
	}
	return &s, nil
}

// Save updates the mutable columns of an existing snippet. Identity,
// secrets, and timestamps are immutable after creation — only the blob
// reference can move when content is replaced.
func (db *DB) Save(ctx context.Context, snippet *model.Snippet) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE snippets SET blob_key = ? WHERE short_id = ?`,
		snippet.BlobKey,
		snippet.ShortID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating snippet %s: %w", snippet.ShortID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound(snippet.ShortID)
	}
	return nil
}

// Delete removes a snippet row by short id.
func (db *DB) Delete(ctx context.Context, shortID string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM snippets WHERE short_id = ?`,
		shortID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting snippet %s: %w", shortID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound(shortID)
	}
	return nil
}

// FindExpiredBefore returns all snippets whose expiry has passed. The
// janitor deletes each row itself, so this is a plain read, not a
// destructive scan.
func (db *DB) FindExpiredBefore(ctx context.Context, now time.Time) ([]model.Snippet, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets WHERE expires_at < ?`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing expired snippets: %w", err)
	}
	defer rows.Close()

	var expired []model.Snippet
	for rows.Next() {
		var s model.Snippet
		if err := rows.Scan(
			&s.ShortID,
			&s.BlobKey,
			&s.Language,
			&s.Author,
			&s.ViewSecretHash,
			&s.EditSecretHash,
			&s.CreatedAt,
			&s.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning expired snippet row: %w", err)
		}
		expired = append(expired, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating expired snippets: %w", err)
	}
	return expired, nil
}

// isUniqueViolation detects a primary-key collision on insert. The
// modernc driver surfaces SQLITE_CONSTRAINT as a plain error string.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
