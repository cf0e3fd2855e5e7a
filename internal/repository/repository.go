package repository

import (
	"context"
	"time"

	"github.com/codether/codether/internal/model"
)

// SnippetStore is the persistent metadata repository, keyed by short id.
//
// Uniqueness of the short id is enforced here as a hard storage constraint,
// independent of the allocator's reservation cache — Create returns
// apperror.ErrConflict on a duplicate, and callers treat that as a
// retryable allocation failure.
type SnippetStore interface {
	Create(ctx context.Context, snippet *model.Snippet) error
	FindByShortID(ctx context.Context, shortID string) (*model.Snippet, error)
	Save(ctx context.Context, snippet *model.Snippet) error
	Delete(ctx context.Context, shortID string) error
	// FindExpiredBefore returns every snippet whose expiry is before now,
	// in no particular order. The janitor processes the whole batch in
	// one sweep.
	FindExpiredBefore(ctx context.Context, now time.Time) ([]model.Snippet, error)
}
