// Package service contains the business logic layer: it orchestrates the
// access guard, id allocator, blob store, and metadata repository behind
// transport-agnostic operations.
//
// THE DEPENDENCY CHAIN:
//
//	main.go creates:  DB → repository, blob store, guard, allocator → SnippetService → handlers/hub
//	At runtime:       handler/hub calls service, service calls the stores
//
// The service accepts primitives and returns domain errors — it has zero
// knowledge of HTTP or WebSockets, so the collaboration hub and the REST
// handlers share exactly the same create/find/update semantics.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/codether/codether/internal/access"
	"github.com/codether/codether/internal/allocator"
	"github.com/codether/codether/internal/apperror"
	"github.com/codether/codether/internal/blob"
	"github.com/codether/codether/internal/language"
	"github.com/codether/codether/internal/model"
	"github.com/codether/codether/internal/repository"
)

// createAttempts bounds how many times a create retries allocation after
// an insert conflict. A conflict here means the reservation cache and the
// store disagreed — rare, but it must not loop unbounded.
const createAttempts = 3

// SnippetService implements the core snippet operations.
type SnippetService struct {
	repo   repository.SnippetStore
	blobs  blob.Store
	guard  *access.Guard
	alloc  *allocator.Allocator
	ttl    time.Duration
	logger *slog.Logger
}

// NewSnippetService wires the service. ttl is the fixed lifetime policy
// applied to every new snippet.
func NewSnippetService(
	repo repository.SnippetStore,
	blobs blob.Store,
	guard *access.Guard,
	alloc *allocator.Allocator,
	ttl time.Duration,
	logger *slog.Logger,
) *SnippetService {
	return &SnippetService{
		repo:   repo,
		blobs:  blobs,
		guard:  guard,
		alloc:  alloc,
		ttl:    ttl,
		logger: logger,
	}
}

// CreateInput carries the caller-supplied fields for a new snippet.
// Empty secrets mean "no secret" — the guard normalizes them to absent.
type CreateInput struct {
	Language   string
	Content    []byte
	ViewSecret string
	EditSecret string
	Author     string
}

// SnippetView is a snippet plus its content, as returned by Find/Update.
type SnippetView struct {
	Snippet model.Snippet
	Content []byte
}

// Create validates, stores the content blob, allocates a unique short id,
// and persists the metadata row. The returned snippet carries no content
// and no secret material.
func (s *SnippetService) Create(ctx context.Context, in CreateInput) (*model.Snippet, error) {
	if err := s.guard.CheckSize(int64(len(in.Content))); err != nil {
		return nil, err
	}

	viewHash, err := s.guard.HashSecret(in.ViewSecret)
	if err != nil {
		return nil, err
	}
	editHash, err := s.guard.HashSecret(in.EditSecret)
	if err != nil {
		return nil, err
	}

	lang := in.Language
	if lang == "" {
		lang = "plaintext"
	}

	blobKey, err := s.blobs.Upload(ctx, language.Extension(lang), in.Content)
	if err != nil {
		s.logger.Error("blob upload failed", slog.String("error", err.Error()))
		return nil, apperror.Storage("blob upload", err)
	}

	now := time.Now()
	snippet := &model.Snippet{
		BlobKey:        blobKey,
		Language:       lang,
		Author:         in.Author,
		ViewSecretHash: viewHash,
		EditSecretHash: editHash,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.ttl),
	}

	// The content is in the blob store already; if no id can be committed
	// the object must not linger.
	discardBlob := func() {
		if err := s.blobs.Delete(ctx, blobKey); err != nil {
			s.logger.Warn("orphaned blob left behind after failed create",
				slog.String("blob_key", blobKey),
				slog.String("error", err.Error()),
			)
		}
	}

	// The reservation is advisory; the store's uniqueness constraint has
	// the final say. On conflict, re-allocate and try the insert again.
	for attempt := 0; attempt < createAttempts; attempt++ {
		shortID, err := s.alloc.Allocate(ctx)
		if err != nil {
			discardBlob()
			return nil, err
		}
		snippet.ShortID = shortID

		err = s.repo.Create(ctx, snippet)
		if err == nil {
			s.logger.Info("snippet created",
				slog.String("short_id", snippet.ShortID),
				slog.String("language", snippet.Language),
				slog.Int("bytes", len(in.Content)),
				slog.Time("expires_at", snippet.ExpiresAt),
			)
			return snippet, nil
		}
		if errors.Is(err, apperror.ErrConflict) {
			s.logger.Warn("short id conflict on insert, re-allocating",
				slog.String("short_id", shortID),
				slog.Int("attempt", attempt+1),
			)
			continue
		}
		s.logger.Error("snippet insert failed",
			slog.String("short_id", shortID),
			slog.String("error", err.Error()),
		)
		discardBlob()
		return nil, apperror.Storage("snippet insert", err)
	}

	discardBlob()
	return nil, apperror.AllocationExhausted()
}

// Find returns a snippet and its content, enforcing the view secret when
// one is set. Expiry is enforced by the janitor, not here: a snippet
// remains retrievable until a sweep has actually deleted it.
func (s *SnippetService) Find(ctx context.Context, shortID, viewSecret string) (*SnippetView, error) {
	snippet, err := s.repo.FindByShortID(ctx, shortID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, apperror.Storage("snippet lookup", err)
	}

	if err := s.guard.VerifyView(snippet, viewSecret); err != nil {
		return nil, err
	}

	content, err := s.blobs.Fetch(ctx, snippet.BlobKey)
	if err != nil {
		s.logger.Error("blob fetch failed",
			slog.String("short_id", shortID),
			slog.String("blob_key", snippet.BlobKey),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Storage("blob fetch", err)
	}

	return &SnippetView{Snippet: *snippet, Content: content}, nil
}

// Update replaces a snippet's content after verifying the edit secret.
// The new blob is written first, then the metadata row is re-pointed, then
// the old blob is deleted best-effort — a crash mid-update leaves an
// orphaned blob, never a row pointing at missing content.
func (s *SnippetService) Update(ctx context.Context, shortID, editSecret string, content []byte) (*SnippetView, error) {
	snippet, err := s.repo.FindByShortID(ctx, shortID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, apperror.Storage("snippet lookup", err)
	}

	if err := s.guard.VerifyEdit(snippet, editSecret); err != nil {
		return nil, err
	}
	if err := s.guard.CheckSize(int64(len(content))); err != nil {
		return nil, err
	}

	oldKey := snippet.BlobKey
	newKey, err := s.blobs.Upload(ctx, language.Extension(snippet.Language), content)
	if err != nil {
		s.logger.Error("blob upload failed",
			slog.String("short_id", shortID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Storage("blob upload", err)
	}

	snippet.BlobKey = newKey
	if err := s.repo.Save(ctx, snippet); err != nil {
		// Roll the orphaned upload back best-effort; the row still points
		// at the old, intact blob.
		if delErr := s.blobs.Delete(ctx, newKey); delErr != nil {
			s.logger.Warn("orphaned blob left behind after failed save",
				slog.String("blob_key", newKey),
				slog.String("error", delErr.Error()),
			)
		}
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, apperror.Storage("snippet save", err)
	}

	if err := s.blobs.Delete(ctx, oldKey); err != nil {
		// Harmless orphan; the janitor's bucket hygiene is not worth
		// failing a committed update over.
		s.logger.Warn("stale blob not deleted",
			slog.String("short_id", shortID),
			slog.String("blob_key", oldKey),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("snippet updated",
		slog.String("short_id", shortID),
		slog.Int("bytes", len(content)),
	)
	return &SnippetView{Snippet: *snippet, Content: content}, nil
}
