// Package allocator hands out short snippet identifiers that are free in
// both the metadata store and the reservation cache at the moment of
// return.
//
// The guarantee is layered. The reservation cache closes the window
// between two concurrent creations picking the same candidate; the
// metadata store's uniqueness constraint is the durable backstop if the
// cache misses (restart, TTL expiry, multi-process deployments sharing
// one database). An insert conflict downstream is therefore a retryable
// allocation failure, never a correctness bug.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codether/codether/internal/apperror"
	"github.com/codether/codether/internal/hashgen"
	"github.com/codether/codether/internal/repository"
	"github.com/codether/codether/internal/reservation"
)

// maxAttempts is how many same-length candidates are tried before
// escalating to longer identifiers.
const maxAttempts = 20

// Allocator produces unique short identifiers.
type Allocator struct {
	gen    *hashgen.Generator
	cache  reservation.Cache
	store  repository.SnippetStore
	minLen int
	maxLen int
	logger *slog.Logger
}

// New creates an Allocator. minLen/maxLen bound candidate lengths
// (default policy: 6 and 10).
func New(gen *hashgen.Generator, cache reservation.Cache, store repository.SnippetStore, minLen, maxLen int, logger *slog.Logger) *Allocator {
	return &Allocator{
		gen:    gen,
		cache:  cache,
		store:  store,
		minLen: minLen,
		maxLen: maxLen,
		logger: logger,
	}
}

// Allocate returns a short id that no existing snippet holds and no other
// in-flight allocation has reserved, and reserves it.
//
// Up to 20 candidates of the minimum length are tried. If all collide,
// one candidate per length from minLen through maxLen is tried. Only when
// every length is exhausted does the call fail with AllocationExhausted —
// retryable, but worth alerting on: it means the id namespace is under
// real pressure.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		id, free, err := a.candidate(ctx, a.minLen)
		if err != nil {
			return "", err
		}
		if free {
			a.cache.Reserve(id)
			return id, nil
		}
	}

	// Namespace pressure at the minimum length. Escalate one candidate
	// per length so a single call degrades to longer ids instead of
	// spinning forever on a crowded length.
	a.logger.Warn("short id collisions at minimum length, escalating",
		slog.Int("length", a.minLen),
		slog.Int("attempts", maxAttempts),
	)
	for length := a.minLen; length <= a.maxLen; length++ {
		id, free, err := a.candidate(ctx, length)
		if err != nil {
			return "", err
		}
		if free {
			a.cache.Reserve(id)
			return id, nil
		}
	}

	a.logger.Error("short id allocation exhausted",
		slog.Int("min_length", a.minLen),
		slog.Int("max_length", a.maxLen),
	)
	return "", apperror.AllocationExhausted()
}

// Release drops the reservation for an id whose creation flow failed
// before persisting. Optional: the TTL reclaims it anyway.
func (a *Allocator) Release(shortID string) {
	a.cache.Release(shortID)
}

// candidate generates one id of the given length and checks it against
// the reservation cache first (cheap), then the metadata store.
func (a *Allocator) candidate(ctx context.Context, length int) (string, bool, error) {
	id, err := a.gen.Generate(length)
	if err != nil {
		return "", false, fmt.Errorf("allocator: generating candidate: %w", err)
	}
	if a.cache.Reserved(id) {
		return id, false, nil
	}
	_, err = a.store.FindByShortID(ctx, id)
	if err == nil {
		return id, false, nil // an existing snippet holds this id
	}
	if errors.Is(err, apperror.ErrNotFound) {
		return id, true, nil
	}
	return "", false, fmt.Errorf("allocator: checking candidate %s: %w", id, err)
}
