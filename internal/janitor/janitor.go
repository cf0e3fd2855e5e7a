// Package janitor removes snippets whose expiry has passed. Expiration is
// enforced lazily: a snippet past its expires_at stays readable until the
// next sweep physically deletes it.
package janitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/codether/codether/internal/blob"
	"github.com/codether/codether/internal/repository"
)

// Janitor periodically sweeps expired snippets, deleting the blob before
// the metadata row so a crash between the two can never leave a row that
// points at nothing readable as live.
type Janitor struct {
	repo     repository.SnippetStore
	blobs    blob.Store
	interval time.Duration
	logger   *slog.Logger

	// sweeping guarantees a single sweep runs at a time even when a manual
	// Sweep call overlaps the ticker.
	sweeping sync.Mutex
}

func New(repo repository.SnippetStore, blobs blob.Store, interval time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		repo:     repo,
		blobs:    blobs,
		interval: interval,
		logger:   logger,
	}
}

// Start runs the sweep loop until ctx is cancelled. One sweep runs
// immediately so a restart does not postpone cleanup by a full interval.
func (j *Janitor) Start(ctx context.Context) {
	j.logger.Info("janitor started", "interval", j.interval)

	if _, err := j.Sweep(ctx); err != nil {
		j.logger.Error("initial sweep failed", "error", err)
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("janitor stopped")
			return
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil {
				j.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// Sweep deletes every snippet expired as of now and returns how many were
// removed. A failure on one snippet is logged and skipped; the rest of the
// batch still gets cleaned. If another sweep is already in flight, Sweep
// returns immediately.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	if !j.sweeping.TryLock() {
		return 0, nil
	}
	defer j.sweeping.Unlock()

	expired, err := j.repo.FindExpiredBefore(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, s := range expired {
		if err := j.remove(ctx, s.ShortID, s.BlobKey); err != nil {
			j.logger.Error("failed to remove expired snippet",
				"short_id", s.ShortID, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		j.logger.Info("swept expired snippets", "removed", removed)
	}
	return removed, nil
}

// remove deletes blob first, row second. A blob already gone (for example
// from a previous partial sweep) is fine; the row delete still proceeds.
func (j *Janitor) remove(ctx context.Context, shortID, blobKey string) error {
	if err := j.blobs.Delete(ctx, blobKey); err != nil && !errors.Is(err, blob.ErrNotFound) {
		return err
	}
	return j.repo.Delete(ctx, shortID)
}
