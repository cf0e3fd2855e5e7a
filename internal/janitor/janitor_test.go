package janitor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codether/codether/internal/apperror"
	"github.com/codether/codether/internal/blob"
	"github.com/codether/codether/internal/model"
)

type fakeRepo struct {
	mu       sync.Mutex
	snippets map[string]model.Snippet
	listErr  error
	delErr   map[string]error

	// When set, the first FindExpiredBefore signals listEntered and then
	// blocks until listRelease closes, so a test can hold a sweep open.
	listEntered chan struct{}
	listRelease chan struct{}
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		snippets: make(map[string]model.Snippet),
		delErr:   make(map[string]error),
	}
}

func (r *fakeRepo) add(shortID, blobKey string, expiresAt time.Time) {
	r.snippets[shortID] = model.Snippet{ShortID: shortID, BlobKey: blobKey, ExpiresAt: expiresAt}
}

func (r *fakeRepo) Create(_ context.Context, s *model.Snippet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snippets[s.ShortID] = *s
	return nil
}

func (r *fakeRepo) FindByShortID(_ context.Context, shortID string) (*model.Snippet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snippets[shortID]
	if !ok {
		return nil, apperror.NotFound(shortID)
	}
	return &s, nil
}

func (r *fakeRepo) Save(_ context.Context, s *model.Snippet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snippets[s.ShortID] = *s
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, shortID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.delErr[shortID]; err != nil {
		return err
	}
	delete(r.snippets, shortID)
	return nil
}

func (r *fakeRepo) FindExpiredBefore(_ context.Context, now time.Time) ([]model.Snippet, error) {
	if r.listEntered != nil {
		close(r.listEntered)
		r.listEntered = nil
		<-r.listRelease
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []model.Snippet
	for _, s := range r.snippets {
		if s.ExpiresAt.Before(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeBlobStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	failing map[string]bool
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{
		blobs:   make(map[string][]byte),
		failing: make(map[string]bool),
	}
}

func (b *fakeBlobStore) Upload(_ context.Context, extHint string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := blob.NewKey(extHint)
	b.blobs[key] = data
	return key, nil
}

func (b *fakeBlobStore) Fetch(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return data, nil
}

func (b *fakeBlobStore) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing[key] {
		return errors.New("backend unavailable")
	}
	if _, ok := b.blobs[key]; !ok {
		return blob.ErrNotFound
	}
	delete(b.blobs, key)
	return nil
}

func newTestJanitor(repo *fakeRepo, blobs *fakeBlobStore) *Janitor {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(repo, blobs, time.Hour, logger)
}

func TestSweepRemovesExpired(t *testing.T) {
	repo := newFakeRepo()
	blobs := newFakeBlobStore()
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	k1, _ := blobs.Upload(ctx, "go", []byte("old"))
	k2, _ := blobs.Upload(ctx, "go", []byte("older"))
	k3, _ := blobs.Upload(ctx, "go", []byte("live"))
	repo.add("dead01", k1, past)
	repo.add("dead02", k2, past)
	repo.add("live01", k3, future)

	removed, err := newTestJanitor(repo, blobs).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = repo.FindByShortID(ctx, "dead01")
	assert.Error(t, err)
	_, err = repo.FindByShortID(ctx, "dead02")
	assert.Error(t, err)
	_, err = repo.FindByShortID(ctx, "live01")
	assert.NoError(t, err)

	_, err = blobs.Fetch(ctx, k1)
	assert.ErrorIs(t, err, blob.ErrNotFound)
	_, err = blobs.Fetch(ctx, k3)
	assert.NoError(t, err)
}

func TestSweepEmptyBatch(t *testing.T) {
	repo := newFakeRepo()
	blobs := newFakeBlobStore()

	removed, err := newTestJanitor(repo, blobs).Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSweepToleratesMissingBlob(t *testing.T) {
	// A blob deleted by an earlier partial sweep must not strand the row.
	repo := newFakeRepo()
	blobs := newFakeBlobStore()
	ctx := context.Background()

	repo.add("dead01", "ghost.txt", time.Now().Add(-time.Minute))

	removed, err := newTestJanitor(repo, blobs).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.FindByShortID(ctx, "dead01")
	assert.Error(t, err)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	repo := newFakeRepo()
	blobs := newFakeBlobStore()
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	k1, _ := blobs.Upload(ctx, "go", []byte("a"))
	k2, _ := blobs.Upload(ctx, "go", []byte("b"))
	k3, _ := blobs.Upload(ctx, "go", []byte("c"))
	repo.add("dead01", k1, past)
	repo.add("dead02", k2, past)
	repo.add("dead03", k3, past)

	blobs.failing[k2] = true                     // blob delete fails
	repo.delErr["dead03"] = errors.New("locked") // row delete fails

	removed, err := newTestJanitor(repo, blobs).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// The healthy snippet is gone, the failed ones survive for the next run.
	_, err = repo.FindByShortID(ctx, "dead01")
	assert.Error(t, err)
	_, err = repo.FindByShortID(ctx, "dead02")
	assert.NoError(t, err)
	_, err = repo.FindByShortID(ctx, "dead03")
	assert.NoError(t, err)
}

func TestSweepSingleFlight(t *testing.T) {
	// Two sweeps must never run concurrently: a sweep starting while
	// another is in flight returns immediately without touching anything.
	repo := newFakeRepo()
	blobs := newFakeBlobStore()
	ctx := context.Background()

	k, _ := blobs.Upload(ctx, "go", []byte("old"))
	repo.add("dead01", k, time.Now().Add(-time.Minute))

	entered := make(chan struct{})
	repo.listEntered = entered
	repo.listRelease = make(chan struct{})

	j := newTestJanitor(repo, blobs)

	firstDone := make(chan int, 1)
	go func() {
		n, err := j.Sweep(ctx)
		assert.NoError(t, err)
		firstDone <- n
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("first sweep never reached the repository")
	}

	// The first sweep is parked inside the repository scan. An overlapping
	// sweep must bail out with nothing removed.
	n, err := j.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = repo.FindByShortID(ctx, "dead01")
	assert.NoError(t, err, "overlapping sweep must not delete anything")

	close(repo.listRelease)
	select {
	case n := <-firstDone:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("first sweep never finished")
	}
}

func TestSweepListFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.listErr = errors.New("db gone")

	_, err := newTestJanitor(repo, newFakeBlobStore()).Sweep(context.Background())
	assert.Error(t, err)
}

func TestStartStopsOnCancel(t *testing.T) {
	repo := newFakeRepo()
	blobs := newFakeBlobStore()
	j := New(repo, blobs, 10*time.Millisecond,
		slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop after cancellation")
	}
}
