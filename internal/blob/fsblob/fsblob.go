// Package fsblob stores snippet blobs on the local filesystem.
//
// # Layout
//
// Objects live under root/blobs in a two-level directory shard derived
// from the SHA-256 of the key, e.g.
//
//	root/blobs/a3/f2/a3f29d4e...  (one file per object)
//
// Sharding keeps any single directory from accumulating tens of thousands
// of entries, which several filesystems handle badly.
//
// # Atomicity
//
// Writes go to root/.tmp first and are moved into place with os.Rename,
// which is atomic on POSIX filesystems within one mount. A crashed upload
// leaves at worst an orphaned temp file, never a half-written object.
//
// Blobs are gzip-compressed on disk: snippet content is text and routinely
// compresses 5-10x.
package fsblob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/codether/codether/internal/blob"
)

const (
	tempDirName = ".tmp"
	blobDirName = "blobs"
)

// Store is a filesystem-backed blob.Store.
type Store struct {
	root     string
	fileMode os.FileMode
	dirMode  os.FileMode
}

var _ blob.Store = (*Store)(nil)

// New creates the storage directories under root if needed.
func New(root string) (*Store, error) {
	root = filepath.Clean(root)
	s := &Store{root: root, fileMode: 0o644, dirMode: 0o755}

	if err := os.MkdirAll(filepath.Join(root, blobDirName), s.dirMode); err != nil {
		return nil, fmt.Errorf("fsblob: creating blobs directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, tempDirName), s.dirMode); err != nil {
		return nil, fmt.Errorf("fsblob: creating temp directory: %w", err)
	}
	return s, nil
}

// Upload stores data under a fresh key and returns the key.
func (s *Store) Upload(ctx context.Context, extHint string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := blob.NewKey(extHint)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return "", fmt.Errorf("fsblob: compressing %s: %w", key, err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("fsblob: compressing %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, tempDirName), "upload-*")
	if err != nil {
		return "", fmt.Errorf("fsblob: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("fsblob: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("fsblob: closing temp file: %w", err)
	}

	dest := s.objectPath(key)
	if err := os.MkdirAll(filepath.Dir(dest), s.dirMode); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("fsblob: creating shard directory: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("fsblob: moving %s into place: %w", key, err)
	}
	if err := os.Chmod(dest, s.fileMode); err != nil {
		return "", fmt.Errorf("fsblob: setting mode on %s: %w", key, err)
	}

	return key, nil
}

// Fetch returns the bytes stored under key.
func (s *Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("fsblob: fetch %s: %w", key, blob.ErrNotFound)
		}
		return nil, fmt.Errorf("fsblob: opening %s: %w", key, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("fsblob: reading %s: %w", key, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("fsblob: decompressing %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the object stored under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(s.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("fsblob: delete %s: %w", key, blob.ErrNotFound)
		}
		return fmt.Errorf("fsblob: deleting %s: %w", key, err)
	}
	return nil
}

// objectPath shards by the SHA-256 of the key: hashing first also makes
// the on-disk path safe no matter what the key contains.
func (s *Store) objectPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	h := hex.EncodeToString(sum[:])
	return filepath.Join(s.root, blobDirName, h[0:2], h[2:4], h)
}
