// Package blob defines the content storage tier: raw snippet bytes
// addressed by an opaque, store-generated key.
//
// The key is deliberately unrelated to the snippet's public short id —
// knowing one must never let a caller derive the other. Backends live in
// the fsblob and s3blob subpackages.
package blob

import (
	"context"
	"errors"

	"github.com/rs/xid"
)

// ErrNotFound is returned by Fetch and Delete when no object exists for
// the key. The janitor tolerates it on delete; every other caller treats
// it as a storage failure.
var ErrNotFound = errors.New("blob: object not found")

// Store is the blob storage contract shared by all backends.
//
// Upload generates the key itself and returns it; callers never choose
// keys. extHint selects the file extension (from the snippet's language)
// and is the only caller-visible part of the key.
type Store interface {
	Upload(ctx context.Context, extHint string, data []byte) (string, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// NewKey builds a fresh object key: a globally-unique random token plus
// the hinted extension. xid tokens are 20 chars, URL-safe and collision
// free across machines and processes.
func NewKey(extHint string) string {
	if extHint == "" {
		extHint = "txt"
	}
	return xid.New().String() + "." + extHint
}
