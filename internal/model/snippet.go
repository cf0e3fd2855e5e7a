// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other
// languages, but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Snippet is the persistent metadata for one shared snippet. The content
// itself lives in the blob store under BlobKey; this row is deliberately
// small so lookups and expiry scans never touch multi-megabyte payloads.
//
// The `json:"-"` tags matter here: secret hashes and the blob key are
// internal and must never appear in any read response, no matter which
// handler serializes the struct.
type Snippet struct {
	ShortID        string    `json:"shortId"`
	BlobKey        string    `json:"-"`
	Language       string    `json:"language"`
	Author         string    `json:"author,omitempty"`
	ViewSecretHash string    `json:"-"`
	EditSecretHash string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// HasViewSecret reports whether reads require a secret.
// An absent hash means the snippet is publicly readable.
func (s *Snippet) HasViewSecret() bool {
	return s.ViewSecretHash != ""
}

// HasEditSecret reports whether the snippet can ever be updated.
// An absent hash means updates always fail.
func (s *Snippet) HasEditSecret() bool {
	return s.EditSecretHash != ""
}

// Expired reports whether the snippet is past its expiry at the given
// instant. Only the janitor acts on this; reads serve the snippet until
// a sweep has actually deleted it.
func (s *Snippet) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
