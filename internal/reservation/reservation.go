// Package reservation implements the short-lived cache that marks snippet
// ids as provisionally claimed between candidate generation and persistent
// commit.
//
// The cache is advisory only. The sqlite UNIQUE constraint on short_id is
// the durable uniqueness guarantee; the reservation exists to close the
// race window cheaply, without a round trip to the metadata store for every
// in-flight creation. Entries expire unconditionally by TTL so a creation
// flow that crashes after reserving never blacklists an id permanently.
package reservation

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache marks short identifiers as provisionally claimed during creation.
type Cache interface {
	// Reserve claims the id for the cache's TTL.
	Reserve(shortID string)
	// Reserved reports whether the id is currently claimed.
	Reserved(shortID string) bool
	// Release drops a claim early, e.g. after the creation flow fails
	// before persisting anything.
	Release(shortID string)
}

const defaultCapacity = 16384

// LRUCache is an in-process Cache on top of an expiring LRU. Capacity
// bounds memory if creations spike faster than the TTL reclaims entries;
// evicting the oldest reservation early only weakens an advisory check.
type LRUCache struct {
	lru *expirable.LRU[string, struct{}]
}

var _ Cache = (*LRUCache)(nil)

// NewLRU creates a cache whose entries expire after ttl.
func NewLRU(ttl time.Duration) *LRUCache {
	return &LRUCache{
		lru: expirable.NewLRU[string, struct{}](defaultCapacity, nil, ttl),
	}
}

func (c *LRUCache) Reserve(shortID string) {
	c.lru.Add(shortID, struct{}{})
}

func (c *LRUCache) Reserved(shortID string) bool {
	// Get, not Contains: Get checks per-entry expiry, Contains may report
	// stale entries between cleanup passes.
	_, ok := c.lru.Get(shortID)
	return ok
}

func (c *LRUCache) Release(shortID string) {
	c.lru.Remove(shortID)
}
