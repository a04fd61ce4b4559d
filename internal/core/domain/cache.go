package domain

import "time"

// Fingerprint is the deterministic hash of a stage's effective inputs, used
// as the cache key. Each stage computes its own fingerprint; the cache store
// never hashes anything itself.
type Fingerprint string

// CacheEntry maps a stage input fingerprint to a previously produced output
// reference. Entries are shared across runs and immutable once written: a
// lookup never mutates an entry, and a store for an existing fingerprint
// must carry the same reference.
type CacheEntry struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	OutputRef   string      `json:"output_ref"`
	CreatedAt   time.Time   `json:"created_at"`
}
