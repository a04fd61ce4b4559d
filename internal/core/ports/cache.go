package ports

import "go.trai.ch/forge/internal/core/domain"

// CacheStore maps stage input fingerprints to previously produced output
// references. It is shared by every stage across all runs and is
// fingerprint-agnostic: callers compute hashes, the store never does.
//
//go:generate go run go.uber.org/mock/mockgen -source=cache.go -destination=mocks/mock_cache.go -package=mocks
type CacheStore interface {
	// Lookup retrieves the entry for a fingerprint.
	// Returns nil, nil if not found; a miss is never an error.
	Lookup(fingerprint domain.Fingerprint) (*domain.CacheEntry, error)

	// Store records an output reference for a fingerprint. Storing the same
	// fingerprint with the same reference again is a no-op; storing a
	// different reference for an existing fingerprint returns
	// domain.ErrCacheConflict.
	Store(fingerprint domain.Fingerprint, outputRef string) error
}
