// Package cache implements the fingerprint cache using a flat JSON index.
package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/zerr"
)

// Store implements ports.CacheStore using a flat JSON index file.
type Store struct {
	path  string
	mu    sync.RWMutex
	index map[domain.Fingerprint]domain.CacheEntry
}

// NewStore creates a new CacheStore backed by the index file at the given path.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:  filepath.Clean(path),
		index: make(map[domain.Fingerprint]domain.CacheEntry),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	//nolint:gosec // Path is cleaned and provided by trusted caller
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return zerr.Wrap(err, domain.ErrStoreReadFailed.Error())
	}

	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, &s.index); err != nil {
		return zerr.Wrap(err, domain.ErrStoreUnmarshalFailed.Error())
	}

	return nil
}

// persistLocked writes the index to disk. Callers must hold the write lock.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return zerr.Wrap(err, domain.ErrStoreMarshalFailed.Error())
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.Wrap(err, domain.ErrStoreCreateFailed.Error())
	}

	//nolint:gosec // Path is cleaned and provided by trusted caller
	if err := os.WriteFile(s.path, data, domain.FilePerm); err != nil {
		return zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}

	return nil
}

// Lookup retrieves the cache entry for a fingerprint. A miss is reported as
// nil, nil, never as an error.
func (s *Store) Lookup(fingerprint domain.Fingerprint) (*domain.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.index[fingerprint]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Store records the output reference for a fingerprint. Entries are
// immutable: recording the same reference again is a no-op, recording a
// different reference for an existing fingerprint fails with
// domain.ErrCacheConflict. Check and insert happen in one critical section
// so concurrent runs cannot interleave conflicting writes.
func (s *Store) Store(fingerprint domain.Fingerprint, outputRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.index[fingerprint]; ok {
		if existing.OutputRef == outputRef {
			return nil
		}
		err := zerr.With(domain.ErrCacheConflict, "fingerprint", string(fingerprint))
		err = zerr.With(err, "existing_ref", existing.OutputRef)
		err = zerr.With(err, "new_ref", outputRef)
		return err
	}

	s.index[fingerprint] = domain.CacheEntry{
		Fingerprint: fingerprint,
		OutputRef:   outputRef,
		CreatedAt:   time.Now().UTC(),
	}

	return s.persistLocked()
}
