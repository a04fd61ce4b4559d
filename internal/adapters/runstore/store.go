// Package runstore persists run snapshots as per-run JSON records.
package runstore

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/zerr"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/core/ports"
)

var _ ports.RunStore = (*Store)(nil)

// Store implements ports.RunStore. Each run is stored as a run.json record
// inside its own workspace directory, so the record lives and dies with the
// run's working files.
type Store struct {
	root string
	mu   sync.RWMutex
}

// NewStore creates a RunStore keeping records under the given workspace root.
func NewStore(root string) *Store {
	return &Store{root: filepath.Clean(root)}
}

// Save writes the snapshot, replacing any previous one for the same ID.
func (s *Store) Save(run domain.BuildRun) error {
	if run.ID == "" {
		return zerr.With(domain.ErrStoreWriteFailed, "reason", "empty run id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return zerr.Wrap(err, domain.ErrStoreMarshalFailed.Error())
	}

	dir := domain.RunWorkspacePath(s.root, run.ID)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.Wrap(err, domain.ErrStoreCreateFailed.Error())
	}

	//nolint:gosec // Path is derived from the run ID under a trusted root
	if err := os.WriteFile(domain.RunRecordPath(s.root, run.ID), data, domain.FilePerm); err != nil {
		return zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}

	return nil
}

// Get retrieves a run snapshot. Returns domain.ErrRunNotFound if the
// identifier is unknown.
func (s *Store) Get(id string) (*domain.BuildRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == "" {
		return nil, zerr.With(domain.ErrRunNotFound, "run_id", id)
	}

	//nolint:gosec // Path is derived from the run ID under a trusted root
	data, err := os.ReadFile(domain.RunRecordPath(s.root, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, zerr.With(domain.ErrRunNotFound, "run_id", id)
		}
		return nil, zerr.Wrap(err, domain.ErrStoreReadFailed.Error())
	}

	var run domain.BuildRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreUnmarshalFailed.Error())
	}
	return &run, nil
}

// List returns all known run snapshots, newest first. Damaged or partially
// written records are skipped.
func (s *Store) List() ([]domain.BuildRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(domain.DefaultRunsPath(s.root))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.Wrap(err, domain.ErrStoreReadFailed.Error())
	}

	runs := make([]domain.BuildRun, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		//nolint:gosec // Paths come from listing a trusted directory
		data, err := os.ReadFile(domain.RunRecordPath(s.root, entry.Name()))
		if err != nil {
			continue
		}
		var run domain.BuildRun
		if err := json.Unmarshal(data, &run); err != nil {
			continue
		}
		runs = append(runs, run)
	}

	slices.SortFunc(runs, func(a, b domain.BuildRun) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return runs, nil
}
