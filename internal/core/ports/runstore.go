package ports

import "go.trai.ch/forge/internal/core/domain"

// RunStore persists BuildRun snapshots so run status and stage results stay
// queryable by identifier across process restarts.
//
//go:generate go run go.uber.org/mock/mockgen -source=runstore.go -destination=mocks/mock_runstore.go -package=mocks
type RunStore interface {
	// Save writes the snapshot, replacing any previous one for the same ID.
	Save(run domain.BuildRun) error

	// Get retrieves a run snapshot.
	// Returns domain.ErrRunNotFound if the identifier is unknown.
	Get(id string) (*domain.BuildRun, error)

	// List returns all known run snapshots, newest first.
	List() ([]domain.BuildRun, error)
}
