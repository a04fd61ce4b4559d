package ports

import (
	"context"

	"go.trai.ch/forge/internal/core/domain"
)

// StageExecutor performs the side-effecting work of one pipeline stage.
// Every executor follows the same discipline: compute a fingerprint over the
// stage's effective inputs, consult the cache store, and only on a miss
// perform the external work and store the new output reference.
//
//go:generate go run go.uber.org/mock/mockgen -source=executor.go -destination=mocks/mock_executor.go -package=mocks
type StageExecutor interface {
	// Stage identifies the pipeline stage this executor implements.
	Stage() domain.Stage

	// Execute runs the stage for the given job. On a cache hit it returns a
	// Cached result without side effects; otherwise it performs the work
	// and returns a Succeeded result. On failure the returned result has a
	// Failed status and the error carries the cause.
	Execute(ctx context.Context, job domain.StageJob) (domain.StageResult, error)
}
