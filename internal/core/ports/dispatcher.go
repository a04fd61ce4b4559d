// Package ports defines the core interfaces for the application.
package ports

import (
	"context"

	"go.trai.ch/forge/internal/core/domain"
)

// Dispatcher hands a stage job to a worker for execution and returns its
// terminal result. Implementations may execute in-process or on a remote
// agent; orchestrator logic is identical either way.
//
//go:generate go run go.uber.org/mock/mockgen -source=dispatcher.go -destination=mocks/mock_dispatcher.go -package=mocks
type Dispatcher interface {
	// Dispatch executes the job and blocks until the stage reaches a
	// terminal state. The returned error is the stage's failure cause; a
	// result with a Failed status accompanies it.
	Dispatch(ctx context.Context, job domain.StageJob) (domain.StageResult, error)
}
