// Package dispatch routes stage jobs to executors, either in-process or on a
// remote forge agent.
package dispatch

import (
	"context"
	"time"

	"go.trai.ch/zerr"
	"golang.org/x/sync/semaphore"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/core/ports"
)

var _ ports.Dispatcher = (*LocalDispatcher)(nil)

// LocalDispatcher executes stage jobs in-process. A weighted semaphore bounds
// how many stages run concurrently across all runs.
type LocalDispatcher struct {
	executors map[domain.Stage]ports.StageExecutor
	slots     *semaphore.Weighted
}

// NewLocalDispatcher creates a dispatcher over the given executors with at
// most parallelism stages executing at once.
func NewLocalDispatcher(executors []ports.StageExecutor, parallelism int) *LocalDispatcher {
	if parallelism < 1 {
		parallelism = 1
	}

	byStage := make(map[domain.Stage]ports.StageExecutor, len(executors))
	for _, exec := range executors {
		byStage[exec.Stage()] = exec
	}

	return &LocalDispatcher{
		executors: byStage,
		slots:     semaphore.NewWeighted(int64(parallelism)),
	}
}

// Dispatch executes the job with the executor registered for its stage.
func (d *LocalDispatcher) Dispatch(ctx context.Context, job domain.StageJob) (domain.StageResult, error) {
	exec, ok := d.executors[job.Stage]
	if !ok {
		err := zerr.With(domain.ErrUnknownStage, "stage", string(job.Stage))
		return failedResult(job, err), err
	}

	if err := d.slots.Acquire(ctx, 1); err != nil {
		acqErr := zerr.With(zerr.Wrap(err, "stage dispatch aborted"), "stage", string(job.Stage))
		return failedResult(job, acqErr), acqErr
	}
	defer d.slots.Release(1)

	return exec.Execute(ctx, job)
}

// failedResult builds the terminal result of a job that failed before its
// executor ran.
func failedResult(job domain.StageJob, err error) domain.StageResult {
	now := time.Now().UTC()
	return domain.StageResult{
		Stage:     job.Stage,
		Status:    domain.StageStatusFailed,
		Error:     err.Error(),
		StartedAt: now,
		EndedAt:   now,
	}
}
