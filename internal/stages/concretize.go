package stages

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.trai.ch/zerr"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/core/ports"
)

var _ ports.StageExecutor = (*ConcretizeExecutor)(nil)

// ConcretizeOptions configure the package-manager resolver invocation.
type ConcretizeOptions struct {
	// Command is the resolver executable.
	Command string

	// Timeout bounds a single resolver invocation.
	Timeout time.Duration

	// Retries is the number of additional attempts after a process-level
	// invocation failure.
	Retries int
}

// ConcretizeExecutor resolves an environment manifest into a fully pinned
// environment. It writes the manifest into the run workspace, invokes the
// resolver on it and records the produced lock file as the stage output.
type ConcretizeExecutor struct {
	runner ports.ToolRunner
	cache  ports.CacheStore
	logger ports.Logger
	opts   ConcretizeOptions
}

// NewConcretizeExecutor creates a new ConcretizeExecutor.
func NewConcretizeExecutor(runner ports.ToolRunner, cache ports.CacheStore, logger ports.Logger, opts ConcretizeOptions) *ConcretizeExecutor {
	return &ConcretizeExecutor{runner: runner, cache: cache, logger: logger, opts: opts}
}

// Stage identifies the pipeline stage this executor implements.
func (e *ConcretizeExecutor) Stage() domain.Stage {
	return domain.StageConcretize
}

// Execute runs the concretize stage for the given job.
func (e *ConcretizeExecutor) Execute(ctx context.Context, job domain.StageJob) (domain.StageResult, error) {
	started := time.Now().UTC()

	rendered, err := job.Manifest.Render()
	if err != nil {
		return failedResult(job, "", started, err, 0), err
	}

	d := newDigest(domain.StageConcretize)
	d.writeBytes(rendered)
	d.writeString(e.opts.Command)
	fp := d.Sum()

	ref, state, err := consultFile(e.cache, fp)
	if err != nil {
		return failedResult(job, fp, started, err, 0), err
	}
	if state == cacheHit {
		e.logger.Info(fmt.Sprintf("serving concretized environment from cache: %s", ref))
		return cachedResult(job, fp, started, ref), nil
	}

	if err := ensureWorkspace(job.Workspace); err != nil {
		return failedResult(job, fp, started, err, 0), err
	}

	manifestPath := filepath.Join(job.Workspace, domain.ManifestFileName)
	if err := os.WriteFile(manifestPath, rendered, domain.FilePerm); err != nil {
		wErr := zerr.With(zerr.Wrap(err, "failed to write manifest"), "path", manifestPath)
		return failedResult(job, fp, started, wErr, 0), wErr
	}

	e.logger.Info(fmt.Sprintf("concretizing environment %s", job.Manifest.Name()))

	inv := domain.ToolInvocation{
		Tool:    e.opts.Command,
		Args:    []string{"--env", ".", "concretize"},
		Dir:     job.Workspace,
		Timeout: e.opts.Timeout,
	}
	res, attempts, runErr := runWithRetry(ctx, e.runner, e.logger, inv, e.opts.Retries)
	if runErr != nil {
		stageErr := runErr
		if errors.Is(runErr, domain.ErrToolExited) {
			stageErr = zerr.With(
				zerr.Wrap(runErr, domain.ErrConcretization.Error()),
				"stderr", strings.TrimSpace(string(res.Stderr)),
			)
		}
		return failedResult(job, fp, started, stageErr, attempts), stageErr
	}

	lockPath := filepath.Join(job.Workspace, domain.LockfileName)
	if _, err := os.Stat(lockPath); err != nil {
		stageErr := zerr.With(domain.ErrConcretization, "cause", "resolver produced no lock file")
		stageErr = zerr.With(stageErr, "path", lockPath)
		return failedResult(job, fp, started, stageErr, attempts), stageErr
	}

	if state != cacheStale {
		if err := e.cache.Store(fp, lockPath); err != nil {
			return failedResult(job, fp, started, err, attempts), err
		}
	}

	e.logger.Info(fmt.Sprintf("environment concretized in %s", res.Duration.Round(time.Millisecond)))
	return succeededResult(job, fp, started, lockPath, attempts), nil
}
