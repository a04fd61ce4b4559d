// Package stages implements the executors of the pipeline stages. Every
// executor follows the same discipline: compute a fingerprint over the
// stage's effective inputs, consult the cache store, and only on a miss
// perform the stage's side-effecting work and record the new output
// reference.
package stages

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.trai.ch/zerr"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/core/ports"
)

// cacheState is the disposition of a cache consult.
type cacheState int

const (
	// cacheMiss means no entry exists; the stage performs its work and
	// stores the new output reference.
	cacheMiss cacheState = iota
	// cacheHit means a live entry exists; the stage is skipped.
	cacheHit
	// cacheStale means an entry exists but its output file is gone. The
	// stage redoes its work without re-storing: entries are immutable, and
	// storing the rebuilt reference would conflict with the dead one.
	cacheStale
)

// hit returns the cached output reference for a fingerprint, if any.
func hit(cache ports.CacheStore, fp domain.Fingerprint) (string, bool, error) {
	entry, err := cache.Lookup(fp)
	if err != nil {
		return "", false, err
	}
	if entry == nil {
		return "", false, nil
	}
	return entry.OutputRef, true, nil
}

// consultFile resolves the cache disposition for a stage whose output
// reference is a local file.
func consultFile(cache ports.CacheStore, fp domain.Fingerprint) (string, cacheState, error) {
	ref, ok, err := hit(cache, fp)
	if err != nil || !ok {
		return "", cacheMiss, err
	}
	if _, err := os.Stat(ref); err != nil {
		return "", cacheStale, nil
	}
	return ref, cacheHit, nil
}

// ensureWorkspace creates the run workspace directory if it does not exist.
func ensureWorkspace(path string) error {
	if err := os.MkdirAll(path, domain.DirPerm); err != nil {
		return zerr.With(
			zerr.Wrap(err, domain.ErrWorkspaceCreateFailed.Error()),
			"workspace", path,
		)
	}
	return nil
}

// runWithRetry invokes an external tool, retrying process-level invocation
// failures up to the given budget. A tool that ran and exited non-zero is
// never retried; re-running it would reproduce the same failure. Returns the
// last result, the number of invocations performed and the last error.
func runWithRetry(ctx context.Context, runner ports.ToolRunner, logger ports.Logger, inv domain.ToolInvocation, retries int) (domain.ToolResult, int, error) {
	maxAttempts := retries + 1

	var res domain.ToolResult
	var err error
	attempts := 0
	for attempts < maxAttempts {
		attempts++
		res, err = runner.Run(ctx, inv)
		if err == nil || !errors.Is(err, domain.ErrToolInvocation) {
			break
		}
		// Cancellation surfaces as an invocation failure too; do not burn
		// the retry budget on a dead context.
		if ctx.Err() != nil {
			break
		}
		if attempts < maxAttempts {
			logger.Warn(fmt.Sprintf("%s invocation failed (attempt %d of %d), retrying", inv.Tool, attempts, maxAttempts))
		}
	}

	return res, attempts, err
}

// cachedResult builds the terminal result for a cache hit.
func cachedResult(job domain.StageJob, fp domain.Fingerprint, started time.Time, ref string) domain.StageResult {
	return domain.StageResult{
		Stage:       job.Stage,
		Status:      domain.StageStatusCached,
		OutputRef:   ref,
		Fingerprint: fp,
		StartedAt:   started,
		EndedAt:     time.Now().UTC(),
	}
}

// succeededResult builds the terminal result for completed stage work.
func succeededResult(job domain.StageJob, fp domain.Fingerprint, started time.Time, ref string, attempts int) domain.StageResult {
	return domain.StageResult{
		Stage:       job.Stage,
		Status:      domain.StageStatusSucceeded,
		OutputRef:   ref,
		Fingerprint: fp,
		Attempts:    attempts,
		StartedAt:   started,
		EndedAt:     time.Now().UTC(),
	}
}

// failedResult builds the terminal result for a failed stage.
func failedResult(job domain.StageJob, fp domain.Fingerprint, started time.Time, err error, attempts int) domain.StageResult {
	return domain.StageResult{
		Stage:       job.Stage,
		Status:      domain.StageStatusFailed,
		Fingerprint: fp,
		Error:       err.Error(),
		Attempts:    attempts,
		StartedAt:   started,
		EndedAt:     time.Now().UTC(),
	}
}
