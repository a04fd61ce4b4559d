package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.trai.ch/zerr"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/core/ports"
)

var _ ports.StageExecutor = (*PushExecutor)(nil)

// PushExecutor bundles the run's artifacts and pushes them to the registry
// under the version assigned to the run. Retry policy lives in the registry
// client; the executor only assembles the set and records the outcome.
type PushExecutor struct {
	registry ports.RegistryClient
	cache    ports.CacheStore
	logger   ports.Logger
}

// NewPushExecutor creates a new PushExecutor.
func NewPushExecutor(registry ports.RegistryClient, cache ports.CacheStore, logger ports.Logger) *PushExecutor {
	return &PushExecutor{registry: registry, cache: cache, logger: logger}
}

// Stage identifies the pipeline stage this executor implements.
func (e *PushExecutor) Stage() domain.Stage {
	return domain.StagePushArtifacts
}

// Execute runs the artifact push stage for the given job.
func (e *PushExecutor) Execute(ctx context.Context, job domain.StageJob) (domain.StageResult, error) {
	started := time.Now().UTC()

	deps := make(map[domain.Stage]domain.StageResult, 3)
	for _, stage := range []domain.Stage{domain.StageConcretize, domain.StageBuildImage, domain.StageGenerateModule} {
		res, ok := job.Dependency(stage)
		if !ok {
			depErr := zerr.With(domain.ErrMissingDependency, "stage", string(stage))
			return failedResult(job, "", started, depErr, 0), depErr
		}
		deps[stage] = res
	}

	rendered, err := job.Manifest.Render()
	if err != nil {
		return failedResult(job, "", started, err, 0), err
	}

	if err := ensureWorkspace(job.Workspace); err != nil {
		return failedResult(job, "", started, err, 0), err
	}

	// The manifest travels with the set. Re-rendering is deterministic, so
	// writing it here covers runs whose concretize stage was served from an
	// older run's cache entry.
	manifestPath := filepath.Join(job.Workspace, domain.ManifestFileName)
	if err := os.WriteFile(manifestPath, rendered, domain.FilePerm); err != nil {
		wErr := zerr.With(zerr.Wrap(err, "failed to write manifest"), "path", manifestPath)
		return failedResult(job, "", started, wErr, 0), wErr
	}

	set := domain.ArtifactSet{
		Environment: job.Manifest.Name(),
		Version:     job.Version,
		Manifest:    manifestPath,
		Lockfile:    deps[domain.StageConcretize].OutputRef,
		Image:       deps[domain.StageBuildImage].OutputRef,
		Module:      deps[domain.StageGenerateModule].OutputRef,
	}

	d := newDigest(domain.StagePushArtifacts)
	d.writeString(set.Environment)
	for _, file := range set.Files() {
		if err := d.writeFile(file.Path); err != nil {
			return failedResult(job, "", started, err, 0), err
		}
	}
	fp := d.Sum()

	ref, ok, err := hit(e.cache, fp)
	if err != nil {
		return failedResult(job, fp, started, err, 0), err
	}
	if ok {
		e.logger.Info(fmt.Sprintf("artifact set already pushed: %s", ref))
		return cachedResult(job, fp, started, ref), nil
	}

	e.logger.Info(fmt.Sprintf("pushing artifacts for %s version %s", set.Environment, set.Version))

	pushRes, err := e.registry.Push(ctx, set)
	if err != nil {
		for _, upload := range pushRes.Failed() {
			e.logger.Warn(fmt.Sprintf("upload failed: %s (%s)", upload.Key, upload.Error))
		}
		return failedResult(job, fp, started, err, 1), err
	}

	if err := e.cache.Store(fp, pushRes.Ref); err != nil {
		return failedResult(job, fp, started, err, 1), err
	}

	e.logger.Info(fmt.Sprintf("artifacts pushed to %s", pushRes.Ref))
	return succeededResult(job, fp, started, pushRes.Ref, 1), nil
}
