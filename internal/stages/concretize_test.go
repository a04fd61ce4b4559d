package stages_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/core/ports/mocks"
	"go.trai.ch/forge/internal/stages"
)

func testManifest() domain.EnvironmentManifest {
	return domain.EnvironmentManifest{
		Environment: domain.EnvironmentSection{
			Name:        "ocean-modeling",
			Description: "Tools for ocean simulation",
			Packages:    []string{"python@3.11", "numpy"},
		},
		Resolver: domain.ResolverSection{
			Unify:    true,
			TargetOS: "ubuntu22.04",
		},
		Container: domain.ContainerSection{
			BuilderImage: "docker://spack/ubuntu-jammy:latest",
			BaseImage:    "docker://ubuntu:22.04",
		},
	}
}

func testJob(t *testing.T, stage domain.Stage) domain.StageJob {
	t.Helper()
	return domain.StageJob{
		RunID:     "r-123",
		Stage:     stage,
		Manifest:  testManifest(),
		Workspace: t.TempDir(),
		Version:   "1.0",
		CreatedAt: time.Now().UTC(),
		Results:   map[domain.Stage]domain.StageResult{},
	}
}

func quietLogger(ctrl *gomock.Controller) *mocks.MockLogger {
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any()).AnyTimes()
	log.EXPECT().Warn(gomock.Any()).AnyTimes()
	return log
}

func writeFileT(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func toolExitedErr(code int) error {
	err := zerr.With(domain.ErrToolExited, "tool", "spack")
	return zerr.With(err, "exit_code", code)
}

func toolInvocationErr(cause string) error {
	err := zerr.With(domain.ErrToolInvocation, "tool", "spack")
	return zerr.With(err, "cause", cause)
}

func TestConcretizeExecutor_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	job := testJob(t, domain.StageConcretize)

	cache := mocks.NewMockCacheStore(ctrl)
	var lookupFP domain.Fingerprint
	cache.EXPECT().Lookup(gomock.Any()).DoAndReturn(func(fp domain.Fingerprint) (*domain.CacheEntry, error) {
		lookupFP = fp
		return nil, nil
	})
	lockPath := filepath.Join(job.Workspace, domain.LockfileName)
	cache.EXPECT().Store(gomock.Any(), lockPath).DoAndReturn(func(fp domain.Fingerprint, _ string) error {
		assert.Equal(t, lookupFP, fp)
		return nil
	})

	runner := mocks.NewMockToolRunner(ctrl)
	runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, inv domain.ToolInvocation) (domain.ToolResult, error) {
			assert.Equal(t, "spack", inv.Tool)
			assert.Equal(t, []string{"--env", ".", "concretize"}, inv.Args)
			assert.Equal(t, job.Workspace, inv.Dir)
			writeFileT(t, filepath.Join(inv.Dir, domain.LockfileName), "lock: pinned\n")
			return domain.ToolResult{ExitCode: 0, Duration: 3 * time.Second}, nil
		})

	exec := stages.NewConcretizeExecutor(runner, cache, quietLogger(ctrl), stages.ConcretizeOptions{
		Command: "spack",
		Timeout: time.Minute,
	})

	res, err := exec.Execute(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, domain.StageStatusSucceeded, res.Status)
	assert.Equal(t, lockPath, res.OutputRef)
	assert.Equal(t, 1, res.Attempts)
	assert.NotEmpty(t, res.Fingerprint)

	rendered, renderErr := job.Manifest.Render()
	require.NoError(t, renderErr)
	written, readErr := os.ReadFile(filepath.Join(job.Workspace, domain.ManifestFileName))
	require.NoError(t, readErr)
	assert.Equal(t, rendered, written)
}

func TestConcretizeExecutor_CacheHit(t *testing.T) {
	ctrl := gomock.NewController(t)
	job := testJob(t, domain.StageConcretize)

	cachedLock := writeFileT(t, filepath.Join(t.TempDir(), domain.LockfileName), "lock: pinned\n")
	cache := mocks.NewMockCacheStore(ctrl)
	cache.EXPECT().Lookup(gomock.Any()).Return(&domain.CacheEntry{
		Fingerprint: "abc",
		OutputRef:   cachedLock,
	}, nil)

	// No runner expectations: a cache hit must not invoke the resolver.
	runner := mocks.NewMockToolRunner(ctrl)

	exec := stages.NewConcretizeExecutor(runner, cache, quietLogger(ctrl), stages.ConcretizeOptions{Command: "spack"})

	res, err := exec.Execute(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, domain.StageStatusCached, res.Status)
	assert.Equal(t, cachedLock, res.OutputRef)
	assert.NoFileExists(t, filepath.Join(job.Workspace, domain.ManifestFileName))
}

func TestConcretizeExecutor_StaleEntryRebuildsWithoutStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	job := testJob(t, domain.StageConcretize)

	cache := mocks.NewMockCacheStore(ctrl)
	cache.EXPECT().Lookup(gomock.Any()).Return(&domain.CacheEntry{
		Fingerprint: "abc",
		OutputRef:   filepath.Join(t.TempDir(), "gone.lock"),
	}, nil)
	// No Store expectation: re-storing would conflict with the dead entry.

	runner := mocks.NewMockToolRunner(ctrl)
	runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, inv domain.ToolInvocation) (domain.ToolResult, error) {
			writeFileT(t, filepath.Join(inv.Dir, domain.LockfileName), "lock: pinned\n")
			return domain.ToolResult{}, nil
		})

	exec := stages.NewConcretizeExecutor(runner, cache, quietLogger(ctrl), stages.ConcretizeOptions{Command: "spack"})

	res, err := exec.Execute(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, domain.StageStatusSucceeded, res.Status)
	assert.Equal(t, filepath.Join(job.Workspace, domain.LockfileName), res.OutputRef)
}

func TestConcretizeExecutor_UnsatisfiableSet(t *testing.T) {
	ctrl := gomock.NewController(t)
	job := testJob(t, domain.StageConcretize)

	cache := mocks.NewMockCacheStore(ctrl)
	cache.EXPECT().Lookup(gomock.Any()).Return(nil, nil)

	runner := mocks.NewMockToolRunner(ctrl)
	runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(domain.ToolResult{
		Stderr:   []byte("error: unsatisfiable package set\n"),
		ExitCode: 1,
	}, toolExitedErr(1)).Times(1)

	exec := stages.NewConcretizeExecutor(runner, cache, quietLogger(ctrl), stages.ConcretizeOptions{
		Command: "spack",
		Retries: 2,
	})

	res, err := exec.Execute(context.Background(), job)

	require.Error(t, err)
	assert.Contains(t, err.Error(), domain.ErrConcretization.Error())
	assert.True(t, errors.Is(err, domain.ErrToolExited))
	assert.Equal(t, domain.StageStatusFailed, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.NotEmpty(t, res.Error)

	var zErr *zerr.Error
	require.ErrorAs(t, err, &zErr)
	assert.Equal(t, "error: unsatisfiable package set", zErr.Metadata()["stderr"])
}

func TestConcretizeExecutor_RetriesInvocationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	job := testJob(t, domain.StageConcretize)

	cache := mocks.NewMockCacheStore(ctrl)
	cache.EXPECT().Lookup(gomock.Any()).Return(nil, nil)
	cache.EXPECT().Store(gomock.Any(), gomock.Any()).Return(nil)

	runner := mocks.NewMockToolRunner(ctrl)
	gomock.InOrder(
		runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(domain.ToolResult{ExitCode: -1}, toolInvocationErr("context deadline exceeded")),
		runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(domain.ToolResult{ExitCode: -1}, toolInvocationErr("context deadline exceeded")),
		runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, inv domain.ToolInvocation) (domain.ToolResult, error) {
				writeFileT(t, filepath.Join(inv.Dir, domain.LockfileName), "lock: pinned\n")
				return domain.ToolResult{}, nil
			}),
	)

	exec := stages.NewConcretizeExecutor(runner, cache, quietLogger(ctrl), stages.ConcretizeOptions{
		Command: "spack",
		Retries: 2,
	})

	res, err := exec.Execute(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, domain.StageStatusSucceeded, res.Status)
	assert.Equal(t, 3, res.Attempts)
}

func TestConcretizeExecutor_RetryBudgetExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	job := testJob(t, domain.StageConcretize)

	cache := mocks.NewMockCacheStore(ctrl)
	cache.EXPECT().Lookup(gomock.Any()).Return(nil, nil)

	runner := mocks.NewMockToolRunner(ctrl)
	runner.EXPECT().Run(gomock.Any(), gomock.Any()).
		Return(domain.ToolResult{ExitCode: -1}, toolInvocationErr("context deadline exceeded")).
		Times(2)

	exec := stages.NewConcretizeExecutor(runner, cache, quietLogger(ctrl), stages.ConcretizeOptions{
		Command: "spack",
		Retries: 1,
	})

	res, err := exec.Execute(context.Background(), job)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrToolInvocation))
	assert.Equal(t, domain.StageStatusFailed, res.Status)
	assert.Equal(t, 2, res.Attempts)
}

func TestConcretizeExecutor_NoLockProduced(t *testing.T) {
	ctrl := gomock.NewController(t)
	job := testJob(t, domain.StageConcretize)

	cache := mocks.NewMockCacheStore(ctrl)
	cache.EXPECT().Lookup(gomock.Any()).Return(nil, nil)

	runner := mocks.NewMockToolRunner(ctrl)
	runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(domain.ToolResult{}, nil)

	exec := stages.NewConcretizeExecutor(runner, cache, quietLogger(ctrl), stages.ConcretizeOptions{Command: "spack"})

	res, err := exec.Execute(context.Background(), job)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConcretization))
	assert.Equal(t, domain.StageStatusFailed, res.Status)

	var zErr *zerr.Error
	require.ErrorAs(t, err, &zErr)
	assert.Equal(t, "resolver produced no lock file", zErr.Metadata()["cause"])
}
