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
	"go.uber.org/mock/gomock"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/core/ports/mocks"
	"go.trai.ch/forge/internal/stages"
)

// imageJob builds a job whose concretize dependency points at a real lock
// file inside the run workspace.
func imageJob(t *testing.T) domain.StageJob {
	t.Helper()
	job := testJob(t, domain.StageBuildImage)
	lockPath := writeFileT(t, filepath.Join(job.Workspace, domain.LockfileName), "lock: pinned\n")
	job.Results[domain.StageConcretize] = domain.StageResult{
		Stage:     domain.StageConcretize,
		Status:    domain.StageStatusSucceeded,
		OutputRef: lockPath,
	}
	return job
}

func testImageOptions() stages.ImageOptions {
	return stages.ImageOptions{
		Command:  "singularity",
		Bind:     "/tmp",
		CacheDir: "/srv/buildcache",
		Timeout:  time.Hour,
	}
}

func TestImageExecutor_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	job := imageJob(t)

	cache := mocks.NewMockCacheStore(ctrl)
	cache.EXPECT().Lookup(gomock.Any()).Return(nil, nil)
	imagePath := filepath.Join(job.Workspace, domain.ImageFileName)
	cache.EXPECT().Store(gomock.Any(), imagePath).Return(nil)

	runner := mocks.NewMockToolRunner(ctrl)
	gomock.InOrder(
		runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, inv domain.ToolInvocation) (domain.ToolResult, error) {
				assert.Equal(t, "singularity", inv.Tool)
				assert.Equal(t, []string{
					"build", "--force", "--fakeroot",
					"--bind", "/tmp", "--sandbox", "build/",
					"recipe.build.def",
				}, inv.Args)
				assert.Equal(t, job.Workspace, inv.Dir)
				return domain.ToolResult{}, nil
			}),
		runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, inv domain.ToolInvocation) (domain.ToolResult, error) {
				assert.Equal(t, []string{
					"build", "--force", "--fakeroot",
					domain.ImageFileName, "recipe.final.def",
				}, inv.Args)
				writeFileT(t, filepath.Join(inv.Dir, domain.ImageFileName), "sif")
				return domain.ToolResult{}, nil
			}),
	)

	exec := stages.NewImageExecutor(runner, cache, quietLogger(ctrl), testImageOptions())

	res, err := exec.Execute(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, domain.StageStatusSucceeded, res.Status)
	assert.Equal(t, imagePath, res.OutputRef)
	assert.Equal(t, 2, res.Attempts)

	buildRecipe, readErr := os.ReadFile(filepath.Join(job.Workspace, "recipe.build.def"))
	require.NoError(t, readErr)
	assert.Contains(t, string(buildRecipe), "From: docker://spack/ubuntu-jammy:latest")
	assert.Contains(t, string(buildRecipe), "spack install --fail-fast")
	assert.Contains(t, string(buildRecipe), "# spack build cache")
	assert.Contains(t, string(buildRecipe), "spack --env . buildcache push --allow-root --force /srv/buildcache python@3.11")
	assert.Contains(t, string(buildRecipe), "spack --env . buildcache push --allow-root --force /srv/buildcache numpy")

	finalRecipe, readErr := os.ReadFile(filepath.Join(job.Workspace, "recipe.final.def"))
	require.NoError(t, readErr)
	assert.Contains(t, string(finalRecipe), "From: docker://ubuntu:22.04")
	assert.Contains(t, string(finalRecipe), "build/opt/software /opt/software")
	assert.Contains(t, string(finalRecipe), "forge.environment ocean-modeling")
}

func TestImageExecutor_NoBuildCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	job := imageJob(t)

	cache := mocks.NewMockCacheStore(ctrl)
	cache.EXPECT().Lookup(gomock.Any()).Return(nil, nil)
	cache.EXPECT().Store(gomock.Any(), gomock.Any()).Return(nil)

	runner := mocks.NewMockToolRunner(ctrl)
	runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, inv domain.ToolInvocation) (domain.ToolResult, error) {
			writeFileT(t, filepath.Join(inv.Dir, domain.ImageFileName), "sif")
			return domain.ToolResult{}, nil
		}).Times(2)

	opts := testImageOptions()
	opts.CacheDir = ""
	exec := stages.NewImageExecutor(runner, cache, quietLogger(ctrl), opts)

	_, err := exec.Execute(context.Background(), job)
	require.NoError(t, err)

	buildRecipe, readErr := os.ReadFile(filepath.Join(job.Workspace, "recipe.build.def"))
	require.NoError(t, readErr)
	assert.NotContains(t, string(buildRecipe), "buildcache")
}

func TestImageExecutor_PrebuiltSkipsFromSourceBuild(t *testing.T) {
	ctrl := gomock.NewController(t)
	job := imageJob(t)
	job.Manifest.Container.PrebuiltImage = "docker://rocker/rstudio:4.4"

	cache := mocks.NewMockCacheStore(ctrl)
	cache.EXPECT().Lookup(gomock.Any()).Return(nil, nil)
	cache.EXPECT().Store(gomock.Any(), gomock.Any()).Return(nil)

	runner := mocks.NewMockToolRunner(ctrl)
	runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, inv domain.ToolInvocation) (domain.ToolResult, error) {
			assert.Equal(t, []string{
				"build", "--force", "--fakeroot",
				domain.ImageFileName, "recipe.final.def",
			}, inv.Args)
			writeFileT(t, filepath.Join(inv.Dir, domain.ImageFileName), "sif")
			return domain.ToolResult{}, nil
		}).Times(1)

	exec := stages.NewImageExecutor(runner, cache, quietLogger(ctrl), testImageOptions())

	res, err := exec.Execute(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, domain.StageStatusSucceeded, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.NoFileExists(t, filepath.Join(job.Workspace, "recipe.build.def"))

	finalRecipe, readErr := os.ReadFile(filepath.Join(job.Workspace, "recipe.final.def"))
	require.NoError(t, readErr)
	assert.Contains(t, string(finalRecipe), "From: docker://rocker/rstudio:4.4")
	assert.NotContains(t, string(finalRecipe), "%files")
}

func TestImageExecutor_CacheHit(t *testing.T) {
	ctrl := gomock.NewController(t)
	job := imageJob(t)

	cachedImage := writeFileT(t, filepath.Join(t.TempDir(), domain.ImageFileName), "sif")
	cache := mocks.NewMockCacheStore(ctrl)
	cache.EXPECT().Lookup(gomock.Any()).Return(&domain.CacheEntry{
		Fingerprint: "abc",
		OutputRef:   cachedImage,
	}, nil)

	runner := mocks.NewMockToolRunner(ctrl)

	exec := stages.NewImageExecutor(runner, cache, quietLogger(ctrl), testImageOptions())

	res, err := exec.Execute(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, domain.StageStatusCached, res.Status)
	assert.Equal(t, cachedImage, res.OutputRef)
}

func TestImageExecutor_BuildToolFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	job := imageJob(t)

	cache := mocks.NewMockCacheStore(ctrl)
	cache.EXPECT().Lookup(gomock.Any()).Return(nil, nil)

	runner := mocks.NewMockToolRunner(ctrl)
	runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(domain.ToolResult{
		Stderr:   []byte("FATAL: while performing build: conveyor failed\n"),
		ExitCode: 255,
	}, toolExitedErr(255)).Times(1)

	exec := stages.NewImageExecutor(runner, cache, quietLogger(ctrl), testImageOptions())

	res, err := exec.Execute(context.Background(), job)

	require.Error(t, err)
	assert.Contains(t, err.Error(), domain.ErrImageBuild.Error())
	assert.True(t, errors.Is(err, domain.ErrToolExited))
	assert.Equal(t, domain.StageStatusFailed, res.Status)
	assert.Equal(t, 1, res.Attempts)
}

func TestImageExecutor_MissingConcretizeResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	job := testJob(t, domain.StageBuildImage)

	exec := stages.NewImageExecutor(
		mocks.NewMockToolRunner(ctrl),
		mocks.NewMockCacheStore(ctrl),
		quietLogger(ctrl),
		testImageOptions(),
	)

	res, err := exec.Execute(context.Background(), job)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMissingDependency))
	assert.Equal(t, domain.StageStatusFailed, res.Status)
}
