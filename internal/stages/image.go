package stages

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"go.trai.ch/zerr"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/core/ports"
)

var _ ports.StageExecutor = (*ImageExecutor)(nil)

// Build stage names, keyed into the recipe templates and file names.
const (
	buildStageName = "build"
	finalStageName = "final"

	// sandboxDirName is the directory the build stage materializes the
	// from-source environment into, relative to the run workspace.
	sandboxDirName = "build/"
)

// ImageOptions configure the container image build invocation.
type ImageOptions struct {
	// Command is the container build executable.
	Command string

	// Bind is the host path bound into the build stage.
	Bind string

	// CacheDir is the package build cache destination. Empty disables the
	// build cache push.
	CacheDir string

	// Timeout bounds a single build invocation.
	Timeout time.Duration

	// Retries is the number of additional attempts after a process-level
	// invocation failure.
	Retries int
}

// ImageExecutor builds the container image for a concretized environment.
// The build runs in two stages rendered from recipe templates: a from-source
// build inside the builder image, then a final stage that copies the result
// into the base image. A prebuilt override installed by a patch rule skips
// the from-source stage entirely.
type ImageExecutor struct {
	runner ports.ToolRunner
	cache  ports.CacheStore
	logger ports.Logger
	opts   ImageOptions
}

// NewImageExecutor creates a new ImageExecutor.
func NewImageExecutor(runner ports.ToolRunner, cache ports.CacheStore, logger ports.Logger, opts ImageOptions) *ImageExecutor {
	return &ImageExecutor{runner: runner, cache: cache, logger: logger, opts: opts}
}

// Stage identifies the pipeline stage this executor implements.
func (e *ImageExecutor) Stage() domain.Stage {
	return domain.StageBuildImage
}

// Execute runs the image build stage for the given job.
func (e *ImageExecutor) Execute(ctx context.Context, job domain.StageJob) (domain.StageResult, error) {
	started := time.Now().UTC()

	lock, ok := job.Dependency(domain.StageConcretize)
	if !ok {
		depErr := zerr.With(domain.ErrMissingDependency, "stage", string(domain.StageConcretize))
		return failedResult(job, "", started, depErr, 0), depErr
	}

	rendered, err := job.Manifest.Render()
	if err != nil {
		return failedResult(job, "", started, err, 0), err
	}

	d := newDigest(domain.StageBuildImage)
	d.writeBytes(rendered)
	if err := d.writeFile(lock.OutputRef); err != nil {
		return failedResult(job, "", started, err, 0), err
	}
	d.writeString(e.opts.Command)
	d.writeString(e.opts.Bind)
	d.writeString(e.opts.CacheDir)
	fp := d.Sum()

	ref, state, err := consultFile(e.cache, fp)
	if err != nil {
		return failedResult(job, fp, started, err, 0), err
	}
	if state == cacheHit {
		e.logger.Info(fmt.Sprintf("serving environment image from cache: %s", ref))
		return cachedResult(job, fp, started, ref), nil
	}

	if err := ensureWorkspace(job.Workspace); err != nil {
		return failedResult(job, fp, started, err, 0), err
	}

	data := recipeData{
		Environment:   job.Manifest.Name(),
		BuilderImage:  job.Manifest.Container.BuilderImage,
		BaseImage:     job.Manifest.Container.BaseImage,
		PrebuiltImage: job.Manifest.Container.PrebuiltImage,
		Prebuilt:      job.Manifest.Prebuilt(),
		Packages:      job.Manifest.Environment.Packages,
		CacheDir:      e.opts.CacheDir,
	}

	attempts := 0
	if !data.Prebuilt {
		buildAttempts, err := e.buildStage(ctx, job, buildRecipe, data, e.stageArgs(buildStageName))
		attempts += buildAttempts
		if err != nil {
			return failedResult(job, fp, started, err, attempts), err
		}
	} else {
		e.logger.Info(fmt.Sprintf("using prebuilt image %s, skipping from-source build", data.PrebuiltImage))
	}

	finalAttempts, err := e.buildStage(ctx, job, finalRecipe, data, e.stageArgs(finalStageName))
	attempts += finalAttempts
	if err != nil {
		return failedResult(job, fp, started, err, attempts), err
	}

	imagePath := filepath.Join(job.Workspace, domain.ImageFileName)
	if _, err := os.Stat(imagePath); err != nil {
		stageErr := zerr.With(domain.ErrImageBuild, "cause", "build tool produced no image")
		stageErr = zerr.With(stageErr, "path", imagePath)
		return failedResult(job, fp, started, stageErr, attempts), stageErr
	}

	if state != cacheStale {
		if err := e.cache.Store(fp, imagePath); err != nil {
			return failedResult(job, fp, started, err, attempts), err
		}
	}

	e.logger.Info(fmt.Sprintf("environment image built: %s", imagePath))
	return succeededResult(job, fp, started, imagePath, attempts), nil
}

// stageArgs returns the build tool arguments for one build stage. The build
// stage materializes a sandbox directory; the final stage produces the image
// file.
func (e *ImageExecutor) stageArgs(stage string) []string {
	args := []string{"build", "--force", "--fakeroot"}
	switch stage {
	case buildStageName:
		args = append(args, "--bind", e.opts.Bind, "--sandbox", sandboxDirName)
	case finalStageName:
		args = append(args, domain.ImageFileName)
	}
	return append(args, domain.RecipeFileName(stage))
}

// buildStage renders one recipe and invokes the build tool on it.
func (e *ImageExecutor) buildStage(ctx context.Context, job domain.StageJob, tmpl *template.Template, data recipeData, args []string) (int, error) {
	recipe, err := renderRecipe(tmpl, data)
	if err != nil {
		return 0, err
	}

	recipePath := filepath.Join(job.Workspace, domain.RecipeFileName(tmpl.Name()))
	if err := os.WriteFile(recipePath, recipe, domain.FilePerm); err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to write recipe"), "path", recipePath)
	}

	e.logger.Info(fmt.Sprintf("building %s stage for %s", tmpl.Name(), job.Manifest.Name()))

	inv := domain.ToolInvocation{
		Tool:    e.opts.Command,
		Args:    args,
		Dir:     job.Workspace,
		Timeout: e.opts.Timeout,
	}
	res, attempts, runErr := runWithRetry(ctx, e.runner, e.logger, inv, e.opts.Retries)
	if runErr != nil {
		if errors.Is(runErr, domain.ErrToolExited) {
			stageErr := zerr.With(
				zerr.Wrap(runErr, domain.ErrImageBuild.Error()),
				"stderr", strings.TrimSpace(string(res.Stderr)),
			)
			return attempts, zerr.With(stageErr, "recipe", recipePath)
		}
		return attempts, runErr
	}

	return attempts, nil
}
