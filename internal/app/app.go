// Package app implements the application layer for forge.
package app

import (
	"context"
	"fmt"
	"os"

	"go.trai.ch/zerr"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/core/ports"
	"go.trai.ch/forge/internal/engine/orchestrator"
	"go.trai.ch/forge/internal/manifest"
	"go.trai.ch/forge/internal/patch"
)

// App represents the main application logic.
type App struct {
	generator *manifest.Generator
	patcher   *patch.Engine
	orch      *orchestrator.Orchestrator
	logger    ports.Logger
}

// New creates a new App instance.
func New(
	generator *manifest.Generator,
	patcher *patch.Engine,
	orch *orchestrator.Orchestrator,
	log ports.Logger,
) *App {
	return &App{
		generator: generator,
		patcher:   patcher,
		orch:      orch,
		logger:    log,
	}
}

// Build runs the full pipeline for the environment request in the given
// YAML file and blocks until the run is terminal. The returned snapshot is
// valid even when the run failed; the error then carries the failure cause.
func (a *App) Build(ctx context.Context, specPath string) (domain.BuildRun, error) {
	// 1. Load the environment request
	data, err := os.ReadFile(specPath)
	if err != nil {
		return domain.BuildRun{}, zerr.Wrap(err, "failed to read environment spec")
	}

	spec, err := domain.ParseInputSpec(data)
	if err != nil {
		return domain.BuildRun{}, err
	}

	// 2. Derive the manifest and apply patch rules
	m, err := a.generator.Generate(spec)
	if err != nil {
		return domain.BuildRun{}, err
	}

	m, rule := a.patcher.Resolve(m)
	var patchedBy string
	if rule != nil {
		patchedBy = rule.Name
		if patchedBy == "" {
			patchedBy = rule.Pattern
		}
		a.logger.Info(fmt.Sprintf("environment %s matches patch rule %s, using prebuilt image", spec.Name, patchedBy))
	}

	// 3. Execute the run
	run, err := a.orch.Submit(ctx, spec, m, patchedBy)
	if err != nil {
		return domain.BuildRun{}, err
	}

	return a.orch.Wait(ctx, run.ID)
}

// Status returns the latest recorded snapshot of a run.
func (a *App) Status(id string) (domain.BuildRun, error) {
	return a.orch.Status(id)
}

// Runs returns all known runs, newest first.
func (a *App) Runs() ([]domain.BuildRun, error) {
	return a.orch.Runs()
}

// Cancel requests cancellation of an in-flight run.
func (a *App) Cancel(id string) error {
	return a.orch.Cancel(id)
}
