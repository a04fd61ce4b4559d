// Package orchestrator drives build runs through the stage pipeline. It walks
// the stage dependency graph, dispatches every stage whose dependencies have
// completed and records each result on the run as it arrives. Stages without a
// dependency relationship execute concurrently.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.trai.ch/zerr"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/core/ports"
)

// Orchestrator accepts build runs and executes them asynchronously. Every
// state transition is persisted to the run store, so a run's progress is
// observable while it executes and after the process exits.
type Orchestrator struct {
	dispatcher ports.Dispatcher
	registry   ports.RegistryClient
	runs       ports.RunStore
	logger     ports.Logger
	tracer     ports.Tracer

	workspaceRoot string

	mu     sync.RWMutex
	active map[string]*runHandle
}

// runHandle tracks a run owned by this process. The run itself is mutated
// only by the run's event loop goroutine; done is closed after the final
// snapshot has been persisted, so readers that wait on it observe the
// terminal state.
type runHandle struct {
	run    *domain.BuildRun
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// New creates an Orchestrator that dispatches stages through the given
// dispatcher and persists run snapshots in the given store.
func New(
	dispatcher ports.Dispatcher,
	registry ports.RegistryClient,
	runs ports.RunStore,
	logger ports.Logger,
	tracer ports.Tracer,
	workspaceRoot string,
) *Orchestrator {
	return &Orchestrator{
		dispatcher:    dispatcher,
		registry:      registry,
		runs:          runs,
		logger:        logger,
		tracer:        tracer,
		workspaceRoot: workspaceRoot,
		active:        make(map[string]*runHandle),
	}
}

// Submit creates a run for the given spec and manifest and starts executing
// it in the background. The artifact version is assigned here, before the
// run exists, so a version reservation failure never leaves a half-started
// run behind. The returned snapshot carries the run ID for Status, Wait and
// Cancel.
func (o *Orchestrator) Submit(
	ctx context.Context,
	spec domain.InputSpec,
	manifest domain.EnvironmentManifest,
	patchedBy string,
) (domain.BuildRun, error) {
	version, err := o.registry.NextVersion(ctx, spec.Name)
	if err != nil {
		return domain.BuildRun{}, zerr.Wrap(err, "failed to assign artifact version")
	}

	run := domain.NewBuildRun(spec, manifest)
	run.PatchedBy = patchedBy
	run.Version = version
	o.persist(run)

	if err := run.Begin(); err != nil {
		return domain.BuildRun{}, err
	}
	o.persist(run)

	runCtx, cancel := context.WithCancel(ctx)
	handle := &runHandle{
		run:    run,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	o.mu.Lock()
	o.active[run.ID] = handle
	o.mu.Unlock()

	o.logger.Info(fmt.Sprintf("run %s accepted for environment %s version %s", run.ID, spec.Name, version))

	go o.execute(runCtx, handle)

	return run.Snapshot(), nil
}

// Wait blocks until a run submitted through this orchestrator reaches a
// terminal state and returns its final snapshot. The returned error is the
// run's failure cause; it is nil when the run succeeded. Runs only known
// from the store cannot be waited on; use Status for those.
func (o *Orchestrator) Wait(ctx context.Context, id string) (domain.BuildRun, error) {
	o.mu.RLock()
	handle, ok := o.active[id]
	o.mu.RUnlock()

	if !ok {
		return domain.BuildRun{}, zerr.With(domain.ErrRunNotFound, "run_id", id)
	}

	select {
	case <-handle.done:
		return handle.run.Snapshot(), handle.err
	case <-ctx.Done():
		return domain.BuildRun{}, ctx.Err()
	}
}

// Status returns the latest persisted snapshot of a run.
func (o *Orchestrator) Status(id string) (domain.BuildRun, error) {
	run, err := o.runs.Get(id)
	if err != nil {
		return domain.BuildRun{}, err
	}
	return *run, nil
}

// Runs returns all persisted runs, newest first.
func (o *Orchestrator) Runs() ([]domain.BuildRun, error) {
	return o.runs.List()
}

// Cancel requests cancellation of an in-flight run. Stages that are already
// executing run to completion and their results are recorded; no further
// stages are dispatched. Cancelling a terminal run is an error.
func (o *Orchestrator) Cancel(id string) error {
	o.mu.RLock()
	handle, ok := o.active[id]
	o.mu.RUnlock()

	if !ok {
		run, err := o.runs.Get(id)
		if err != nil {
			return err
		}
		if run.Status.IsTerminal() {
			return zerr.With(domain.ErrRunAlreadyTerminal, "run_id", id)
		}
		return zerr.With(domain.ErrRunNotFound, "run_id", id)
	}

	select {
	case <-handle.done:
		return zerr.With(domain.ErrRunAlreadyTerminal, "run_id", id)
	default:
	}

	handle.cancel()
	return nil
}

// execute runs the stage event loop for a single run and records the
// terminal state. It owns all mutation of handle.run; other goroutines only
// read snapshots after handle.done is closed.
func (o *Orchestrator) execute(ctx context.Context, handle *runHandle) {
	defer handle.cancel()
	defer close(handle.done)

	graph, err := domain.PipelineGraph()
	if err != nil {
		handle.err = o.finish(handle, domain.RunStatusFailed, "", err)
		return
	}

	o.tracer.EmitPlan(ctx, domain.Stages())

	state := newRunState(ctx, graph, o, handle)
	err = state.runLoop()

	if err != nil {
		handle.err = o.finish(handle, domain.RunStatusFailed, state.failedStage, err)
		return
	}
	handle.err = o.finish(handle, domain.RunStatusSucceeded, "", nil)
}

// finish records the terminal status on the run, persists the final snapshot
// and returns the failure cause unchanged.
func (o *Orchestrator) finish(
	handle *runHandle,
	status domain.RunStatus,
	failedStage domain.Stage,
	reason error,
) error {
	if err := handle.run.Finish(status, failedStage, reason); err != nil {
		o.logger.Warn(fmt.Sprintf("failed to finish run %s: %v", handle.run.ID, err))
	}
	o.persist(handle.run)

	if status == domain.RunStatusSucceeded {
		o.logger.Info(fmt.Sprintf("run %s succeeded, artifacts at %s", handle.run.ID, handle.run.ArtifactRef))
	} else {
		o.logger.Warn(fmt.Sprintf("run %s failed: %v", handle.run.ID, reason))
	}

	return reason
}

// persist saves a snapshot of the run. Persistence failures are logged and
// do not interrupt the run; the in-memory state remains authoritative while
// the process lives.
func (o *Orchestrator) persist(run *domain.BuildRun) {
	if err := o.runs.Save(run.Snapshot()); err != nil {
		o.logger.Warn(fmt.Sprintf("failed to persist run %s: %v", run.ID, err))
	}
}

// stageOutcome is the result of one dispatched stage.
type stageOutcome struct {
	stage  domain.Stage
	result domain.StageResult
	err    error
}

// runState holds the event loop state for one run. ready holds stages whose
// dependencies have all completed; inDegree counts unfinished dependencies
// per stage. resultsCh is buffered for the whole graph so a stage goroutine
// never blocks on send after cancellation.
type runState struct {
	graph     *domain.Graph
	inDegree  map[domain.Stage]int
	ready     []domain.Stage
	active    int
	resultsCh chan stageOutcome

	failedStage domain.Stage
	errs        error

	ctx    context.Context
	o      *Orchestrator
	handle *runHandle
}

func newRunState(ctx context.Context, graph *domain.Graph, o *Orchestrator, handle *runHandle) *runState {
	inDegree := make(map[domain.Stage]int, graph.Len())

	var ready []domain.Stage
	for node := range graph.Walk() {
		inDegree[node.Stage] = len(node.DependsOn)
		if len(node.DependsOn) == 0 {
			ready = append(ready, node.Stage)
		}
	}

	return &runState{
		graph:     graph,
		inDegree:  inDegree,
		ready:     ready,
		resultsCh: make(chan stageOutcome, graph.Len()),
		ctx:       ctx,
		o:         o,
		handle:    handle,
	}
}

// runLoop schedules ready stages and consumes their results until the graph
// is exhausted, a failure blocks all remaining stages or the context is
// cancelled with nothing in flight.
func (state *runState) runLoop() error {
	for !state.isDone() {
		state.schedule()

		if state.isDone() {
			break
		}

		if state.ctx.Err() != nil && state.active == 0 {
			return errors.Join(state.errs, state.cancelled())
		}

		select {
		case out := <-state.resultsCh:
			state.handleResult(out)
		case <-state.ctx.Done():
		}
	}

	if state.ctx.Err() != nil {
		state.errs = errors.Join(state.errs, state.cancelled())
	}

	return state.errs
}

// isDone reports whether the loop can make no further progress: nothing is
// executing and nothing is ready. Stages blocked behind a failed dependency
// never become ready.
func (state *runState) isDone() bool {
	return state.active == 0 && len(state.ready) == 0
}

func (state *runState) cancelled() error {
	return zerr.Wrap(state.ctx.Err(), domain.ErrRunCancelled.Error())
}

// schedule starts every ready stage. The job is assembled here, on the loop
// goroutine, so stage goroutines never read the run while it is being
// mutated.
func (state *runState) schedule() {
	for len(state.ready) > 0 && state.ctx.Err() == nil {
		stage := state.ready[0]
		state.ready = state.ready[1:]

		state.active++
		state.handle.run.MarkStageRunning(stage)
		state.o.persist(state.handle.run)

		go state.executeStage(stage, state.buildJob(stage))
	}
}

// buildJob assembles the dispatch payload for a stage, carrying the results
// of its direct dependencies so executors can locate their inputs.
func (state *runState) buildJob(stage domain.Stage) domain.StageJob {
	run := state.handle.run

	var deps []domain.Stage
	if node, ok := state.graph.Node(stage); ok {
		deps = node.DependsOn
	}

	results := make(map[domain.Stage]domain.StageResult, len(deps))
	for _, dep := range deps {
		if res, ok := run.Result(dep); ok {
			results[dep] = res
		}
	}

	return domain.StageJob{
		RunID:     run.ID,
		Stage:     stage,
		Manifest:  run.Manifest,
		Workspace: domain.RunWorkspacePath(state.o.workspaceRoot, run.ID),
		Version:   run.Version,
		CreatedAt: time.Now().UTC(),
		Results:   results,
	}
}

// executeStage dispatches one stage and reports the outcome. Dispatch runs
// inside a closure so the span is closed before the result is sent.
func (state *runState) executeStage(stage domain.Stage, job domain.StageJob) {
	out := func() stageOutcome {
		ctx, span := state.o.tracer.Start(state.ctx, string(stage))
		defer span.End()

		result, err := state.o.dispatcher.Dispatch(ctx, job)
		if err != nil {
			span.RecordError(err)
		}
		if result.Status == domain.StageStatusCached {
			span.SetAttribute("forge.cached", true)
		}

		return stageOutcome{stage: stage, result: result, err: err}
	}()

	state.resultsCh <- out
}

func (state *runState) handleResult(out stageOutcome) {
	state.active--

	if out.err != nil {
		state.handleFailure(out)
		return
	}
	state.handleSuccess(out)
}

// handleFailure records the failed result and accumulates the cause. The
// stage's dependents are never enqueued, so everything downstream of the
// failure stays pending.
func (state *runState) handleFailure(out stageOutcome) {
	res := out.result
	res.Stage = out.stage
	if !res.Status.IsTerminal() {
		res.Status = domain.StageStatusFailed
	}
	if res.Error == "" {
		res.Error = out.err.Error()
	}
	state.record(res)

	if state.failedStage == "" {
		state.failedStage = out.stage
	}
	state.errs = errors.Join(state.errs, zerr.With(out.err, "stage", string(out.stage)))

	state.o.logger.Warn(fmt.Sprintf("stage %s of run %s failed: %v", out.stage, state.handle.run.ID, out.err))
}

// handleSuccess records the result and releases dependents whose remaining
// dependencies have all completed.
func (state *runState) handleSuccess(out stageOutcome) {
	res := out.result
	res.Stage = out.stage
	if out.stage == domain.StagePushArtifacts {
		state.handle.run.ArtifactRef = res.OutputRef
	}
	state.record(res)

	for _, dependent := range state.graph.Dependents(out.stage) {
		state.inDegree[dependent]--
		if state.inDegree[dependent] == 0 {
			state.ready = append(state.ready, dependent)
		}
	}
}

func (state *runState) record(res domain.StageResult) {
	if err := state.handle.run.RecordStage(res); err != nil {
		state.o.logger.Warn(fmt.Sprintf("failed to record %s result for run %s: %v", res.Stage, state.handle.run.ID, err))
		return
	}
	state.o.persist(state.handle.run)
}
