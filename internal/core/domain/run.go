package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"go.trai.ch/zerr"
)

// RunStatus represents the overall lifecycle state of a BuildRun.
type RunStatus string

const (
	// RunStatusPending indicates the run has been created but not accepted
	// by the orchestrator yet.
	RunStatusPending RunStatus = "pending"
	// RunStatusRunning indicates the orchestrator is dispatching stages.
	RunStatusRunning RunStatus = "running"
	// RunStatusSucceeded indicates every required stage succeeded or was
	// served from cache.
	RunStatusSucceeded RunStatus = "succeeded"
	// RunStatusFailed indicates a required stage failed or the run was
	// cancelled.
	RunStatusFailed RunStatus = "failed"
)

// IsTerminal checks if a status is a terminal state. Terminal states are
// absorbing: a run never transitions out of Succeeded or Failed.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// NormalizeRunStatus converts a string to a RunStatus, defaulting to pending
// if unknown.
func NormalizeRunStatus(s string) RunStatus {
	switch strings.ToLower(s) {
	case string(RunStatusPending):
		return RunStatusPending
	case string(RunStatusRunning):
		return RunStatusRunning
	case string(RunStatusSucceeded):
		return RunStatusSucceeded
	case string(RunStatusFailed):
		return RunStatusFailed
	default:
		return RunStatusPending
	}
}

// BuildRun is the aggregate root for one pipeline execution. It is created
// when a validated spec is accepted and mutated only by the orchestrator as
// stages complete.
type BuildRun struct {
	ID          string                `json:"id"`
	Spec        InputSpec             `json:"spec"`
	Manifest    EnvironmentManifest   `json:"manifest"`
	PatchedBy   string                `json:"patched_by,omitzero"`
	Version     string                `json:"version,omitzero"`
	Status      RunStatus             `json:"status"`
	Stages      map[Stage]StageResult `json:"stages"`
	FailedStage Stage                 `json:"failed_stage,omitzero"`
	Error       string                `json:"error,omitzero"`
	ArtifactRef string                `json:"artifact_ref,omitzero"`
	CreatedAt   time.Time             `json:"created_at"`
	StartedAt   time.Time             `json:"started_at,omitzero"`
	EndedAt     time.Time             `json:"ended_at,omitzero"`
}

// NewBuildRun creates a pending run for an already-validated spec.
func NewBuildRun(spec InputSpec, manifest EnvironmentManifest) *BuildRun {
	run := &BuildRun{
		ID:        uuid.NewString(),
		Spec:      spec,
		Manifest:  manifest,
		Status:    RunStatusPending,
		Stages:    make(map[Stage]StageResult, len(Stages())),
		CreatedAt: time.Now().UTC(),
	}
	for _, stage := range Stages() {
		run.Stages[stage] = StageResult{Stage: stage, Status: StageStatusPending}
	}
	return run
}

// Begin transitions the run from Pending to Running.
func (r *BuildRun) Begin() error {
	if r.Status != RunStatusPending {
		err := zerr.With(ErrInvalidRunTransition, "run_id", r.ID)
		return zerr.With(err, "status", string(r.Status))
	}
	r.Status = RunStatusRunning
	r.StartedAt = time.Now().UTC()
	return nil
}

// RecordStage stores a terminal stage result. A terminal result is written
// exactly once; overwriting one is a logic error.
func (r *BuildRun) RecordStage(res StageResult) error {
	existing, ok := r.Stages[res.Stage]
	if !ok {
		return zerr.With(ErrStageNotFound, "stage", string(res.Stage))
	}
	if existing.Status.IsTerminal() {
		err := zerr.With(ErrStageAlreadyRecorded, "run_id", r.ID)
		return zerr.With(err, "stage", string(res.Stage))
	}
	r.Stages[res.Stage] = res
	return nil
}

// MarkStageRunning flags a stage as dispatched. Unlike terminal results this
// is presentational state; it never overwrites a terminal result.
func (r *BuildRun) MarkStageRunning(stage Stage) {
	if res, ok := r.Stages[stage]; ok && !res.Status.IsTerminal() {
		res.Status = StageStatusRunning
		res.StartedAt = time.Now().UTC()
		r.Stages[stage] = res
	}
}

// Result returns the recorded result for a stage.
func (r *BuildRun) Result(stage Stage) (StageResult, bool) {
	res, ok := r.Stages[stage]
	return res, ok
}

// Finish transitions the run to a terminal status. Terminal states are
// absorbing, so finishing an already-terminal run is rejected.
func (r *BuildRun) Finish(status RunStatus, failedStage Stage, reason error) error {
	if r.Status.IsTerminal() {
		err := zerr.With(ErrRunAlreadyTerminal, "run_id", r.ID)
		return zerr.With(err, "status", string(r.Status))
	}
	if !status.IsTerminal() {
		err := zerr.With(ErrInvalidRunTransition, "run_id", r.ID)
		return zerr.With(err, "status", string(status))
	}
	r.Status = status
	r.FailedStage = failedStage
	if reason != nil {
		r.Error = reason.Error()
	}
	r.EndedAt = time.Now().UTC()
	return nil
}

// Succeeded reports whether every required stage reached Succeeded or
// Cached.
func (r *BuildRun) Succeeded() bool {
	for _, stage := range Stages() {
		res, ok := r.Stages[stage]
		if !ok || !res.Successful() {
			return false
		}
	}
	return true
}

// Snapshot returns a deep copy safe to hand outside the orchestrator's
// event loop.
func (r *BuildRun) Snapshot() BuildRun {
	out := *r
	out.Stages = make(map[Stage]StageResult, len(r.Stages))
	for stage, res := range r.Stages {
		out.Stages[stage] = res
	}
	return out
}
