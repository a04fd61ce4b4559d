package domain

import (
	"strings"
	"time"
)

// Stage identifies one unit of pipeline work.
type Stage string

const (
	// StageConcretize resolves the manifest into a pinned environment and
	// lock file.
	StageConcretize Stage = "concretize"
	// StageBuildImage builds the container image for the concretized
	// environment.
	StageBuildImage Stage = "build-image"
	// StageGenerateModule renders the environment module file.
	StageGenerateModule Stage = "generate-module"
	// StagePushArtifacts pushes the artifact set to the registry.
	StagePushArtifacts Stage = "push-artifacts"
)

// Stages returns all pipeline stages in dependency order.
func Stages() []Stage {
	return []Stage{StageConcretize, StageBuildImage, StageGenerateModule, StagePushArtifacts}
}

// StageStatus represents the lifecycle state of a stage within a run.
type StageStatus string

const (
	// StageStatusPending indicates the stage is waiting for dependencies or
	// scheduling.
	StageStatusPending StageStatus = "pending"
	// StageStatusRunning indicates the stage is currently executing.
	StageStatusRunning StageStatus = "running"
	// StageStatusSucceeded indicates the stage executed successfully.
	StageStatusSucceeded StageStatus = "succeeded"
	// StageStatusFailed indicates the stage execution failed.
	StageStatusFailed StageStatus = "failed"
	// StageStatusCached indicates the stage was skipped because its
	// fingerprint matched a cached output.
	StageStatusCached StageStatus = "cached"
)

// IsTerminal checks if a status is a terminal state.
func (s StageStatus) IsTerminal() bool {
	switch s {
	case StageStatusSucceeded, StageStatusFailed, StageStatusCached:
		return true
	default:
		return false
	}
}

// IsSuccessful checks if a status satisfies a dependent stage's ordering
// requirement (Succeeded or Cached).
func (s StageStatus) IsSuccessful() bool {
	return s == StageStatusSucceeded || s == StageStatusCached
}

// NormalizeStageStatus converts a string to a StageStatus, defaulting to
// pending if unknown. Useful at deserialization boundaries.
func NormalizeStageStatus(s string) StageStatus {
	switch strings.ToLower(s) {
	case string(StageStatusPending):
		return StageStatusPending
	case string(StageStatusRunning):
		return StageStatusRunning
	case string(StageStatusSucceeded):
		return StageStatusSucceeded
	case string(StageStatusFailed):
		return StageStatusFailed
	case string(StageStatusCached):
		return StageStatusCached
	default:
		return StageStatusPending
	}
}

// StageResult is the immutable outcome of one stage within one run. It is
// written exactly once by the stage's executor and then passed by value to
// dependent stages, so dependents may read it without synchronization.
type StageResult struct {
	Stage       Stage       `json:"stage"`
	Status      StageStatus `json:"status"`
	OutputRef   string      `json:"output_ref,omitzero"`
	Fingerprint Fingerprint `json:"fingerprint,omitzero"`
	Error       string      `json:"error,omitzero"`
	Attempts    int         `json:"attempts,omitzero"`
	StartedAt   time.Time   `json:"started_at,omitzero"`
	EndedAt     time.Time   `json:"ended_at,omitzero"`
}

// Successful reports whether the result satisfies dependents (Succeeded or
// Cached).
func (r StageResult) Successful() bool {
	return r.Status.IsSuccessful()
}

// StageJob is the self-contained input handed to a stage executor. It
// carries everything the stage needs so execution does not depend on where
// the executor runs: the manifest, the run workspace, the artifact version
// assigned to the run and the terminal results of the stage's dependencies.
type StageJob struct {
	RunID     string                `json:"run_id"`
	Stage     Stage                 `json:"stage"`
	Manifest  EnvironmentManifest   `json:"manifest"`
	Workspace string                `json:"workspace"`
	Version   string                `json:"version,omitzero"`
	CreatedAt time.Time             `json:"created_at,omitzero"`
	Results   map[Stage]StageResult `json:"results,omitempty"`
}

// Dependency returns the terminal result of a dependency stage.
func (j StageJob) Dependency(stage Stage) (StageResult, bool) {
	res, ok := j.Results[stage]
	return res, ok
}
