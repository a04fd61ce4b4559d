package domain

import "go.trai.ch/zerr"

var (
	// ErrInvalidSpec is returned when an input spec fails validation. It is
	// never retried and surfaces immediately.
	ErrInvalidSpec = zerr.New("invalid environment spec")

	// ErrConcretization is returned when the package manager cannot resolve
	// the manifest into a pinned environment (e.g. an unsatisfiable package
	// set). Re-running with the same input would reproduce it, so it is not
	// retried.
	ErrConcretization = zerr.New("environment concretization failed")

	// ErrImageBuild is returned when the container build tool fails to
	// produce the environment image.
	ErrImageBuild = zerr.New("image build failed")

	// ErrModuleGeneration is returned when module template selection or
	// rendering fails.
	ErrModuleGeneration = zerr.New("module file generation failed")

	// ErrToolInvocation is returned on a process-level failure invoking an
	// external tool: it could not start, was signalled, or exceeded its
	// invocation timeout. Stage executors may retry it a bounded number of
	// times before surfacing it.
	ErrToolInvocation = zerr.New("tool invocation failed")

	// ErrToolExited is returned when an external tool ran to completion but
	// exited non-zero. Executors map it to their stage-specific error.
	ErrToolExited = zerr.New("tool exited with non-zero status")

	// ErrPush is returned when pushing the artifact set to the registry
	// fails after the retry policy is exhausted.
	ErrPush = zerr.New("artifact push failed")

	// ErrRunNotFound is returned when a requested run identifier is unknown.
	ErrRunNotFound = zerr.New("run not found")

	// ErrRunCancelled is recorded as the failure reason of a run that was
	// cancelled before completing.
	ErrRunCancelled = zerr.New("run cancelled")

	// ErrRunAlreadyTerminal is returned when attempting to transition a run
	// out of an absorbing terminal state.
	ErrRunAlreadyTerminal = zerr.New("run already in a terminal state")

	// ErrInvalidRunTransition is returned on a run state transition the
	// lifecycle does not permit.
	ErrInvalidRunTransition = zerr.New("invalid run state transition")

	// ErrStageAlreadyRecorded is returned when a terminal stage result
	// would be overwritten. Stage results are written exactly once.
	ErrStageAlreadyRecorded = zerr.New("stage result already recorded")

	// ErrStageNotFound is returned when a stage name is not part of the run.
	ErrStageNotFound = zerr.New("stage not found")

	// ErrUnknownStage is returned when a dispatcher receives a job for a
	// stage it has no executor for.
	ErrUnknownStage = zerr.New("no executor registered for stage")

	// ErrStageAlreadyExists is returned when adding a stage that is already
	// part of the graph.
	ErrStageAlreadyExists = zerr.New("stage already exists")

	// ErrMissingDependency is returned when a stage depends on a stage that
	// is not part of the graph.
	ErrMissingDependency = zerr.New("missing dependency")

	// ErrCycleDetected is returned when the stage dependency graph contains
	// a cycle.
	ErrCycleDetected = zerr.New("cycle detected")

	// ErrCacheConflict is returned when storing a fingerprint that already
	// exists with a different output reference. Cache entries are immutable
	// once written; a conflicting store is a logic error in the caller.
	ErrCacheConflict = zerr.New("conflicting cache entry")

	// ErrStoreCreateFailed is returned when a store directory cannot be
	// created.
	ErrStoreCreateFailed = zerr.New("failed to create store directory")

	// ErrStoreReadFailed is returned when store contents cannot be read.
	ErrStoreReadFailed = zerr.New("failed to read store")

	// ErrStoreWriteFailed is returned when store contents cannot be written.
	ErrStoreWriteFailed = zerr.New("failed to write store")

	// ErrStoreMarshalFailed is returned when store contents cannot be
	// marshaled.
	ErrStoreMarshalFailed = zerr.New("failed to marshal store contents")

	// ErrStoreUnmarshalFailed is returned when store contents cannot be
	// unmarshaled.
	ErrStoreUnmarshalFailed = zerr.New("failed to unmarshal store contents")

	// ErrConfigNotFound is returned when no forge.yaml can be found.
	ErrConfigNotFound = zerr.New("could not find forge.yaml")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be
	// parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrConfigInvalid is returned when the config file fails validation.
	ErrConfigInvalid = zerr.New("invalid configuration")

	// ErrInvalidPatchRule is returned when a patch rule pattern does not
	// compile.
	ErrInvalidPatchRule = zerr.New("invalid patch rule pattern")

	// ErrInvalidTemplatePattern is returned when a module template pattern
	// does not compile.
	ErrInvalidTemplatePattern = zerr.New("invalid template pattern")

	// ErrTemplateNotFound is returned when a referenced template file does
	// not exist.
	ErrTemplateNotFound = zerr.New("template not found")

	// ErrTemplateParseFailed is returned when a template cannot be parsed.
	ErrTemplateParseFailed = zerr.New("failed to parse template")

	// ErrManifestRenderFailed is returned when a manifest cannot be
	// serialized.
	ErrManifestRenderFailed = zerr.New("failed to render manifest")

	// ErrWorkspaceCreateFailed is returned when a run workspace directory
	// cannot be created.
	ErrWorkspaceCreateFailed = zerr.New("failed to create run workspace")

	// ErrSecretFetchFailed is returned when a secret cannot be fetched from
	// the configured secret source.
	ErrSecretFetchFailed = zerr.New("failed to fetch secret")
)
