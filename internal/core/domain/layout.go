package domain

import (
	"fmt"
	"path"
	"path/filepath"
)

const (
	// ForgeDirName is the name of the internal workspace directory.
	ForgeDirName = ".forge"

	// RunsDirName is the name of the per-run workspace directory.
	RunsDirName = "runs"

	// CacheDirName is the name of the cache directory.
	CacheDirName = "cache"

	// CacheIndexName is the name of the cache store index file.
	CacheIndexName = "index.json"

	// RunRecordName is the name of the run state snapshot inside a run
	// workspace.
	RunRecordName = "run.json"

	// ManifestFileName is the name of the rendered environment manifest
	// inside a run workspace.
	ManifestFileName = "manifest.yaml"

	// LockfileName is the name of the concretizer's pinned environment
	// output inside a run workspace.
	LockfileName = "environment.lock"

	// RecipeFilePattern is the name pattern of rendered container build
	// recipes, parameterized by build stage name.
	RecipeFilePattern = "recipe.%s.def"

	// ImageFileName is the name of the built container image.
	ImageFileName = "image.sif"

	// ModuleFileName is the name of the rendered environment module file.
	ModuleFileName = "module"

	// ConfigFileName is the name of the pipeline configuration file.
	ConfigFileName = "forge.yaml"

	// ArtifactRootPrefix is the registry key prefix all pushed artifact
	// sets live under.
	ArtifactRootPrefix = "envs"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644

	// PrivateFilePerm is the default permission for private files (rw-------).
	PrivateFilePerm = 0o600
)

// DefaultForgePath returns the default root directory for forge metadata.
func DefaultForgePath() string {
	return ForgeDirName
}

// DefaultCacheIndexPath returns the default path of the cache store index
// under a workspace root.
func DefaultCacheIndexPath(root string) string {
	return filepath.Join(root, CacheDirName, CacheIndexName)
}

// DefaultRunsPath returns the default path of the runs directory under a
// workspace root.
func DefaultRunsPath(root string) string {
	return filepath.Join(root, RunsDirName)
}

// RunWorkspacePath returns the workspace directory of a single run.
func RunWorkspacePath(root, runID string) string {
	return filepath.Join(root, RunsDirName, runID)
}

// RecipeFileName returns the name of the rendered build recipe for a build
// stage.
func RecipeFileName(stage string) string {
	return fmt.Sprintf(RecipeFilePattern, stage)
}

// ArtifactPrefix returns the registry key prefix holding an environment's
// pushed versions. The trailing slash makes it a listing prefix.
func ArtifactPrefix(environment string) string {
	return path.Join(ArtifactRootPrefix, environment) + "/"
}

// ArtifactKey returns the registry object key of one artifact file within a
// versioned set.
func ArtifactKey(environment, version, name string) string {
	return path.Join(ArtifactRootPrefix, environment, version, name)
}

// RunRecordPath returns the path of a run's state snapshot.
func RunRecordPath(root, runID string) string {
	return filepath.Join(RunWorkspacePath(root, runID), RunRecordName)
}
