package ports

import (
	"context"

	"go.trai.ch/forge/internal/core/domain"
)

// RegistryClient pushes artifact sets to the remote artifact registry.
//
//go:generate go run go.uber.org/mock/mockgen -source=registry.go -destination=mocks/mock_registry.go -package=mocks
type RegistryClient interface {
	// Push uploads every file of the set. Transient failures are retried
	// with bounded exponential backoff; non-transient failures fail
	// immediately. The returned PushResult always reports the terminal
	// state of every sub-upload, even when the push as a whole failed.
	Push(ctx context.Context, set domain.ArtifactSet) (domain.PushResult, error)

	// NextVersion computes the version the environment's next push should
	// use, derived from the versions already present in the registry.
	NextVersion(ctx context.Context, environment string) (string, error)
}
