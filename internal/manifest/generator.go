// Package manifest derives environment manifests from input specs.
package manifest

import (
	"slices"

	"go.trai.ch/forge/internal/core/domain"
)

// Options carries the workspace-level manifest policy. The same options
// applied to the same spec always yield the same manifest.
type Options struct {
	// TargetOS is the operating system environments are resolved for.
	TargetOS string

	// Unify requests a single unified solve for the whole requirement list.
	Unify bool

	// BuilderImage hosts the from-source build stage.
	BuilderImage string

	// BaseImage is the runtime stage the environment is copied into.
	BaseImage string
}

// Generator derives environment manifests from validated input specs.
type Generator struct {
	opts Options
}

// NewGenerator creates a Generator with the given policy.
func NewGenerator(opts Options) *Generator {
	return &Generator{opts: opts}
}

// Generate derives the manifest for a spec. Generation is pure: identical
// specs yield identical manifests, and rendering a manifest yields
// byte-identical output for identical values.
func (g *Generator) Generate(spec domain.InputSpec) (domain.EnvironmentManifest, error) {
	if err := spec.Validate(); err != nil {
		return domain.EnvironmentManifest{}, err
	}

	return domain.EnvironmentManifest{
		Environment: domain.EnvironmentSection{
			Name:        spec.Name,
			Description: spec.Description,
			Packages:    slices.Clone(spec.Packages),
		},
		Resolver: domain.ResolverSection{
			Unify:    g.opts.Unify,
			TargetOS: g.opts.TargetOS,
		},
		Container: domain.ContainerSection{
			BuilderImage: g.opts.BuilderImage,
			BaseImage:    g.opts.BaseImage,
		},
	}, nil
}
