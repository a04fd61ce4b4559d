package domain

import (
	"gopkg.in/yaml.v3"

	"go.trai.ch/zerr"
)

// EnvironmentManifest is the declarative environment document derived from an
// InputSpec. It is owned by the run that created it: written once by the
// manifest generator (and possibly adjusted once by the patch resolver before
// the run starts), then only read.
//
// The struct deliberately contains no maps so that Render produces
// byte-identical output for identical values. Stage fingerprints are computed
// over the rendered bytes.
type EnvironmentManifest struct {
	// Environment carries the user-facing identity of the manifest.
	Environment EnvironmentSection `json:"environment" yaml:"environment"`

	// Resolver configures how the package manager concretizes the
	// requirement list.
	Resolver ResolverSection `json:"resolver" yaml:"resolver"`

	// Container describes the image build plan for the environment.
	Container ContainerSection `json:"container" yaml:"container"`
}

// EnvironmentSection holds the identity fields of a manifest.
type EnvironmentSection struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Packages    []string `json:"packages" yaml:"packages"`
}

// ResolverSection holds the concretizer policy.
type ResolverSection struct {
	// Unify requests a single unified solve for all requirements.
	Unify bool `json:"unify" yaml:"unify"`

	// TargetOS is the operating system the environment is resolved for,
	// expressed as a base image reference (e.g. "ubuntu:24.04").
	TargetOS string `json:"targetOS" yaml:"targetOS"`
}

// ContainerSection holds the two-stage image build plan. BuilderImage hosts
// the from-source build stage; BaseImage is the runtime stage the environment
// is copied into. A non-empty PrebuiltImage, installed by a patch rule,
// replaces the runtime stage entirely and skips the from-source build step.
type ContainerSection struct {
	BuilderImage  string `json:"builderImage" yaml:"builderImage"`
	BaseImage     string `json:"baseImage" yaml:"baseImage"`
	PrebuiltImage string `json:"prebuiltImage,omitempty" yaml:"prebuiltImage,omitempty"`
}

// Name returns the environment name the manifest was generated for.
func (m EnvironmentManifest) Name() string {
	return m.Environment.Name
}

// Prebuilt reports whether a patch rule replaced the from-source build with a
// prebuilt image reference.
func (m EnvironmentManifest) Prebuilt() bool {
	return m.Container.PrebuiltImage != ""
}

// WithOverride returns a copy of the manifest with the patch override
// applied. The receiver is not modified.
func (m EnvironmentManifest) WithOverride(o Override) EnvironmentManifest {
	if o.Image != "" {
		m.Container.PrebuiltImage = o.Image
	}
	return m
}

// Render serializes the manifest to YAML. Identical manifest values always
// produce byte-identical output.
func (m EnvironmentManifest) Render() ([]byte, error) {
	out, err := yaml.Marshal(m)
	if err != nil {
		return nil, zerr.Wrap(err, ErrManifestRenderFailed.Error())
	}
	return out, nil
}
