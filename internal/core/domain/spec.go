// Package domain contains the core domain models and business logic for the
// environment build pipeline.
package domain

import (
	"regexp"

	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

var (
	// namePattern restricts environment names to characters that are safe in
	// filesystem paths, image tags and registry object keys.
	namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

	// requirementPattern matches a package requirement of the form
	// "name" or "name@version", e.g. "python@3.11" or "r-ggplot2".
	requirementPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.+-]*(@[a-zA-Z0-9][a-zA-Z0-9_.:+-]*)?$`)
)

// InputSpec is the validated environment request a front end hands to the
// pipeline. It is immutable once a run has been created from it.
type InputSpec struct {
	// Name uniquely identifies the environment, e.g. "rstudio-4".
	Name string `json:"name" yaml:"name"`

	// Description is free-form text carried into the module file.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Packages is the ordered list of package requirements.
	Packages []string `json:"packages" yaml:"packages"`
}

// ParseInputSpec decodes a YAML environment request and validates it.
func ParseInputSpec(data []byte) (InputSpec, error) {
	var spec InputSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return InputSpec{}, zerr.With(ErrInvalidSpec, "reason", err.Error())
	}
	if err := spec.Validate(); err != nil {
		return InputSpec{}, err
	}
	return spec, nil
}

// Validate checks the spec against the intake rules.
// It returns ErrInvalidSpec with metadata describing the first violation.
func (s InputSpec) Validate() error {
	if s.Name == "" {
		return zerr.With(ErrInvalidSpec, "reason", "name must not be empty")
	}
	if !namePattern.MatchString(s.Name) {
		err := zerr.With(ErrInvalidSpec, "reason", "name contains invalid characters")
		return zerr.With(err, "name", s.Name)
	}
	if len(s.Packages) == 0 {
		err := zerr.With(ErrInvalidSpec, "reason", "package list must not be empty")
		return zerr.With(err, "name", s.Name)
	}
	for _, pkg := range s.Packages {
		if !requirementPattern.MatchString(pkg) {
			err := zerr.With(ErrInvalidSpec, "reason", "malformed package requirement")
			return zerr.With(err, "package", pkg)
		}
	}
	return nil
}
