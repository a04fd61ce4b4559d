package domain

// PatchRule overrides part of the image build plan for environments whose
// name matches a pattern. Rules are loaded once at process start and
// evaluated in configured order; the first match wins.
type PatchRule struct {
	// Name labels the rule in logs and run records.
	Name string `json:"name" yaml:"name"`

	// Pattern is a regular expression tested against the environment name.
	Pattern string `json:"pattern" yaml:"pattern"`

	// Override is applied to the manifest when the pattern matches.
	Override Override `json:"override" yaml:"override"`
}

// Override is the partial stage configuration a patch rule installs.
type Override struct {
	// Image is a prebuilt image reference that replaces the from-source
	// build for the matched environment.
	Image string `json:"image,omitempty" yaml:"image,omitempty"`
}
