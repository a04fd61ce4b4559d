package config

import (
	"time"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Dispatch modes.
const (
	// DispatchModeLocal executes stages in-process.
	DispatchModeLocal = "local"
	// DispatchModeRemote posts stages to a forge agent.
	DispatchModeRemote = "remote"
)

// Duration is a time.Duration that unmarshals from Go duration strings
// ("90s", "30m") in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return zerr.Wrap(err, domain.ErrConfigParseFailed.Error())
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrConfigParseFailed.Error()), "duration", raw)
	}

	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the resolved forge configuration with defaults and overrides
// applied.
type Config struct {
	Workspace   WorkspaceConfig   `yaml:"workspace"`
	Concretizer ConcretizerConfig `yaml:"concretizer"`
	Builder     BuilderConfig     `yaml:"builder"`
	Modules     ModulesConfig     `yaml:"modules"`
	Patches     []PatchRuleDTO    `yaml:"patches"`
	Registry    RegistryConfig    `yaml:"registry"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Logging     LoggingConfig     `yaml:"logging"`
	Vault       VaultConfig       `yaml:"vault"`
}

// WorkspaceConfig controls where forge keeps run workspaces and caches.
type WorkspaceConfig struct {
	Root string `yaml:"root"`
}

// ConcretizerConfig controls the package-manager resolver invocation.
type ConcretizerConfig struct {
	Command  string   `yaml:"command"`
	TargetOS string   `yaml:"targetOS"`
	Unify    bool     `yaml:"unify"`
	Timeout  Duration `yaml:"timeout"`
	Retries  int      `yaml:"retries"`
}

// BuilderConfig controls the container image build invocation.
type BuilderConfig struct {
	Command      string   `yaml:"command"`
	BuilderImage string   `yaml:"builderImage"`
	BaseImage    string   `yaml:"baseImage"`
	Bind         string   `yaml:"bind"`
	CacheDir     string   `yaml:"cacheDir"`
	Timeout      Duration `yaml:"timeout"`
	Retries      int      `yaml:"retries"`
}

// ModulesConfig controls module file template selection.
type ModulesConfig struct {
	Templates []ModuleTemplate `yaml:"templates"`
	Default   string           `yaml:"default"`
}

// ModuleTemplate maps an environment name pattern to a template file.
type ModuleTemplate struct {
	Pattern string `yaml:"pattern"`
	Path    string `yaml:"path"`
}

// PatchRuleDTO represents a patch rule declaration in the configuration.
type PatchRuleDTO struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	Image   string `yaml:"image"`
}

// RegistryConfig controls the artifact registry connection and retry policy.
type RegistryConfig struct {
	Endpoint        string   `yaml:"endpoint"`
	Bucket          string   `yaml:"bucket"`
	Region          string   `yaml:"region"`
	AccessKey       string   `yaml:"accessKey"`
	SecretKey       string   `yaml:"secretKey"`
	UseSSL          bool     `yaml:"useSSL"`
	CredentialsPath string   `yaml:"credentialsPath"`
	MaxRetries      int      `yaml:"maxRetries"`
	RetryBaseDelay  Duration `yaml:"retryBaseDelay"`
	RetryMaxDelay   Duration `yaml:"retryMaxDelay"`
}

// DispatchConfig controls how stages are dispatched for execution.
type DispatchConfig struct {
	Mode           string   `yaml:"mode"`
	Parallelism    int      `yaml:"parallelism"`
	AgentURL       string   `yaml:"agentURL"`
	Listen         string   `yaml:"listen"`
	RequestTimeout Duration `yaml:"requestTimeout"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	JSON bool `yaml:"json"`
}

// VaultConfig controls the optional Vault connection for secret lookups.
type VaultConfig struct {
	Address string `yaml:"address"`
	Token   string `yaml:"token"`
}

// DefaultConfig returns the built-in configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Root: domain.DefaultForgePath(),
		},
		Concretizer: ConcretizerConfig{
			Command:  "spack",
			TargetOS: "ubuntu22.04",
			Unify:    true,
			Timeout:  Duration(30 * time.Minute),
			Retries:  2,
		},
		Builder: BuilderConfig{
			Command:      "singularity",
			BuilderImage: "docker://spack/ubuntu-jammy:latest",
			BaseImage:    "docker://ubuntu:22.04",
			Bind:         "/tmp",
			Timeout:      Duration(time.Hour),
			Retries:      1,
		},
		Registry: RegistryConfig{
			Endpoint:       "localhost:9000",
			Bucket:         "forge-artifacts",
			UseSSL:         false,
			MaxRetries:     4,
			RetryBaseDelay: Duration(500 * time.Millisecond),
			RetryMaxDelay:  Duration(8 * time.Second),
		},
		Dispatch: DispatchConfig{
			Mode:           DispatchModeLocal,
			Parallelism:    4,
			Listen:         ":8640",
			RequestTimeout: Duration(10 * time.Minute),
		},
	}
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	switch c.Dispatch.Mode {
	case DispatchModeLocal, DispatchModeRemote:
	default:
		return zerr.With(domain.ErrConfigInvalid, "dispatch_mode", c.Dispatch.Mode)
	}

	if c.Dispatch.Parallelism < 1 {
		return zerr.With(domain.ErrConfigInvalid, "parallelism", c.Dispatch.Parallelism)
	}

	if c.Dispatch.Mode == DispatchModeRemote && c.Dispatch.AgentURL == "" {
		return zerr.With(domain.ErrConfigInvalid, "reason", "agentURL is required in remote mode")
	}

	if c.Concretizer.Retries < 0 || c.Builder.Retries < 0 || c.Registry.MaxRetries < 0 {
		return zerr.With(domain.ErrConfigInvalid, "reason", "retry counts must not be negative")
	}

	return nil
}

// CacheIndexPath returns the cache store index path under the workspace root.
func (c *Config) CacheIndexPath() string {
	return domain.DefaultCacheIndexPath(c.Workspace.Root)
}

// RunsPath returns the runs directory under the workspace root.
func (c *Config) RunsPath() string {
	return domain.DefaultRunsPath(c.Workspace.Root)
}
