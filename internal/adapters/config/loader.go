// Package config provides the configuration loader for forge.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Loader discovers and reads the forge.yaml configuration file.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// Load resolves the effective configuration for the given working directory.
// Layering order: built-in defaults, then the first forge.yaml found walking
// up from cwd, then environment variable overrides.
// A missing configuration file is not an error; defaults apply.
func (l *Loader) Load(cwd string) (*Config, error) {
	cfg := DefaultConfig()
	base := cwd

	configPath, err := l.findConfiguration(cwd)
	switch {
	case err == nil:
		if err := readAndUnmarshalYAML(configPath, cfg); err != nil {
			return nil, err
		}
		base = filepath.Dir(configPath)
	case errors.Is(err, domain.ErrConfigNotFound):
		l.Logger.Warn(fmt.Sprintf("%s not found, using built-in defaults", domain.ConfigFileName))
	default:
		return nil, err
	}

	cfg.Workspace.Root = resolveRoot(base, cfg.Workspace.Root)

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfiguration walks up from cwd looking for forge.yaml.
func (l *Loader) findConfiguration(cwd string) (string, error) {
	currentDir := cwd

	for {
		configPath := filepath.Join(currentDir, domain.ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root
			break
		}
		currentDir = parentDir
	}

	return "", zerr.With(domain.ErrConfigNotFound, "cwd", cwd)
}

// resolveRoot resolves a workspace root relative to the directory the
// configuration was found in.
func resolveRoot(base, root string) string {
	if root == "" {
		root = domain.DefaultForgePath()
	}
	if filepath.IsAbs(root) {
		return filepath.Clean(root)
	}
	return filepath.Join(base, root)
}

// applyEnvOverrides layers credential and endpoint overrides from the
// environment on top of the file configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FORGE_REGISTRY_ENDPOINT"); v != "" {
		cfg.Registry.Endpoint = v
	}
	if v := os.Getenv("FORGE_REGISTRY_ACCESS_KEY"); v != "" {
		cfg.Registry.AccessKey = v
	}
	if v := os.Getenv("FORGE_REGISTRY_SECRET_KEY"); v != "" {
		cfg.Registry.SecretKey = v
	}
	if v := os.Getenv("FORGE_AGENT_URL"); v != "" {
		cfg.Dispatch.AgentURL = v
	}
	if v := os.Getenv("VAULT_ADDR"); v != "" {
		cfg.Vault.Address = v
	}
	if v := os.Getenv("VAULT_TOKEN"); v != "" {
		cfg.Vault.Token = v
	}
}

func readAndUnmarshalYAML(path string, out any) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is discovered from the user's working directory
	if err != nil {
		return zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return zerr.Wrap(err, domain.ErrConfigParseFailed.Error())
	}

	return nil
}
