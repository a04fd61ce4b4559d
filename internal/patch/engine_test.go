package patch_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/zerr"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/patch"
)

func testManifest(name string) domain.EnvironmentManifest {
	return domain.EnvironmentManifest{
		Environment: domain.EnvironmentSection{
			Name:     name,
			Packages: []string{"python@3.11"},
		},
		Resolver: domain.ResolverSection{
			Unify:    true,
			TargetOS: "ubuntu22.04",
		},
		Container: domain.ContainerSection{
			BuilderImage: "docker://spack/ubuntu-jammy:latest",
			BaseImage:    "docker://ubuntu:22.04",
		},
	}
}

func TestEngine_Resolve_FirstMatchWins(t *testing.T) {
	engine, err := patch.New([]domain.PatchRule{
		{
			Name:     "gpu-environments",
			Pattern:  `^gpu-`,
			Override: domain.Override{Image: "docker://nvidia/cuda:12.4.0-runtime-ubuntu22.04"},
		},
		{
			Name:     "all-environments",
			Pattern:  `.*`,
			Override: domain.Override{Image: "docker://ubuntu:24.04"},
		},
	})
	require.NoError(t, err)

	resolved, rule := engine.Resolve(testManifest("gpu-simulation"))

	require.NotNil(t, rule)
	assert.Equal(t, "gpu-environments", rule.Name)
	assert.Equal(t, "docker://nvidia/cuda:12.4.0-runtime-ubuntu22.04", resolved.Container.PrebuiltImage)
	assert.True(t, resolved.Prebuilt())
}

func TestEngine_Resolve_LaterRuleMatches(t *testing.T) {
	engine, err := patch.New([]domain.PatchRule{
		{
			Name:     "gpu-environments",
			Pattern:  `^gpu-`,
			Override: domain.Override{Image: "docker://nvidia/cuda:12.4.0-runtime-ubuntu22.04"},
		},
		{
			Name:     "legacy-environments",
			Pattern:  `-legacy$`,
			Override: domain.Override{Image: "docker://ubuntu:18.04"},
		},
	})
	require.NoError(t, err)

	resolved, rule := engine.Resolve(testManifest("ocean-legacy"))

	require.NotNil(t, rule)
	assert.Equal(t, "legacy-environments", rule.Name)
	assert.Equal(t, "docker://ubuntu:18.04", resolved.Container.PrebuiltImage)
}

func TestEngine_Resolve_NoMatchPassesThrough(t *testing.T) {
	engine, err := patch.New([]domain.PatchRule{
		{
			Name:     "gpu-environments",
			Pattern:  `^gpu-`,
			Override: domain.Override{Image: "docker://nvidia/cuda:12.4.0-runtime-ubuntu22.04"},
		},
	})
	require.NoError(t, err)

	in := testManifest("ocean-modeling")
	resolved, rule := engine.Resolve(in)

	assert.Nil(t, rule)
	assert.Equal(t, in, resolved)
	assert.False(t, resolved.Prebuilt())
}

func TestEngine_Resolve_DoesNotModifyInput(t *testing.T) {
	engine, err := patch.New([]domain.PatchRule{
		{
			Name:     "all-environments",
			Pattern:  `.*`,
			Override: domain.Override{Image: "docker://ubuntu:24.04"},
		},
	})
	require.NoError(t, err)

	in := testManifest("ocean-modeling")
	resolved, rule := engine.Resolve(in)

	require.NotNil(t, rule)
	assert.Empty(t, in.Container.PrebuiltImage)
	assert.Equal(t, "docker://ubuntu:24.04", resolved.Container.PrebuiltImage)
}

func TestEngine_Resolve_NoRules(t *testing.T) {
	engine, err := patch.New(nil)
	require.NoError(t, err)

	in := testManifest("ocean-modeling")
	resolved, rule := engine.Resolve(in)

	assert.Nil(t, rule)
	assert.Equal(t, in, resolved)
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := patch.New([]domain.PatchRule{
		{Name: "broken", Pattern: `(`},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidPatchRule))

	var zErr *zerr.Error
	require.ErrorAs(t, err, &zErr)
	assert.Equal(t, `(`, zErr.Metadata()["pattern"])
}
