package domain_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/zerr"

	"go.trai.ch/forge/internal/core/domain"
)

func TestInputSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    domain.InputSpec
		wantErr bool
	}{
		{
			name: "valid spec",
			spec: domain.InputSpec{
				Name:     "myenv",
				Packages: []string{"python@3.11", "numpy"},
			},
		},
		{
			name: "valid spec with version qualifiers",
			spec: domain.InputSpec{
				Name:     "rstudio-4",
				Packages: []string{"r@4.4.1", "r-ggplot2@3.5.0"},
			},
		},
		{
			name:    "empty name",
			spec:    domain.InputSpec{Packages: []string{"python"}},
			wantErr: true,
		},
		{
			name: "name with path separator",
			spec: domain.InputSpec{
				Name:     "my/env",
				Packages: []string{"python"},
			},
			wantErr: true,
		},
		{
			name:    "empty package list",
			spec:    domain.InputSpec{Name: "myenv"},
			wantErr: true,
		},
		{
			name: "malformed requirement",
			spec: domain.InputSpec{
				Name:     "myenv",
				Packages: []string{"python@@3.11"},
			},
			wantErr: true,
		},
		{
			name: "requirement with shell metacharacters",
			spec: domain.InputSpec{
				Name:     "myenv",
				Packages: []string{"python; rm -rf /"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrInvalidSpec), "expected ErrInvalidSpec, got %v", err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestInputSpec_Validate_Metadata(t *testing.T) {
	spec := domain.InputSpec{
		Name:     "myenv",
		Packages: []string{"good", "bad requirement"},
	}

	err := spec.Validate()
	require.Error(t, err)

	zErr, ok := err.(*zerr.Error)
	require.True(t, ok, "expected *zerr.Error, got %T", err)

	meta := zErr.Metadata()
	assert.Equal(t, "bad requirement", meta["package"])
}

func TestParseInputSpec(t *testing.T) {
	data := []byte(`name: ocean-modeling
description: Ocean modeling stack
packages:
  - python@3.11
  - numpy
`)

	spec, err := domain.ParseInputSpec(data)
	require.NoError(t, err)
	assert.Equal(t, "ocean-modeling", spec.Name)
	assert.Equal(t, "Ocean modeling stack", spec.Description)
	assert.Equal(t, []string{"python@3.11", "numpy"}, spec.Packages)
}

func TestParseInputSpec_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{
			name: "malformed yaml",
			data: "name: [unterminated",
		},
		{
			name: "empty package list",
			data: "name: ocean-modeling\npackages: []\n",
		},
		{
			name: "malformed requirement",
			data: "name: ocean-modeling\npackages:\n  - \"bad requirement\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.ParseInputSpec([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidSpec), "expected ErrInvalidSpec, got %v", err)
		})
	}
}
