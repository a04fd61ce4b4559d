package domain_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/zerr"

	"go.trai.ch/forge/internal/core/domain"
)

func TestPipelineGraph(t *testing.T) {
	g, err := domain.PipelineGraph()
	require.NoError(t, err)
	require.Equal(t, 4, g.Len())

	var order []domain.Stage
	for node := range g.Walk() {
		order = append(order, node.Stage)
	}

	require.Len(t, order, 4)
	assert.Equal(t, domain.StageConcretize, order[0], "concretize has no dependencies")
	assert.Equal(t, domain.StagePushArtifacts, order[3], "push depends on everything else")

	idx := func(s domain.Stage) int { return slices.Index(order, s) }
	assert.Less(t, idx(domain.StageConcretize), idx(domain.StageBuildImage))
	assert.Less(t, idx(domain.StageConcretize), idx(domain.StageGenerateModule))
	assert.Less(t, idx(domain.StageBuildImage), idx(domain.StagePushArtifacts))
	assert.Less(t, idx(domain.StageGenerateModule), idx(domain.StagePushArtifacts))
}

func TestGraph_Walk_Deterministic(t *testing.T) {
	build := func() []domain.Stage {
		g, err := domain.PipelineGraph()
		require.NoError(t, err)
		var order []domain.Stage
		for node := range g.Walk() {
			order = append(order, node.Stage)
		}
		return order
	}

	first := build()
	for range 20 {
		assert.Equal(t, first, build())
	}
}

func TestGraph_Dependents(t *testing.T) {
	g, err := domain.PipelineGraph()
	require.NoError(t, err)

	assert.Equal(t,
		[]domain.Stage{domain.StageBuildImage, domain.StageGenerateModule},
		g.Dependents(domain.StageConcretize))
	assert.Equal(t,
		[]domain.Stage{domain.StagePushArtifacts},
		g.Dependents(domain.StageBuildImage))
	assert.Empty(t, g.Dependents(domain.StagePushArtifacts))
}

func TestGraph_AddStage_Duplicate(t *testing.T) {
	g := domain.NewGraph()
	require.NoError(t, g.AddStage(domain.StageNode{Stage: domain.StageConcretize}))

	err := g.AddStage(domain.StageNode{Stage: domain.StageConcretize})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStageAlreadyExists))
}

func TestGraph_Validate_MissingDependency(t *testing.T) {
	g := domain.NewGraph()
	require.NoError(t, g.AddStage(domain.StageNode{
		Stage:     domain.StageBuildImage,
		DependsOn: []domain.Stage{domain.StageConcretize},
	}))

	err := g.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMissingDependency))
}

func TestGraph_Validate_Cycle(t *testing.T) {
	g := domain.NewGraph()
	require.NoError(t, g.AddStage(domain.StageNode{
		Stage:     "a",
		DependsOn: []domain.Stage{"b"},
	}))
	require.NoError(t, g.AddStage(domain.StageNode{
		Stage:     "b",
		DependsOn: []domain.Stage{"a"},
	}))

	err := g.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrCycleDetected))

	zErr, ok := err.(*zerr.Error)
	require.True(t, ok, "expected *zerr.Error, got %T", err)
	assert.Contains(t, zErr.Metadata()["cycle"], "->")
}
