package domain

import (
	"iter"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// StageNode is one stage in the pipeline graph together with the stages it
// depends on.
type StageNode struct {
	Stage     Stage
	DependsOn []Stage
}

// Graph represents the stage dependency graph of a pipeline run.
type Graph struct {
	nodes          map[Stage]StageNode
	executionOrder []Stage
}

// NewGraph creates a new empty Graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[Stage]StageNode),
	}
}

// PipelineGraph builds the standard four-stage pipeline: Concretize feeds
// both Build Image and Generate Module, which both feed Push Artifacts.
// The graph is validated before returning.
func PipelineGraph() (*Graph, error) {
	g := NewGraph()
	stages := []StageNode{
		{Stage: StageConcretize},
		{Stage: StageBuildImage, DependsOn: []Stage{StageConcretize}},
		{Stage: StageGenerateModule, DependsOn: []Stage{StageConcretize}},
		{Stage: StagePushArtifacts, DependsOn: []Stage{StageBuildImage, StageGenerateModule}},
	}
	for _, node := range stages {
		if err := g.AddStage(node); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// AddStage adds a stage to the graph.
// It returns an error if the stage already exists.
func (g *Graph) AddStage(node StageNode) error {
	if _, exists := g.nodes[node.Stage]; exists {
		return zerr.With(ErrStageAlreadyExists, "stage", string(node.Stage))
	}
	g.nodes[node.Stage] = node
	return nil
}

// Len returns the number of stages in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the node for a stage.
func (g *Graph) Node(stage Stage) (StageNode, bool) {
	node, ok := g.nodes[stage]
	return node, ok
}

// Dependents returns the stages that directly depend on the given stage, in
// sorted order.
func (g *Graph) Dependents(stage Stage) []Stage {
	var dependents []Stage
	for name, node := range g.nodes {
		if slices.Contains(node.DependsOn, stage) {
			dependents = append(dependents, name)
		}
	}
	slices.Sort(dependents)
	return dependents
}

// Validate checks for unknown dependencies and cycles using a topological
// sort and populates the execution order. Roots are visited in sorted stage
// name order so the resulting order is deterministic.
func (g *Graph) Validate() error {
	g.executionOrder = make([]Stage, 0, len(g.nodes))
	visited := make(map[Stage]int) // 0: unvisited, 1: visiting, 2: visited
	var path []Stage

	var visit func(u Stage) error
	visit = func(u Stage) error {
		visited[u] = 1
		path = append(path, u)

		node, exists := g.nodes[u]
		if !exists {
			return zerr.With(ErrMissingDependency, "dependency", string(u))
		}

		for _, dep := range node.DependsOn {
			if visited[dep] == 1 {
				return g.buildCycleError(path, dep)
			}
			if visited[dep] == 0 {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		visited[u] = 2
		path = path[:len(path)-1]
		g.executionOrder = append(g.executionOrder, u)
		return nil
	}

	roots := make([]Stage, 0, len(g.nodes))
	for stage := range g.nodes {
		roots = append(roots, stage)
	}
	slices.Sort(roots)

	for _, stage := range roots {
		if visited[stage] == 0 {
			if err := visit(stage); err != nil {
				return err
			}
		}
	}

	return nil
}

// buildCycleError constructs an error with cycle path metadata.
func (g *Graph) buildCycleError(path []Stage, dep Stage) error {
	startIdx := slices.Index(path, dep)
	if startIdx < 0 {
		startIdx = 0
	}
	var b strings.Builder
	for i := startIdx; i < len(path); i++ {
		b.WriteString(string(path[i]))
		b.WriteString(" -> ")
	}
	b.WriteString(string(dep))
	return zerr.With(ErrCycleDetected, "cycle", b.String())
}

// Walk returns an iterator that yields stage nodes in execution order.
// It assumes Validate() has been called and returned nil.
func (g *Graph) Walk() iter.Seq[StageNode] {
	return func(yield func(StageNode) bool) {
		for _, stage := range g.executionOrder {
			if !yield(g.nodes[stage]) {
				return
			}
		}
	}
}
