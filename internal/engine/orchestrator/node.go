package orchestrator

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/forge/internal/adapters/config"    //nolint:depguard // Wired in engine wiring
	"go.trai.ch/forge/internal/adapters/dispatch"  //nolint:depguard // Wired in engine wiring
	"go.trai.ch/forge/internal/adapters/logger"    //nolint:depguard // Wired in engine wiring
	"go.trai.ch/forge/internal/adapters/registry"  //nolint:depguard // Wired in engine wiring
	"go.trai.ch/forge/internal/adapters/runstore"  //nolint:depguard // Wired in engine wiring
	"go.trai.ch/forge/internal/adapters/telemetry" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/forge/internal/core/ports"
)

// NodeID is the unique identifier for the orchestrator Graft node.
const NodeID graft.ID = "engine.orchestrator"

func init() {
	graft.Register(graft.Node[*Orchestrator]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			logger.NodeID,
			telemetry.TracerNodeID,
			dispatch.NodeID,
			registry.NodeID,
			runstore.NodeID,
		},
		Run: func(ctx context.Context) (*Orchestrator, error) {
			cfg, err := graft.Dep[*config.Config](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			tracer, err := graft.Dep[ports.Tracer](ctx)
			if err != nil {
				return nil, err
			}
			dispatcher, err := graft.Dep[ports.Dispatcher](ctx)
			if err != nil {
				return nil, err
			}
			client, err := graft.Dep[ports.RegistryClient](ctx)
			if err != nil {
				return nil, err
			}
			runs, err := graft.Dep[ports.RunStore](ctx)
			if err != nil {
				return nil, err
			}
			return New(dispatcher, client, runs, log, tracer, cfg.Workspace.Root), nil
		},
	})
}
