package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/forge/internal/adapters/config"   //nolint:depguard // Wired in app layer
	"go.trai.ch/forge/internal/adapters/dispatch" //nolint:depguard // Wired in app layer
	"go.trai.ch/forge/internal/adapters/logger"   //nolint:depguard // Wired in app layer
	"go.trai.ch/forge/internal/core/ports"
	"go.trai.ch/forge/internal/engine/orchestrator"
	"go.trai.ch/forge/internal/manifest"
	"go.trai.ch/forge/internal/patch"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	// App Node
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			manifest.NodeID,
			patch.NodeID,
			orchestrator.NodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*App, error) {
			generator, err := graft.Dep[*manifest.Generator](ctx)
			if err != nil {
				return nil, err
			}

			patcher, err := graft.Dep[*patch.Engine](ctx)
			if err != nil {
				return nil, err
			}

			orch, err := graft.Dep[*orchestrator.Orchestrator](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return New(generator, patcher, orch, log), nil
		},
	})

	// Components Node
	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
			config.NodeID,
			dispatch.AgentNodeID,
		},
		Run: runComponentsNode,
	})
}

func runComponentsNode(ctx context.Context) (*Components, error) {
	application, err := graft.Dep[*App](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	cfg, err := graft.Dep[*config.Config](ctx)
	if err != nil {
		return nil, err
	}

	agent, err := graft.Dep[*dispatch.Agent](ctx)
	if err != nil {
		return nil, err
	}

	if cfg.Logging.JSON {
		log.SetJSON(true)
	}

	return &Components{
		App:    application,
		Logger: log,
		Agent:  agent,
	}, nil
}
