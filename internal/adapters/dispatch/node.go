package dispatch

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/forge/internal/adapters/config" //nolint:depguard // Wired in adapter wiring
	"go.trai.ch/forge/internal/adapters/logger" //nolint:depguard // Wired in adapter wiring
	"go.trai.ch/forge/internal/core/ports"
	"go.trai.ch/forge/internal/stages" //nolint:depguard // Wired in adapter wiring
)

// NodeID is the unique identifier for the stage dispatcher Graft node.
const NodeID graft.ID = "adapter.dispatch"

// AgentNodeID is the unique identifier for the agent server Graft node.
const AgentNodeID graft.ID = "adapter.dispatch.agent"

func init() {
	graft.Register(graft.Node[ports.Dispatcher]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.NodeID, logger.NodeID, stages.NodeID},
		Run: func(ctx context.Context) (ports.Dispatcher, error) {
			cfg, err := graft.Dep[*config.Config](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			if cfg.Dispatch.Mode == config.DispatchModeRemote {
				return NewRemoteDispatcher(cfg.Dispatch.AgentURL, cfg.Dispatch.RequestTimeout.Std(), log), nil
			}

			executors, err := graft.Dep[[]ports.StageExecutor](ctx)
			if err != nil {
				return nil, err
			}
			return NewLocalDispatcher(executors, cfg.Dispatch.Parallelism), nil
		},
	})

	graft.Register(graft.Node[*Agent]{
		ID:        AgentNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.NodeID, logger.NodeID, stages.NodeID},
		Run: func(ctx context.Context) (*Agent, error) {
			cfg, err := graft.Dep[*config.Config](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			executors, err := graft.Dep[[]ports.StageExecutor](ctx)
			if err != nil {
				return nil, err
			}

			// The agent always executes in-process, whatever dispatch mode
			// the submitting side runs in.
			local := NewLocalDispatcher(executors, cfg.Dispatch.Parallelism)
			return NewAgent(local, log, cfg.Dispatch.Listen), nil
		},
	})
}
