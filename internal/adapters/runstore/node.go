package runstore

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/forge/internal/adapters/config" //nolint:depguard // Wired in adapter wiring
	"go.trai.ch/forge/internal/core/ports"
)

// NodeID is the unique identifier for the run store Graft node.
const NodeID graft.ID = "adapter.runstore"

func init() {
	graft.Register(graft.Node[ports.RunStore]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.NodeID},
		Run: func(ctx context.Context) (ports.RunStore, error) {
			cfg, err := graft.Dep[*config.Config](ctx)
			if err != nil {
				return nil, err
			}
			return NewStore(cfg.Workspace.Root), nil
		},
	})
}
