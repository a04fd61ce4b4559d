package cache

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/forge/internal/adapters/config" //nolint:depguard // Wired in adapter wiring
	"go.trai.ch/forge/internal/core/ports"
)

// NodeID is the unique identifier for the fingerprint cache Graft node.
const NodeID graft.ID = "adapter.cache"

func init() {
	graft.Register(graft.Node[ports.CacheStore]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.NodeID},
		Run: func(ctx context.Context) (ports.CacheStore, error) {
			cfg, err := graft.Dep[*config.Config](ctx)
			if err != nil {
				return nil, err
			}

			store, err := NewStore(cfg.CacheIndexPath())
			if err != nil {
				return nil, err
			}
			return store, nil
		},
	})
}
