package vault

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/forge/internal/adapters/config" //nolint:depguard // Wired in adapter wiring
	"go.trai.ch/forge/internal/core/ports"
)

// NodeID is the unique identifier for the Vault secret source Graft node.
const NodeID graft.ID = "adapter.vault"

func init() {
	graft.Register(graft.Node[ports.SecretSource]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.NodeID},
		Run: func(ctx context.Context) (ports.SecretSource, error) {
			cfg, err := graft.Dep[*config.Config](ctx)
			if err != nil {
				return nil, err
			}

			if cfg.Vault.Address == "" {
				return Disabled(), nil
			}
			return NewSource(cfg.Vault.Address, cfg.Vault.Token)
		},
	})
}
