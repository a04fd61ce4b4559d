package patch

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/forge/internal/adapters/config" //nolint:depguard // Wired in adapter wiring
	"go.trai.ch/forge/internal/core/domain"
)

// NodeID is the unique identifier for the patch engine Graft node.
const NodeID graft.ID = "patch.engine"

func init() {
	graft.Register(graft.Node[*Engine]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.NodeID},
		Run: func(ctx context.Context) (*Engine, error) {
			cfg, err := graft.Dep[*config.Config](ctx)
			if err != nil {
				return nil, err
			}

			rules := make([]domain.PatchRule, 0, len(cfg.Patches))
			for _, dto := range cfg.Patches {
				rules = append(rules, domain.PatchRule{
					Name:     dto.Name,
					Pattern:  dto.Pattern,
					Override: domain.Override{Image: dto.Image},
				})
			}

			return New(rules)
		},
	})
}
