package manifest

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/forge/internal/adapters/config" //nolint:depguard // Wired in adapter wiring
)

// NodeID is the unique identifier for the manifest generator Graft node.
const NodeID graft.ID = "manifest.generator"

func init() {
	graft.Register(graft.Node[*Generator]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.NodeID},
		Run: func(ctx context.Context) (*Generator, error) {
			cfg, err := graft.Dep[*config.Config](ctx)
			if err != nil {
				return nil, err
			}

			return NewGenerator(Options{
				TargetOS:     cfg.Concretizer.TargetOS,
				Unify:        cfg.Concretizer.Unify,
				BuilderImage: cfg.Builder.BuilderImage,
				BaseImage:    cfg.Builder.BaseImage,
			}), nil
		},
	})
}
