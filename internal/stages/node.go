package stages

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/forge/internal/adapters/cache"    //nolint:depguard // Wired in adapter wiring
	"go.trai.ch/forge/internal/adapters/config"   //nolint:depguard // Wired in adapter wiring
	"go.trai.ch/forge/internal/adapters/logger"   //nolint:depguard // Wired in adapter wiring
	"go.trai.ch/forge/internal/adapters/registry" //nolint:depguard // Wired in adapter wiring
	"go.trai.ch/forge/internal/adapters/shell"    //nolint:depguard // Wired in adapter wiring
	"go.trai.ch/forge/internal/core/ports"
)

// NodeID is the unique identifier for the stage executor set Graft node.
const NodeID graft.ID = "stages.executors"

func init() {
	graft.Register(graft.Node[[]ports.StageExecutor]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.NodeID, logger.NodeID, cache.NodeID, shell.NodeID, registry.NodeID},
		Run: func(ctx context.Context) ([]ports.StageExecutor, error) {
			cfg, err := graft.Dep[*config.Config](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			store, err := graft.Dep[ports.CacheStore](ctx)
			if err != nil {
				return nil, err
			}
			runner, err := graft.Dep[ports.ToolRunner](ctx)
			if err != nil {
				return nil, err
			}
			registryClient, err := graft.Dep[ports.RegistryClient](ctx)
			if err != nil {
				return nil, err
			}

			rules := make([]TemplateRule, 0, len(cfg.Modules.Templates))
			for _, t := range cfg.Modules.Templates {
				rules = append(rules, TemplateRule{Pattern: t.Pattern, Path: t.Path})
			}
			moduleExec, err := NewModuleExecutor(store, log, ModuleOptions{
				Rules:       rules,
				DefaultPath: cfg.Modules.Default,
				Bucket:      cfg.Registry.Bucket,
				CacheDir:    cfg.Builder.CacheDir,
			})
			if err != nil {
				return nil, err
			}

			return []ports.StageExecutor{
				NewConcretizeExecutor(runner, store, log, ConcretizeOptions{
					Command: cfg.Concretizer.Command,
					Timeout: cfg.Concretizer.Timeout.Std(),
					Retries: cfg.Concretizer.Retries,
				}),
				NewImageExecutor(runner, store, log, ImageOptions{
					Command:  cfg.Builder.Command,
					Bind:     cfg.Builder.Bind,
					CacheDir: cfg.Builder.CacheDir,
					Timeout:  cfg.Builder.Timeout.Std(),
					Retries:  cfg.Builder.Retries,
				}),
				moduleExec,
				NewPushExecutor(registryClient, store, log),
			}, nil
		},
	})
}
