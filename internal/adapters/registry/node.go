package registry

import (
	"context"

	"github.com/grindlemire/graft"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.trai.ch/forge/internal/adapters/config" //nolint:depguard // Wired in adapter wiring
	"go.trai.ch/forge/internal/adapters/logger" //nolint:depguard // Wired in adapter wiring
	"go.trai.ch/forge/internal/adapters/vault"  //nolint:depguard // Wired in adapter wiring
	"go.trai.ch/forge/internal/core/ports"
	"go.trai.ch/zerr"
)

// NodeID is the unique identifier for the artifact registry Graft node.
const NodeID graft.ID = "adapter.registry"

func init() {
	graft.Register(graft.Node[ports.RegistryClient]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.NodeID, logger.NodeID, vault.NodeID},
		Run: func(ctx context.Context) (ports.RegistryClient, error) {
			cfg, err := graft.Dep[*config.Config](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			secrets, err := graft.Dep[ports.SecretSource](ctx)
			if err != nil {
				return nil, err
			}

			accessKey, secretKey, err := resolveCredentials(ctx, cfg.Registry, secrets)
			if err != nil {
				return nil, err
			}

			api, err := minio.New(cfg.Registry.Endpoint, &minio.Options{
				Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
				Secure: cfg.Registry.UseSSL,
				Region: cfg.Registry.Region,
			})
			if err != nil {
				return nil, zerr.With(zerr.Wrap(err, "failed to create registry client"), "endpoint", cfg.Registry.Endpoint)
			}

			return NewClient(api, log, Options{
				Bucket:     cfg.Registry.Bucket,
				MaxRetries: cfg.Registry.MaxRetries,
				BaseDelay:  cfg.Registry.RetryBaseDelay.Std(),
				MaxDelay:   cfg.Registry.RetryMaxDelay.Std(),
			}), nil
		},
	})
}

// resolveCredentials returns the registry access key pair, fetching it from
// the secret source when a credentials path is configured and no static keys
// are set.
func resolveCredentials(ctx context.Context, cfg config.RegistryConfig, secrets ports.SecretSource) (string, string, error) {
	if cfg.CredentialsPath == "" || (cfg.AccessKey != "" && cfg.SecretKey != "") {
		return cfg.AccessKey, cfg.SecretKey, nil
	}

	values, err := secrets.Fetch(ctx, cfg.CredentialsPath)
	if err != nil {
		return "", "", err
	}
	return values["accessKey"], values["secretKey"], nil
}
