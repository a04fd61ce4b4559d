package ports

import "context"

// SecretSource fetches secret material referenced by the configuration,
// such as registry credentials held in Vault.
//
//go:generate go run go.uber.org/mock/mockgen -source=secrets.go -destination=mocks/mock_secrets.go -package=mocks
type SecretSource interface {
	// Fetch retrieves the key/value pairs stored at the given path.
	Fetch(ctx context.Context, path string) (map[string]string, error)
}
