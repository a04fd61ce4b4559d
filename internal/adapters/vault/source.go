// Package vault resolves secrets from a HashiCorp Vault KV store.
package vault

import (
	"context"
	"net/url"

	"github.com/cloudfoundry-community/vaultkv"
	"go.trai.ch/zerr"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/core/ports"
)

var _ ports.SecretSource = (*Source)(nil)

// kvAPI is the slice of the vaultkv KV client the source uses.
type kvAPI interface {
	Get(path string, output interface{}, opts *vaultkv.KVGetOpts) (vaultkv.KVVersion, error)
}

// Source fetches key/value secrets from a Vault KV mount.
type Source struct {
	kv kvAPI
}

// NewSource connects to the Vault server at the given address, authenticating
// with the given token.
func NewSource(address, token string) (*Source, error) {
	vaultURL, err := url.Parse(address)
	if err != nil {
		srcErr := zerr.With(domain.ErrSecretFetchFailed, "address", address)
		return nil, zerr.With(srcErr, "cause", err.Error())
	}

	client := &vaultkv.Client{
		VaultURL:  vaultURL,
		AuthToken: token,
	}
	return &Source{kv: client.NewKV()}, nil
}

// Disabled returns a source whose Fetch always fails. It backs installations
// that have no Vault connection configured.
func Disabled() *Source {
	return &Source{}
}

// Fetch retrieves the key/value pairs stored at the given path.
func (s *Source) Fetch(_ context.Context, path string) (map[string]string, error) {
	if s.kv == nil {
		return nil, zerr.With(domain.ErrSecretFetchFailed, "reason", "vault address not configured")
	}

	values := map[string]string{}
	if _, err := s.kv.Get(path, &values, nil); err != nil {
		fetchErr := zerr.With(domain.ErrSecretFetchFailed, "path", path)
		return nil, zerr.With(fetchErr, "cause", err.Error())
	}
	return values, nil
}
