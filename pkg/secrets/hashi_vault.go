package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/vault/api"
)

// HashiVaultProvider reads secrets from HashiCorp Vault KV v2 engine.
// All keys live in a single vault secret, like "secret/gsqlite".
type HashiVaultProvider struct {
	client *api.Client
	mount  string
	path   string
}

// NewHashiVaultProvider makes provider for path in form of "<mount>/<secret path>".
// Legacy "<mount>/data/<secret path>" form is accepted as well.
func NewHashiVaultProvider(addr, path, token string) (*HashiVaultProvider, error) {
	mount, secretPath, ok := strings.Cut(strings.Trim(path, "/"), "/")
	if !ok || mount == "" || secretPath == "" {
		return nil, fmt.Errorf("invalid vault path %q, expected <mount>/<path>", path)
	}
	secretPath = strings.TrimPrefix(secretPath, "data/")

	client, err := api.NewClient(&api.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("can't make vault client: %w", err)
	}
	client.SetToken(token)
	return &HashiVaultProvider{client: client, mount: mount, path: secretPath}, nil
}

// Get returns key field of the vault secret
func (p *HashiVaultProvider) Get(key string) (string, error) {
	secret, err := p.client.KVv2(p.mount).Get(context.Background(), p.path)
	if err != nil {
		if errors.Is(err, api.ErrSecretNotFound) {
			return "", fmt.Errorf("%s/%s: %w", p.mount, p.path, ErrNotFound)
		}
		return "", fmt.Errorf("can't read vault secret %s/%s: %w", p.mount, p.path, err)
	}

	val, ok := secret.Data[key]
	if !ok {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	res, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("value of %s is %T, not a string", key, val)
	}
	return res, nil
}
