// Package secrets provides credential lookup for google client id and secret, and an
// encrypted key/value store used to keep credentials and cached tokens.
// All providers implement Provider.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// well-known keys looked up by the cli
const (
	KeyClientID     = "client_id"
	KeyClientSecret = "client_secret"
)

// ErrNotFound returned by providers if there is no such key
var ErrNotFound = errors.New("secret not found")

// Provider returns secret value for the key
type Provider interface {
	Get(key string) (string, error)
}

// EnvProvider reads secrets from environment variables named PREFIX_KEY, upper-cased
type EnvProvider struct {
	Prefix string
}

// Get returns value of the environment variable for the key
func (p *EnvProvider) Get(key string) (string, error) {
	name := strings.ToUpper(key)
	if p.Prefix != "" {
		name = strings.ToUpper(p.Prefix) + "_" + name
	}
	val, ok := os.LookupEnv(name)
	if !ok || val == "" {
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return val, nil
}

// NoOpProvider has no secrets
type NoOpProvider struct{}

// Get always fails
func (p *NoOpProvider) Get(key string) (string, error) {
	return "", fmt.Errorf("%s: %w", key, ErrNotFound)
}
