package secrets

import (
	"fmt"
	"log"
	"os"

	vault "github.com/sosedoff/ansible-vault-go"
	yaml "gopkg.in/yaml.v3"
)

// AnsibleVaultProvider reads secrets from ansible-vault encrypted yaml file with flat key/value pairs
type AnsibleVaultProvider struct {
	data map[string]any
}

// NewAnsibleVaultProvider decrypts the vault file with password
func NewAnsibleVaultProvider(vaultPath, password string) (*AnsibleVaultProvider, error) {
	fi, err := os.Stat(vaultPath)
	if err != nil {
		return nil, fmt.Errorf("can't access vault file %s: %w", vaultPath, err)
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", vaultPath)
	}

	decrypted, err := vault.DecryptFile(vaultPath, password)
	if err != nil {
		return nil, fmt.Errorf("can't decrypt vault file %s: %w", vaultPath, err)
	}

	data := map[string]any{}
	if err = yaml.Unmarshal([]byte(decrypted), &data); err != nil {
		return nil, fmt.Errorf("can't unmarshal vault file %s: %w", vaultPath, err)
	}
	log.Printf("[DEBUG] ansible vault %s decrypted, %d keys", vaultPath, len(data))
	return &AnsibleVaultProvider{data: data}, nil
}

// Get returns value of the key, non-string values are formatted
func (p *AnsibleVaultProvider) Get(key string) (string, error) {
	val, ok := p.data[key]
	if !ok || val == nil {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if s, ok := val.(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", val), nil
}
