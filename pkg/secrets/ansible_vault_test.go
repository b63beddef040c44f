package secrets

import (
	"os"
	"path/filepath"
	"testing"

	vault "github.com/sosedoff/ansible-vault-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prepVaultFile(t *testing.T, content, password string) string {
	t.Helper()
	fname := filepath.Join(t.TempDir(), "secrets.vault")
	require.NoError(t, vault.EncryptFile(fname, content, password))
	return fname
}

func TestAnsibleVaultProvider_Get(t *testing.T) {
	fname := prepVaultFile(t, "client_id: cid\nclient_secret: csecret\nport: 8080\n", "password")
	p, err := NewAnsibleVaultProvider(fname, "password")
	require.NoError(t, err)

	tbl := []struct {
		key, exp string
		err      bool
	}{
		{KeyClientID, "cid", false},
		{KeyClientSecret, "csecret", false},
		{"port", "8080", false},
		{"missing", "", true},
	}
	for _, tt := range tbl {
		t.Run(tt.key, func(t *testing.T) {
			val, err := p.Get(tt.key)
			if tt.err {
				require.ErrorIs(t, err, ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.exp, val)
		})
	}
}

func TestAnsibleVaultProvider_Errors(t *testing.T) {
	good := prepVaultFile(t, "client_id: cid\n", "password")
	badYaml := prepVaultFile(t, "client_id: [unclosed\n", "password")
	plain := filepath.Join(t.TempDir(), "plain.yml")
	require.NoError(t, os.WriteFile(plain, []byte("client_id: cid\n"), 0o600))

	t.Run("no file", func(t *testing.T) {
		_, err := NewAnsibleVaultProvider(filepath.Join(t.TempDir(), "nope"), "password")
		require.ErrorContains(t, err, "can't access vault file")
	})

	t.Run("directory", func(t *testing.T) {
		dir := t.TempDir()
		_, err := NewAnsibleVaultProvider(dir, "password")
		require.EqualError(t, err, dir+" is not a regular file")
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := NewAnsibleVaultProvider(good, "password0")
		require.ErrorContains(t, err, "can't decrypt vault file")
	})

	t.Run("not encrypted", func(t *testing.T) {
		_, err := NewAnsibleVaultProvider(plain, "password")
		require.ErrorContains(t, err, "can't decrypt vault file")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := NewAnsibleVaultProvider(badYaml, "password")
		require.ErrorContains(t, err, "can't unmarshal vault file")
	})
}
