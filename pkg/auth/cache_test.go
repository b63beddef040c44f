package auth

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-pkgz/fileutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCache(t *testing.T) {
	tmpFile, err := fileutils.TempFileName("", "access_token.json")
	require.NoError(t, err)
	defer os.Remove(tmpFile)

	c := FileCache{Path: tmpFile}
	_, err = c.Load()
	require.Error(t, err, "no file yet")

	created := time.Date(2023, 3, 14, 10, 0, 0, 0, time.UTC)
	require.NoError(t, c.Save(CachedToken{Secret: "tok", Created: created}))

	st, err := os.Stat(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	data, err := os.ReadFile(tmpFile)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "tok", raw["secret"])
	assert.Equal(t, "2023-03-14T10:00:00Z", raw["created"])

	res, err := c.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", res.Secret)
	assert.True(t, created.Equal(res.Created))
}

func TestFileCache_ResetsPermissions(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "access_token.json")
	require.NoError(t, os.WriteFile(tmpFile, []byte("{}"), 0o644)) //nolint:gosec // permissions checked below
	c := FileCache{Path: tmpFile}
	require.NoError(t, c.Save(CachedToken{Secret: "tok", Created: time.Now()}))
	st, err := os.Stat(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestFileCache_Broken(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "access_token.json")
	require.NoError(t, os.WriteFile(tmpFile, []byte("not json"), 0o600))
	_, err := FileCache{Path: tmpFile}.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't decode token cache")

	err = FileCache{Path: filepath.Join(t.TempDir(), "no", "such", "dir", "t.json")}.Save(CachedToken{Secret: "x"})
	require.Error(t, err)
}

func TestDefaultCachePath(t *testing.T) {
	assert.Equal(t, filepath.Join(os.TempDir(), "access_token.json"), DefaultCachePath())
}

type mapStore struct {
	data   map[string]string
	setErr error
}

func (m *mapStore) Get(key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", errors.New("secret not found")
	}
	return v, nil
}

func (m *mapStore) Set(key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func TestStoreCache(t *testing.T) {
	store := &mapStore{data: map[string]string{}}
	c := StoreCache{Store: store, Key: "google_token"}

	_, err := c.Load()
	require.Error(t, err)

	created := time.Date(2023, 3, 14, 10, 0, 0, 0, time.UTC)
	require.NoError(t, c.Save(CachedToken{Secret: "tok", Created: created}))
	assert.JSONEq(t, `{"secret":"tok","created":"2023-03-14T10:00:00Z"}`, store.data["google_token"])

	res, err := c.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", res.Secret)

	store.data["google_token"] = "garbage"
	_, err = c.Load()
	require.Error(t, err)

	store.setErr = errors.New("db is gone")
	err = c.Save(CachedToken{Secret: "tok"})
	require.ErrorContains(t, err, "db is gone")
}
