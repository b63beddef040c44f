package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cache keeps the last received token
type Cache interface {
	Load() (CachedToken, error)
	Save(CachedToken) error
}

// CachedToken is a token with its creation time
type CachedToken struct {
	Secret  string    `json:"secret"`
	Created time.Time `json:"created"`
}

// DefaultCachePath returns token cache location in the temp directory
func DefaultCachePath() string {
	return filepath.Join(os.TempDir(), "access_token.json")
}

// FileCache stores token as json file readable by owner only
type FileCache struct {
	Path string
}

// Load reads token from the file
func (f FileCache) Load() (CachedToken, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return CachedToken{}, fmt.Errorf("can't read token cache %s: %w", f.Path, err)
	}
	var res CachedToken
	if err := json.Unmarshal(data, &res); err != nil {
		return CachedToken{}, fmt.Errorf("can't decode token cache %s: %w", f.Path, err)
	}
	return res, nil
}

// Save writes token to the file, permissions are reset to 0600 even for existing file
func (f FileCache) Save(tok CachedToken) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("can't encode token: %w", err)
	}
	if err := os.WriteFile(f.Path, data, 0o600); err != nil {
		return fmt.Errorf("can't write token cache %s: %w", f.Path, err)
	}
	if err := os.Chmod(f.Path, 0o600); err != nil {
		return fmt.Errorf("can't set permissions on %s: %w", f.Path, err)
	}
	return nil
}

// Store is a key/value secrets store, like secrets.DBStore
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// StoreCache keeps token as json record under Key in a secrets store
type StoreCache struct {
	Store Store
	Key   string
}

// Load gets token record from the store
func (s StoreCache) Load() (CachedToken, error) {
	val, err := s.Store.Get(s.Key)
	if err != nil {
		return CachedToken{}, fmt.Errorf("can't get token %s from store: %w", s.Key, err)
	}
	var res CachedToken
	if err := json.Unmarshal([]byte(val), &res); err != nil {
		return CachedToken{}, fmt.Errorf("can't decode token %s: %w", s.Key, err)
	}
	return res, nil
}

// Save puts token record to the store
func (s StoreCache) Save(tok CachedToken) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("can't encode token: %w", err)
	}
	if err := s.Store.Set(s.Key, string(data)); err != nil {
		return fmt.Errorf("can't save token %s to store: %w", s.Key, err)
	}
	return nil
}
