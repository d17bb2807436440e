// Package cache stores model responses on disk keyed by a hash of the
// request, so repeated runs over the same diff do not pay twice.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type CachedResponse struct {
	Key       string          `json:"key"`
	Model     string          `json:"model,omitempty"`
	Response  json.RawMessage `json:"response"`
	CreatedAt time.Time       `json:"created_at"`
}

type Cache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// New opens the cache under ~/.pr-insight/cache and drops expired entries.
func New(ttl time.Duration) (*Cache, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}
	return NewAt(filepath.Join(home, ".pr-insight", "cache"), ttl)
}

// NewAt opens a cache rooted at dir.
func NewAt(dir string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	c := &Cache{dir: dir, ttl: ttl, now: time.Now}
	_ = c.CleanExpired()
	return c, nil
}

// Key hashes the request parts into a cache key.
func (c *Cache) Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

// Get returns the stored response for key. Expired entries are removed and
// reported as a miss.
func (c *Cache) Get(key string) (json.RawMessage, bool, error) {
	path := c.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}

	var cached CachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false, fmt.Errorf("decoding cache entry: %w", err)
	}
	if c.now().Sub(cached.CreatedAt) > c.ttl {
		_ = os.Remove(path)
		return nil, false, nil
	}
	return cached.Response, true, nil
}

// Set stores response under key.
func (c *Cache) Set(key, model string, response any) error {
	raw, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	data, err := json.MarshalIndent(CachedResponse{
		Key:       key,
		Model:     model,
		Response:  raw,
		CreatedAt: c.now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	// write then rename so a concurrent reader never sees a partial file
	tmp := c.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := os.Rename(tmp, c.path(key)); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// CleanExpired removes entries older than the TTL.
func (c *Cache) CleanExpired() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if c.now().Sub(info.ModTime()) > c.ttl {
			_ = os.Remove(filepath.Join(c.dir, entry.Name()))
		}
	}
	return nil
}

// Clean removes the whole cache directory.
func (c *Cache) Clean() error {
	return os.RemoveAll(c.dir)
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}
