package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")

	c, err := NewAt(dir, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, c)

	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestCache_Key(t *testing.T) {
	c := &Cache{}

	k1 := c.Key("openai", "gpt-4o", "system", "user")
	k2 := c.Key("openai", "gpt-4o", "system", "user")
	k3 := c.Key("openai", "gpt-4o", "systemuser", "")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Len(t, k1, 64)
}

func TestCache_SetAndGet(t *testing.T) {
	c, err := NewAt(t.TempDir(), time.Hour)
	require.NoError(t, err)

	type review struct {
		Text string `json:"text"`
	}
	key := c.Key("review")
	require.NoError(t, c.Set(key, "gpt-4o", review{Text: "looks good"}))

	raw, found, err := c.Get(key)
	require.NoError(t, err)
	require.True(t, found)

	var got review
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "looks good", got.Text)
}

func TestCache_Get(t *testing.T) {
	t.Run("should miss on unknown keys", func(t *testing.T) {
		c, err := NewAt(t.TempDir(), time.Hour)
		require.NoError(t, err)

		_, found, err := c.Get("missing")
		assert.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("should drop expired entries", func(t *testing.T) {
		dir := t.TempDir()
		c, err := NewAt(dir, time.Minute)
		require.NoError(t, err)

		now := time.Now()
		c.now = func() time.Time { return now }
		require.NoError(t, c.Set("old", "", "data"))

		c.now = func() time.Time { return now.Add(2 * time.Minute) }
		_, found, err := c.Get("old")
		assert.NoError(t, err)
		assert.False(t, found)

		_, err = os.Stat(filepath.Join(dir, "old.json"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("should fail on corrupt entries", func(t *testing.T) {
		dir := t.TempDir()
		c, err := NewAt(dir, time.Hour)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0o644))

		_, _, err = c.Get("bad")
		assert.Error(t, err)
	})
}

func TestCache_CleanExpired(t *testing.T) {
	dir := t.TempDir()
	c, err := NewAt(dir, time.Minute)
	require.NoError(t, err)

	stale := filepath.Join(dir, "stale.json")
	require.NoError(t, os.WriteFile(stale, []byte("{}"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, c.Set("fresh", "", 1))

	require.NoError(t, c.CleanExpired())

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, found, err := c.Get("fresh")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCache_Clean(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	c, err := NewAt(dir, time.Hour)
	require.NoError(t, err)

	require.NoError(t, c.Clean())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}
