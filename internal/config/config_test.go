package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigHonoursEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DUETASK_HOME", dir)
	t.Setenv("DUETASK_SERVER", "http://sync.example:9000")
	t.Setenv("DUETASK_SYNC_INTERVAL", "30")
	t.Setenv("DUETASK_DEBOUNCE", "500ms")

	cfg := DefaultConfig()
	assert.Equal(t, "http://sync.example:9000", cfg.ServerURL)
	assert.Equal(t, filepath.Join(dir, "duetask.db"), cfg.DBPath)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Debounce)
	assert.True(t, cfg.AutoSync)
}

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	t.Setenv("DUETASK_HOME", t.TempDir())

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSyncInterval, cfg.SyncInterval)
	assert.Equal(t, "INFO", cfg.LogLevel)
}

func TestSaveAndLoadFile(t *testing.T) {
	t.Setenv("DUETASK_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.ServerURL = "https://tasks.example"
	cfg.SyncInterval = 5 * time.Minute
	cfg.AutoSync = false
	require.NoError(t, cfg.SaveFile(path))

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://tasks.example", got.ServerURL)
	assert.Equal(t, 5*time.Minute, got.SyncInterval)
	assert.False(t, got.AutoSync)
}

func TestLoadFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_url: [unclosed"), 0644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}
