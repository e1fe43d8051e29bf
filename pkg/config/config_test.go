package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsSelfConsistent(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "./data", cfg.Storage.DataDir)
	assert.Equal(t, 100, cfg.Scheduling.BatchSize)
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaultsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedcore.yaml")
	contents := "storage:\n  data_dir: /var/lib/schedcore\nscheduling:\n  batch_size: 250\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/schedcore", cfg.Storage.DataDir)
	assert.Equal(t, 250, cfg.Scheduling.BatchSize)
	// Unset-in-file fields keep their default.
	assert.Equal(t, Default().Metrics.ListenAddr, cfg.Metrics.ListenAddr)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
