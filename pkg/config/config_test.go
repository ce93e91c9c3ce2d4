package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "dispatch.db", cfg.Database.Path)
	assert.Empty(t, cfg.Redis.Addr, "in-process guard and leases by default")
	assert.Equal(t, 3, cfg.Dispatch.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Sweeps.GracePeriod)
	assert.Equal(t, 30*time.Minute, cfg.Sweeps.EscalationWindow)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Dispatch.MaxAttempts, cfg.Dispatch.MaxAttempts)
	assert.Equal(t, Default().Sweeps.BackoffBase, cfg.Sweeps.BackoffBase)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
database:
  path: ":memory:"
dispatch:
  max_attempts: 5
sweeps:
  grace_period: 30s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, 5, cfg.Dispatch.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Sweeps.GracePeriod)
	// Untouched keys keep their defaults.
	assert.Equal(t, 100, cfg.Sweeps.BatchSize)
}

func TestLoad_BadFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
