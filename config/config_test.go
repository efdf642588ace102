package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 1.0, cfg.Guard.MaxSlippagePct)
	assert.Equal(t, 30000, cfg.Guard.WaitMS)
	assert.Equal(t, 20, cfg.Guard.MaxRetries)
	assert.Equal(t, 5.0, cfg.Guard.MinBookSizeUSD)
	assert.Equal(t, GuardActionWait, cfg.Guard.Action)
	assert.Equal(t, 250, cfg.Reconcile.TaskPauseMS)
}

func TestLoadPartialFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("guard:\n  max_slippage_pct: 2.5\n  action: skip\nserver:\n  port: 9000\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 2.5, cfg.Guard.MaxSlippagePct)
	assert.Equal(t, GuardActionSkip, cfg.Guard.Action)
	// Unset fields fall back to defaults.
	assert.Equal(t, 30000, cfg.Guard.WaitMS)
	assert.Equal(t, 20, cfg.Guard.MaxRetries)
	assert.Equal(t, 0.05, cfg.Copy.Multiplier)
}

func TestEnvOverridesBeatFileValues(t *testing.T) {
	t.Setenv("COPY_MAX_SLIPPAGE_PCT", "0.5")
	t.Setenv("COPY_GUARD_MAX_RETRIES", "3")
	t.Setenv("COPY_GUARD_ACTION", "skip")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Guard.MaxSlippagePct)
	assert.Equal(t, 3, cfg.Guard.MaxRetries)
	assert.Equal(t, GuardActionSkip, cfg.Guard.Action)
}

func TestInvalidGuardActionEnvIgnored(t *testing.T) {
	t.Setenv("COPY_GUARD_ACTION", "explode")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, GuardActionWait, cfg.Guard.Action)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("guard: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
