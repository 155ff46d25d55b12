package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig verifies that DefaultConfig returns sensible defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ModeFull, cfg.Mode)
	assert.True(t, cfg.AllowSpawn)
	assert.True(t, cfg.AllowExecute)
	assert.Equal(t, 10, cfg.MaxSessions)
	assert.Equal(t, 30*time.Minute, cfg.SessionTimeout.Std())

	assert.Equal(t, "gdb", cfg.GDB.Path)
	assert.Equal(t, "_start", cfg.GDB.EntrySymbol)
	assert.Equal(t, "x", cfg.GDB.RegisterFormat)
	assert.Equal(t, 10*time.Second, cfg.GDB.StartupTimeout.Std())
}

// TestLoadConfig_EmptyPath verifies that empty path returns defaults.
func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

// TestLoadConfig_ValidFile verifies loading overrides on top of defaults.
func TestLoadConfig_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"mode": "readonly",
		"maxSessions": 3,
		"sessionTimeout": "5m",
		"gdb": {"path": "/opt/gdb/bin/gdb", "startupTimeout": 2.5, "args": ["-iex", "set auto-load off"]}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ModeReadOnly, cfg.Mode)
	assert.Equal(t, 3, cfg.MaxSessions)
	assert.Equal(t, 5*time.Minute, cfg.SessionTimeout.Std())
	assert.Equal(t, "/opt/gdb/bin/gdb", cfg.GDB.Path)
	assert.Equal(t, 2500*time.Millisecond, cfg.GDB.StartupTimeout.Std())
	assert.Equal(t, []string{"-iex", "set auto-load off"}, cfg.GDB.Args)

	// Untouched fields keep their defaults
	assert.True(t, cfg.AllowSpawn)
	assert.Equal(t, "_start", cfg.GDB.EntrySymbol)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sessionTimeout": "soon"}`), 0644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

// TestPermissions verifies mode and flags combine as expected.
func TestPermissions(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.CanUseControlTools())
	assert.True(t, cfg.CanExecute())

	cfg.Mode = ModeReadOnly
	assert.False(t, cfg.CanUseControlTools())
	assert.False(t, cfg.CanExecute())
	assert.True(t, cfg.CanSpawn())

	cfg.Mode = ModeFull
	cfg.AllowExecute = false
	assert.False(t, cfg.CanExecute())
}
