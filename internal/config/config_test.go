package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/aiocp/internal/config"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	configDir := filepath.Join(dir, "aiocp")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o644))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.Defaults.ChunkSize)
	assert.Nil(t, cfg.Defaults.Slots)
	assert.Nil(t, cfg.Defaults.Verify)
}

func TestLoad_FullConfig(t *testing.T) {
	writeConfig(t, `
[defaults]
chunk_size = "64K"
slots = 16
backend = "iouring"
timeout = "30m"
verify = true
metrics_file = "/tmp/aiocp.prom"
`)

	cfg, err := config.Load()
	require.NoError(t, err)

	require.NotNil(t, cfg.Defaults.ChunkSize)
	assert.Equal(t, "64K", *cfg.Defaults.ChunkSize)

	require.NotNil(t, cfg.Defaults.Slots)
	assert.Equal(t, 16, *cfg.Defaults.Slots)

	require.NotNil(t, cfg.Defaults.Backend)
	assert.Equal(t, "iouring", *cfg.Defaults.Backend)

	require.NotNil(t, cfg.Defaults.Timeout)
	assert.Equal(t, "30m", *cfg.Defaults.Timeout)

	require.NotNil(t, cfg.Defaults.Verify)
	assert.True(t, *cfg.Defaults.Verify)

	require.NotNil(t, cfg.Defaults.MetricsFile)
	assert.Equal(t, "/tmp/aiocp.prom", *cfg.Defaults.MetricsFile)
}

func TestLoad_PartialConfig(t *testing.T) {
	writeConfig(t, `
[defaults]
slots = 4
`)

	cfg, err := config.Load()
	require.NoError(t, err)

	require.NotNil(t, cfg.Defaults.Slots)
	assert.Equal(t, 4, *cfg.Defaults.Slots)

	// Unset fields should remain nil.
	assert.Nil(t, cfg.Defaults.ChunkSize)
	assert.Nil(t, cfg.Defaults.Backend)
	assert.Nil(t, cfg.Defaults.Timeout)
}

func TestLoad_InvalidTOML(t *testing.T) {
	writeConfig(t, "invalid [[[")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unaligned chunk", content: "[defaults]\nchunk_size = \"1000\"\n"},
		{name: "bad chunk", content: "[defaults]\nchunk_size = \"lots\"\n"},
		{name: "zero slots", content: "[defaults]\nslots = 0\n"},
		{name: "bad timeout", content: "[defaults]\ntimeout = \"soon\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfig(t, tt.content)
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Nil(t, cfg.Defaults.Slots)
}

func TestConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, "/custom/config/aiocp/config.toml", config.Path())
}
