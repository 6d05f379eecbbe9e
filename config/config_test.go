package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CONFIG_FILE", "HOST", "PORT", "ALLOWED_ORIGINS", "STORE_BACKEND",
	"DATA_FILE", "LOG_LEVEL", "METRICS_ADDR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:3000", cfg.Server.Addr())
	assert.Empty(t, cfg.Server.AllowedOrigins)
	assert.Equal(t, "json", cfg.Store.Backend)
	assert.Equal(t, "users.json", cfg.Store.DataFile)
	assert.Empty(t, cfg.Metrics.Address)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "8080")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("METRICS_ADDR", ":9100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "users.db", cfg.Store.DataFile)
	assert.Equal(t, ":9100", cfg.Metrics.Address)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)

	file := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(file, []byte(`
server:
  host: 10.0.0.1
  port: 4000
store:
  backend: memory
  data_file: ignored.json
log:
  level: warn
`), 0o644))

	t.Setenv("CONFIG_FILE", file)
	t.Setenv("PORT", "4001")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1:4001", cfg.Server.Addr())
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "ignored.json", cfg.Store.DataFile)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]map[string]string{
		"port not a number": {"PORT": "abc"},
		"port out of range": {"PORT": "70000"},
		"unknown backend":   {"STORE_BACKEND": "redis"},
		"unknown log level": {"LOG_LEVEL": "chatty"},
		"missing file":      {"CONFIG_FILE": filepath.Join(t.TempDir(), "nope.yml")},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsUnknownFileKeys(t *testing.T) {
	clearEnv(t)

	file := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(file, []byte("server:\n  hots: typo\n"), 0o644))
	t.Setenv("CONFIG_FILE", file)

	_, err := Load()
	assert.Error(t, err)
}
