package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Server.ResponseWindow)
	assert.Equal(t, 90*time.Second, cfg.Server.TurnTimeout)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.True(t, cfg.Replay.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  address: ":9999"
  response_window: 15s
logging:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, 15*time.Second, cfg.Server.ResponseWindow)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Unset values keep their defaults.
	assert.Equal(t, 90*time.Second, cfg.Server.TurnTimeout)
}

func TestLoadValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	t.Run("zero response window", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("server:\n  response_window: 0s\n"), 0644))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("bcrypt cost out of range", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("auth:\n  bcrypt_cost: 99\n"), 0644))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("empty database url", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("database:\n  url: \"\"\n"), 0644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("COUP_SERVER_ADDRESS", ":7070")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Address)
}
