package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults fill missing sections", func(t *testing.T) {
		path := writeConfig(t, "env: test\n")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "test", cfg.Env)
		assert.Equal(t, 5*time.Second, cfg.TCPServer.ReadTimeout)
		assert.Equal(t, 8, cfg.Workers.Size)
		assert.Equal(t, 70.0, cfg.Reward.AuthorPercentage)
		assert.Equal(t, "file", cfg.Persistence.Backend)
		assert.Equal(t, 44444, cfg.Multicast.Port)
	})

	t.Run("explicit values win", func(t *testing.T) {
		path := writeConfig(t, `
env: test
workers:
  size: 2
reward:
  interval: 10s
  author_percentage: 50
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 2, cfg.Workers.Size)
		assert.Equal(t, 10*time.Second, cfg.Reward.Interval)
		assert.Equal(t, 50.0, cfg.Reward.AuthorPercentage)
	})

	t.Run("author percentage out of range", func(t *testing.T) {
		path := writeConfig(t, "reward:\n  author_percentage: 120\n")

		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
