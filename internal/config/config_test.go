package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestMustLoad(t *testing.T) {
	t.Run("Reads sections and fills defaults", func(t *testing.T) {
		// Given: a config file with only a few values set
		path := writeConfig(t, `
log-level: debug
jwt-secret-key: secret
redis:
  host: redis
matchmaking:
  radius-km: 2.5
  timeout: 10s
`)

		// When: the config is loaded
		conf := MustLoad(path)

		// Then: set values are read and the rest come from defaults
		assert.Equal(t, "debug", conf.LogLevel)
		assert.Equal(t, "9090", conf.HTTPPort)
		assert.Equal(t, "9091", conf.SocketPort)
		assert.Equal(t, "redis:6379", conf.Redis.GetRedisAddr())
		assert.Equal(t, 24*time.Hour, conf.TokenTTL)

		assert.InDelta(t, 2.5, conf.Matchmaking.RadiusKm, 1e-9)
		assert.Equal(t, 10*time.Second, conf.Matchmaking.Timeout)
		assert.Equal(t, 30*time.Second, conf.Matchmaking.Window)
		assert.Equal(t, 5*time.Second, conf.Matchmaking.ClaimGrace)
	})

	t.Run("Panics on a missing file", func(t *testing.T) {
		// When: the config file does not exist
		// Then: MustLoad panics
		assert.Panics(t, func() {
			MustLoad(filepath.Join(t.TempDir(), "missing.yml"))
		})
	})
}
