package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tatami/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	assert.Equal(t, 5000, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.WebSocket.ReadTimeout)
	assert.Equal(t, 100, cfg.WebSocket.BufferSize)
	assert.Equal(t, "./evaluation.db", cfg.Database.Path)
	assert.Equal(t, 15*time.Minute, cfg.Lesson.Duration)
	assert.Equal(t, 100, cfg.Chat.RateLimit)
	assert.Equal(t, time.Minute, cfg.Chat.RateWindow)
	assert.Equal(t, "0.0.0.0:5000", cfg.Addr())
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("TATAMI_HTTP_PORT", "8080")
	t.Setenv("TATAMI_LESSON_DURATION", "5m")
	t.Setenv("TATAMI_DATABASE_PATH", "/tmp/tatami-test.db")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 5*time.Minute, cfg.Lesson.Duration)
	assert.Equal(t, "/tmp/tatami-test.db", cfg.Database.Path)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
http:
  host: 127.0.0.1
  port: 9000
lesson:
  duration: 10m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.HTTP.Host)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, 10*time.Minute, cfg.Lesson.Duration)
	// Untouched keys keep their defaults.
	assert.Equal(t, 60*time.Second, cfg.WebSocket.ReadTimeout)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
http:
  port: 9000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("TATAMI_HTTP_PORT", "8080")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *config.Config {
		cfg, err := config.Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.HTTP.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.HTTP.Port = 70000
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.WebSocket.PingInterval = 2 * time.Minute // longer than read timeout
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.WebSocket.BufferSize = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Database.Path = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Lesson.Duration = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Chat.RateLimit = 0
	assert.Error(t, cfg.Validate())
}
