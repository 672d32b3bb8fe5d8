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
	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, s.Interval)
	assert.Equal(t, 30*time.Second, s.Queue.CommandTimeout)
	assert.Equal(t, 2.0, s.Submit.Rate)
	assert.Equal(t, 1, s.Submit.Burst)
	assert.False(t, s.Server.Enabled)
	assert.Equal(t, "127.0.0.1", s.Server.Host)
	assert.Equal(t, 8711, s.Server.Port)
	assert.Equal(t, "info", s.Logging.Level)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qcherd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_dir: /data/runs
interval: 15m
queue:
  user: chemist
  command_timeout: 45s
server:
  enabled: true
  port: 9100
logging:
  level: debug
  json: true
`), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/runs", s.BaseDir)
	assert.Equal(t, 15*time.Minute, s.Interval)
	assert.Equal(t, "chemist", s.Queue.User)
	assert.Equal(t, 45*time.Second, s.Queue.CommandTimeout)
	assert.True(t, s.Server.Enabled)
	assert.Equal(t, 9100, s.Server.Port)
	assert.Equal(t, "debug", s.Logging.Level)
	assert.True(t, s.Logging.JSON)
	require.NoError(t, s.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("QCHERD_BASE_DIR", "/env/runs")
	t.Setenv("QCHERD_LOGGING_LEVEL", "warn")
	t.Setenv("QCHERD_INTERVAL", "30m")

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/env/runs", s.BaseDir)
	assert.Equal(t, "warn", s.Logging.Level)
	assert.Equal(t, 30*time.Minute, s.Interval)
}

func TestValidate(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	assert.Error(t, s.Validate(), "missing base_dir")

	s.BaseDir = "/data/runs"
	require.NoError(t, s.Validate())

	s.Logging.Level = "verbose"
	assert.Error(t, s.Validate())

	s.Logging.Level = "info"
	s.Interval = 0
	assert.Error(t, s.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
