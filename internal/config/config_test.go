package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/vango-dev/queryguard/internal/errors"
)

func TestDefaults(t *testing.T) {
	cfg := New()
	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "keep", cfg.Guard.UnknownPolicy)
	assert.Equal(t, "replace", cfg.Guard.History)
	assert.Equal(t, "memory", cfg.Links.Backend)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Empty(t, cfg.Path())

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queryguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: "127.0.0.1:9999"
  allowed_origins: ["http://example.com"]
  shutdown_timeout: 3s
guard:
  unknown_policy: drop
links:
  backend: sqlite
  path: /tmp/links.db
log:
  level: debug
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, []string{"http://example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "drop", cfg.Guard.UnknownPolicy)
	assert.Equal(t, "replace", cfg.Guard.History)
	assert.Equal(t, path, cfg.Path())

	pc := cfg.Permalink()
	assert.Equal(t, "sqlite", pc.Backend)
	assert.Equal(t, "/tmp/links.db", pc.Path)
	assert.Equal(t, "links/", pc.Prefix)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QUERYGUARD_SERVER_ADDR", ":7000")
	t.Setenv("QUERYGUARD_GUARD_HISTORY", "push")
	t.Setenv("QUERYGUARD_SERVER_PING_INTERVAL", "5s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "push", cfg.Guard.History)
	assert.Equal(t, 5*time.Second, cfg.Server.PingInterval)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, "Q100", qerrors.Code(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty_addr", func(c *Config) { c.Server.Addr = "" }},
		{"negative_sessions", func(c *Config) { c.Server.MaxSessions = -1 }},
		{"zero_shutdown", func(c *Config) { c.Server.ShutdownTimeout = 0 }},
		{"bad_policy", func(c *Config) { c.Guard.UnknownPolicy = "forget" }},
		{"bad_history", func(c *Config) { c.Guard.History = "sideways" }},
		{"sqlite_without_path", func(c *Config) { c.Links.Backend = "sqlite" }},
		{"s3_without_bucket", func(c *Config) { c.Links.Backend = "s3" }},
		{"unknown_backend", func(c *Config) { c.Links.Backend = "etcd" }},
		{"bad_level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad_format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := New()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, "Q100", qerrors.Code(err))
		})
	}
}
