package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "event", cfg.Profile)
	assert.False(t, cfg.Room.ExcludeSender)
	assert.Zero(t, cfg.WebSocket.IdleTimeout)
}

func TestLoadYAML(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "rendezvous.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
profile: direct
log:
  level: debug
  format: json
websocket:
  max_message_size: 2048
  pong_wait: 30s
  idle_timeout: 2m
  allowed_origins:
    - https://app.example
room:
  exclude_sender: true
auth:
  jwt_secret: s3cret
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "direct", cfg.Profile)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, int64(2048), cfg.WebSocket.MaxMessageSize)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, 2*time.Minute, cfg.WebSocket.IdleTimeout)
	assert.Equal(t, []string{"https://app.example"}, cfg.WebSocket.AllowedOrigins)
	assert.True(t, cfg.Room.ExcludeSender)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	// untouched keys keep their defaults
	assert.Equal(t, 10*time.Second, cfg.WebSocket.WriteWait)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "rendezvous.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9000\"\n"), 0o600))

	t.Setenv("RENDEZVOUS_ADDR", ":7000")
	t.Setenv("RENDEZVOUS_WS_IDLE_TIMEOUT", "45s")
	t.Setenv("RENDEZVOUS_WS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RENDEZVOUS_ROOM_EXCLUDE_SENDER", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, 45*time.Second, cfg.WebSocket.IdleTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.WebSocket.AllowedOrigins)
	assert.True(t, cfg.Room.ExcludeSender)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RENDEZVOUS_AUTH_JWT_ISSUER=dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("RENDEZVOUS_AUTH_JWT_ISSUER") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dotenv", cfg.Auth.JWTIssuer)
}

func TestLoadErrors(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrFileNotFound)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("addr: [\n"), 0o600))
	_, err = Load(bad)
	assert.ErrorIs(t, err, ErrInvalidYAML)

	t.Setenv("RENDEZVOUS_WS_PONG_WAIT", "soon")
	_, err = Load("")
	assert.ErrorContains(t, err, "RENDEZVOUS_WS_PONG_WAIT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Addr = "" }},
		{"unknown profile", func(c *Config) { c.Profile = "raw" }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
		{"negative max message size", func(c *Config) { c.WebSocket.MaxMessageSize = -1 }},
		{"zero pong wait", func(c *Config) { c.WebSocket.PongWait = 0 }},
		{"negative idle timeout", func(c *Config) { c.WebSocket.IdleTimeout = -time.Second }},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
