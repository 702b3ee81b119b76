package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.Signaling.InviteSweepInterval)
	assert.Equal(t, 10*time.Second, cfg.Signaling.HeartbeatPruneInterval)
	assert.Equal(t, 30*time.Second, cfg.Signaling.HeartbeatMaxAge)
	assert.Equal(t, 90*time.Second, cfg.Signaling.PresenceMaxAge)
	assert.Equal(t, 128, cfg.Signaling.MaxIDLength)
	assert.Equal(t, int64(65536), cfg.Transport.WSReadLimit)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "huddle:ws:", cfg.Redis.ChannelPrefix)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SIGNAL_PORT", "9443")
	t.Setenv("SIGNAL_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("SIGNAL_HEARTBEAT_MAX_AGE_MS", "45000")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("SIGNAL_RATE_LIMIT_BURST", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, 9443, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 45*time.Second, cfg.Signaling.HeartbeatMaxAge)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 60, cfg.Signaling.RateLimitBurst)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"zero sweep", func(c *Config) { c.Signaling.InviteSweepInterval = 0 }},
		{"zero max age", func(c *Config) { c.Signaling.PresenceMaxAge = 0 }},
		{"zero id length", func(c *Config) { c.Signaling.MaxIDLength = 0 }},
		{"ping after pong", func(c *Config) { c.Transport.WSPingInterval = c.Transport.WSPongTimeout }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
	})

	t.Run("file values fill the environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("SIGNAL_TEST_DOTENV=from-file\n"), 0o600))
		t.Cleanup(func() { os.Unsetenv("SIGNAL_TEST_DOTENV") })

		require.NoError(t, LoadDotEnv(path))
		assert.Equal(t, "from-file", os.Getenv("SIGNAL_TEST_DOTENV"))
	})
}
