package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig verifies the built-in settings used when nothing is
// configured at all.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(512), cfg.MaxMessageSize)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

// TestLoadConfigEnvOverrides tests environment-variable configuration.
// It verifies that each setting maps onto the upcased form of its key and
// overrides the default.
func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com, https://admin.example.com")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "250ms")
	t.Setenv("SHUTDOWN_TIMEOUT", "2s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"https://chat.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(1024), cfg.MaxMessageSize)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, 250*time.Millisecond, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 2*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

// TestLoadConfigBareSecondsDurations verifies that unit-less duration
// settings are read as whole seconds rather than nanoseconds, so a refill
// interval of 5 means five seconds and leaves the limiter working.
func TestLoadConfigBareSecondsDurations(t *testing.T) {
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "5")
	t.Setenv("SHUTDOWN_TIMEOUT", "30")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

// TestLoadConfigFile tests file-based configuration.
// It verifies that the file named by CHAT_CONFIG_FILE is loaded, and that
// environment variables still win over file values.
func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.yaml")
	body := []byte(`
port: "4000"
allowed_origins: "https://chat.example.com"
max_message_size: 2048
rate_limit:
  burst: 3
  refill_interval: 500ms
shutdown_timeout: 5s
log:
  level: warn
  format: json
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("CHAT_CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "4000", cfg.Port)
	assert.Equal(t, []string{"https://chat.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(2048), cfg.MaxMessageSize)
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.Equal(t, 500*time.Millisecond, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	t.Run("environment beats file", func(t *testing.T) {
		t.Setenv("PORT", "9999")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "9999", cfg.Port)
	})
}

// TestLoadConfigMissingExplicitFile verifies that pointing CHAT_CONFIG_FILE
// at a file that does not exist is an error rather than a silent fallback.
func TestLoadConfigMissingExplicitFile(t *testing.T) {
	t.Setenv("CHAT_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := LoadConfig()
	assert.Error(t, err)
}

// TestSanitizeConfigBackfills verifies that zero and nonsense values fall
// back to the defaults so a partial configuration still runs.
func TestSanitizeConfigBackfills(t *testing.T) {
	cfg := sanitizeConfig(Config{
		Port:           "  ",
		MaxMessageSize: -1,
		RateLimit:      RateLimitConfig{Burst: 0, RefillInterval: -time.Second},
	})

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(512), cfg.MaxMessageSize)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

// TestConfigAddr verifies listen-address normalization for bare ports and
// host:port values.
func TestConfigAddr(t *testing.T) {
	assert.Equal(t, ":3000", Config{Port: "3000"}.Addr())
	assert.Equal(t, ":3000", Config{Port: ":3000"}.Addr())
	assert.Equal(t, "0.0.0.0:3000", Config{Port: "0.0.0.0:3000"}.Addr())
}

// TestParseOrigins verifies comma splitting with whitespace and empty
// entries dropped.
func TestParseOrigins(t *testing.T) {
	assert.Equal(t,
		[]string{"https://a.example.com", "https://b.example.com"},
		parseOrigins(" https://a.example.com , https://b.example.com ,, "))
	assert.Empty(t, parseOrigins(""))
}

// TestParseDuration verifies the accepted duration forms: bare integers are
// whole seconds, duration strings pass through, and everything else falls
// back to the given default.
func TestParseDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseDuration("5", time.Second))
	assert.Equal(t, 90*time.Second, parseDuration(" 90 ", time.Second))
	assert.Equal(t, 750*time.Millisecond, parseDuration("750ms", time.Second))
	assert.Equal(t, 2*time.Minute, parseDuration("2m", time.Second))

	for _, raw := range []string{"", "0", "-3", "-250ms", "1.5", "soon"} {
		assert.Equal(t, time.Second, parseDuration(raw, time.Second), "raw=%q", raw)
	}
}
