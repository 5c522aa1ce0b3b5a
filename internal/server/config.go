// Package server provides configuration loading that layers defaults, an
// optional config file, and environment variables.
package server

import (
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

const (
	defaultPort            = "3000"
	defaultAllowedOrigins  = "*"
	defaultMaxMessageSize  = 512
	defaultRateLimitBurst  = 20
	defaultRefillInterval  = time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultConfigFile      = "config.yaml"

	// configFileEnv points at an explicit config file; every other setting
	// maps onto an environment variable by upcasing its key, e.g.
	// rate_limit.burst becomes RATE_LIMIT_BURST.
	configFileEnv = "CHAT_CONFIG_FILE"
)

// RateLimitConfig defines the parameters for per-connection inbound frame
// rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// LogConfig controls how the process logger is built.
type LogConfig struct {
	Level  string
	Format string
	File   string
}

// Config holds the server settings. It is assembled once at startup and
// treated as immutable afterwards.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	RateLimit       RateLimitConfig
	ShutdownTimeout time.Duration
	Log             LogConfig
}

// DefaultConfig returns the built-in settings: listen on port 3000, accept
// any origin, and keep the teardown budget at ten seconds.
func DefaultConfig() Config {
	return sanitizeConfig(Config{})
}

// LoadConfig assembles the runtime configuration from defaults, an optional
// config.yaml in the working directory (or the file named by
// CHAT_CONFIG_FILE), and environment variables, in increasing priority.
func LoadConfig() (Config, error) {
	v := viper.New()
	v.SetDefault("port", defaultPort)
	v.SetDefault("allowed_origins", defaultAllowedOrigins)
	v.SetDefault("max_message_size", defaultMaxMessageSize)
	v.SetDefault("rate_limit.burst", defaultRateLimitBurst)
	v.SetDefault("rate_limit.refill_interval", defaultRefillInterval)
	v.SetDefault("shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := os.Getenv(configFileEnv)
	path := explicit
	if path == "" {
		path = defaultConfigFile
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		// The default file is optional; an explicitly requested one is not.
		if explicit != "" || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, errors.Wrapf(err, "reading config file %s", path)
		}
	}

	cfg := Config{
		Port:           v.GetString("port"),
		AllowedOrigins: parseOrigins(v.GetString("allowed_origins")),
		MaxMessageSize: v.GetInt64("max_message_size"),
		RateLimit: RateLimitConfig{
			Burst:          v.GetInt("rate_limit.burst"),
			RefillInterval: parseDuration(v.GetString("rate_limit.refill_interval"), defaultRefillInterval),
		},
		ShutdownTimeout: parseDuration(v.GetString("shutdown_timeout"), defaultShutdownTimeout),
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			File:   v.GetString("log.file"),
		},
	}
	return sanitizeConfig(cfg), nil
}

// sanitizeConfig backfills zero or nonsense values with the defaults so a
// partially specified configuration still yields a runnable server.
func sanitizeConfig(cfg Config) Config {
	if strings.TrimSpace(cfg.Port) == "" {
		cfg.Port = defaultPort
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigins}
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultRateLimitBurst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRefillInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
	if strings.TrimSpace(cfg.Log.Format) == "" {
		cfg.Log.Format = "console"
	}
	return cfg
}

// Addr returns the listen address for the HTTP server. A bare port such as
// "3000" gains a leading colon; "host:port" values pass through untouched.
func (c Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// parseDuration reads a duration setting. A bare integer counts as whole
// seconds; anything else must be a Go duration string such as "500ms".
// Unparseable or non-positive values fall back to defaultValue.
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return defaultValue
	}
	if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

// parseOrigins splits a comma-separated origin list, trimming whitespace
// around each entry.
func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
