// Package server provides configuration helpers that define runtime
// defaults, validation, and rate-limiting parameters for the relay.
package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig

	// LegacyGlobalPresence keeps the no-room usersOnline roster alive for
	// deployments that never issue joinRoom.
	LegacyGlobalPresence bool

	LogLevel string
}

// envSpec mirrors Config onto environment variables for envconfig.
type envSpec struct {
	Port                    string   `envconfig:"SERVER_PORT"`
	AllowedOrigins          []string `envconfig:"ALLOWED_ORIGINS"`
	MaxMessageSize          int64    `envconfig:"MAX_MESSAGE_SIZE"`
	RateLimitBurst          int      `envconfig:"RATE_LIMIT_BURST"`
	RateLimitRefillInterval int      `envconfig:"RATE_LIMIT_REFILL_INTERVAL"` // seconds
	LegacyGlobalPresence    *bool    `envconfig:"LEGACY_GLOBAL_PRESENCE"`
	LogLevel                string   `envconfig:"LOG_LEVEL"`
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		LegacyGlobalPresence: true,
		LogLevel:             "info",
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 5
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		defaultCfg := defaultConfig()
		sanitizeConfig(defaultCfg)
		return
	}

	sanitized := Config{
		Port:           cfg.Port,
		AllowedOrigins: append([]string(nil), cfg.AllowedOrigins...),
		MaxMessageSize: cfg.MaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          cfg.RateLimit.Burst,
			RefillInterval: cfg.RateLimit.RefillInterval,
		},
		LegacyGlobalPresence: cfg.LegacyGlobalPresence,
		LogLevel:             cfg.LogLevel,
	}
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables,
// falling back to defaults for anything unset or malformed.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	var spec envSpec
	if err := envconfig.Process("", &spec); err != nil {
		slog.Warn("Ignoring malformed environment configuration", "err", err)
		return &cfg
	}

	if spec.Port != "" {
		cfg.Port = spec.Port
	}
	if len(spec.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = spec.AllowedOrigins
	}
	if spec.MaxMessageSize > 0 {
		cfg.MaxMessageSize = spec.MaxMessageSize
	}
	if spec.RateLimitBurst > 0 {
		cfg.RateLimit.Burst = spec.RateLimitBurst
	}
	if spec.RateLimitRefillInterval > 0 {
		cfg.RateLimit.RefillInterval = time.Duration(spec.RateLimitRefillInterval) * time.Second
	}
	if spec.LegacyGlobalPresence != nil {
		cfg.LegacyGlobalPresence = *spec.LegacyGlobalPresence
	}
	if spec.LogLevel != "" {
		cfg.LogLevel = spec.LogLevel
	}

	return &cfg
}

// ParseLogLevel maps a configured level name to its slog equivalent.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
