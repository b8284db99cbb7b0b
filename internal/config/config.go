package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string          `mapstructure:"mode"`
	Port       int             `mapstructure:"port"`
	LogLevel   string          `mapstructure:"log_level"`
	Secret     string          `mapstructure:"secret"`
	StatusPoll time.Duration   `mapstructure:"status_poll"`
	Store      StoreConfig     `mapstructure:"store"`
	Identity   IdentityConfig  `mapstructure:"identity"`
	Expiry     ExpiryConfig    `mapstructure:"expiry"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
}

type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	PoolSize int    `mapstructure:"pool_size"`
}

type IdentityConfig struct {
	SpotifyBaseURL string        `mapstructure:"spotify_base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type ExpiryConfig struct {
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	QueueSize     int           `mapstructure:"queue_size"`
}

type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Interval time.Duration `mapstructure:"interval"`
}

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "")
	v.SetDefault("status_poll", "2s")
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", "./data/sessions.db")
	v.SetDefault("store.pool_size", 0)
	v.SetDefault("identity.spotify_base_url", "https://api.spotify.com")
	v.SetDefault("identity.timeout", "5s")
	v.SetDefault("expiry.session_ttl", "4h")
	v.SetDefault("expiry.sweep_interval", "30s")
	v.SetDefault("expiry.queue_size", 1024)
	v.SetDefault("rate_limit.requests", 30)
	v.SetDefault("rate_limit.interval", "1m")
}

// Load reads config/config.<CONFIG_ENV>.yaml, or file when non-empty.
// Missing files fall back to defaults; LISTEN_* env vars override both
// (LISTEN_STORE_DRIVER sets store.driver).
func Load(file string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if file == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		file = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(file)

	setDefaults(v)
	v.SetEnvPrefix("LISTEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", file).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", file).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("store", cfg.Store.Driver).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("config: store.path is required for the %s driver", DriverSQLite)
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if c.Expiry.SessionTTL <= 0 || c.Expiry.SweepInterval <= 0 {
		return fmt.Errorf("config: expiry.session_ttl and expiry.sweep_interval must be positive")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Interval <= 0 {
		return fmt.Errorf("config: rate_limit.requests and rate_limit.interval must be positive")
	}
	return nil
}
