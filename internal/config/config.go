// Package config loads relay configuration from defaults, an optional YAML
// file and RELAY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/spf13/viper"
)

// Queue backends.
const (
	QueueMemory = "memory"
	QueueRedis  = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Queue          QueueConfig          `mapstructure:"queue"`
	Ingest         IngestConfig         `mapstructure:"ingest"`
	Dispatch       DispatchConfig       `mapstructure:"dispatch"`
	Telegram       TelegramConfig       `mapstructure:"telegram"`
	Webhook        WebhookConfig        `mapstructure:"webhook"`
	NATS           NATSConfig           `mapstructure:"nats"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Logging        LoggingConfig        `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// PublicHost is the host:port written into project DSNs.
	PublicHost   string `mapstructure:"public_host"`
	PublicScheme string `mapstructure:"public_scheme"`
}

type DatabaseConfig struct {
	URL         string `mapstructure:"url"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type QueueConfig struct {
	Backend string `mapstructure:"backend"`
	Key     string `mapstructure:"key"`
}

type IngestConfig struct {
	MaxBodyBytes         int64         `mapstructure:"max_body_bytes"`
	MaxDecompressedBytes int64         `mapstructure:"max_decompressed_bytes"`
	Encodings            []string      `mapstructure:"encodings"`
	RateLimit            int           `mapstructure:"rate_limit"`
	RateWindow           time.Duration `mapstructure:"rate_window"`
}

type DispatchConfig struct {
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	LogLevels   []string      `mapstructure:"log_levels"`
	FeedLevels  []string      `mapstructure:"feed_levels"`
}

type TelegramConfig struct {
	Token   string        `mapstructure:"token"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Levels  []string      `mapstructure:"levels"`
}

type WebhookConfig struct {
	URL     string        `mapstructure:"url"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
	Levels  []string      `mapstructure:"levels"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Levels        []string      `mapstructure:"levels"`
}

type CircuitBreakerConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Threshold int           `mapstructure:"threshold"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Enabled reports whether the telegram sender should be registered.
func (c TelegramConfig) Enabled() bool { return c.Token != "" }

// Enabled reports whether the webhook sender should be registered.
func (c WebhookConfig) Enabled() bool { return c.URL != "" }

// Enabled reports whether the NATS sender should be registered.
func (c NATSConfig) Enabled() bool { return c.URL != "" }

// Addr returns the listen address.
func (c ServerConfig) Addr() string { return fmt.Sprintf(":%d", c.Port) }

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.public_host", "localhost:8080")
	v.SetDefault("server.public_scheme", "http")

	v.SetDefault("database.url", "")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	v.SetDefault("queue.backend", QueueMemory)
	v.SetDefault("queue.key", "relay:events")

	v.SetDefault("ingest.max_body_bytes", 20<<20)
	v.SetDefault("ingest.max_decompressed_bytes", 20<<20)
	v.SetDefault("ingest.encodings", []string{"gzip", "br", "zstd", "deflate"})
	v.SetDefault("ingest.rate_limit", 0)
	v.SetDefault("ingest.rate_window", "1m")

	v.SetDefault("dispatch.send_timeout", "30s")
	v.SetDefault("dispatch.log_levels", []string{})
	v.SetDefault("dispatch.feed_levels", levelNames(domain.Levels()))

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", "10s")
	v.SetDefault("telegram.levels", []string{"error", "fatal", "critical"})

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.timeout", "10s")
	v.SetDefault("webhook.levels", []string{"warning", "error", "fatal", "critical"})

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "relay.events")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.levels", levelNames(domain.Levels()))

	v.SetDefault("circuit_breaker.enabled", true)
	v.SetDefault("circuit_breaker.threshold", 5)
	v.SetDefault("circuit_breaker.cooldown", "1m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads configuration from file and environment variables. An empty
// configPath looks for config.yaml in the working directory and
// /etc/envelope-relay; a missing file is only an error when a path was given.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/envelope-relay")
	}

	// RELAY_SERVER_PORT, RELAY_TELEGRAM_TOKEN, ...
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Plain DATABASE_URL / REDIS_URL as set by most hosting platforms.
	_ = v.BindEnv("database.url", "RELAY_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("redis.url", "RELAY_REDIS_URL", "REDIS_URL")

	if err := v.ReadInConfig(); err != nil {
		if configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

// normalize splits comma separated list values coming from the environment.
func (c *Config) normalize() {
	for _, list := range []*[]string{
		&c.Ingest.Encodings,
		&c.Dispatch.LogLevels,
		&c.Dispatch.FeedLevels,
		&c.Telegram.Levels,
		&c.Webhook.Levels,
		&c.NATS.Levels,
	} {
		*list = splitList(*list)
	}
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
}

// Validate checks settings needed by the serve command.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	switch c.Queue.Backend {
	case QueueMemory, QueueRedis:
	default:
		errs = append(errs, fmt.Errorf("queue.backend must be %q or %q, got %q", QueueMemory, QueueRedis, c.Queue.Backend))
	}
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be positive, got %d", c.Server.Port))
	}
	for name, levels := range map[string][]string{
		"dispatch.log_levels":  c.Dispatch.LogLevels,
		"dispatch.feed_levels": c.Dispatch.FeedLevels,
		"telegram.levels":      c.Telegram.Levels,
		"webhook.levels":       c.Webhook.Levels,
		"nats.levels":          c.NATS.Levels,
	} {
		if _, err := domain.ParseLevels(levels); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.Ingest.RateLimit < 0 {
		errs = append(errs, errors.New("ingest.rate_limit must not be negative"))
	}
	return errors.Join(errs...)
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, entry := range in {
		for _, part := range strings.Split(entry, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func levelNames(levels []domain.Level) []string {
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = l.String()
	}
	return out
}
