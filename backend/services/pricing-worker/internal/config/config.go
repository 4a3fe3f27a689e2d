package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "greenlane/backend/libs/config"
	libkafka "greenlane/backend/libs/kafka"
	libredis "greenlane/backend/libs/redis"
	"greenlane/backend/services/pricing-worker/internal/pipeline"
)

const defaultHTTPPort = "9102"

// HTTPConfig is the health and metrics listener.
type HTTPConfig struct {
	Port string `yaml:"port" env:"PRICING_WORKER_HTTP_PORT"`
}

// KafkaConfig is the telemetry subscription.
type KafkaConfig struct {
	Brokers     string `yaml:"brokers" env:"KAFKA_BROKERS"`
	Topic       string `yaml:"topic" env:"KAFKA_TOPIC"`
	GroupID     string `yaml:"groupId" env:"KAFKA_GROUP_ID"`
	StartOffset string `yaml:"startOffset" env:"KAFKA_START_OFFSET"`
}

// DatabaseConfig is the session store connection.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"PRICING_WORKER_POSTGRES_DSN"`
}

// RedisConfig enables the dead-letter list and quote cache. Empty Addr disables both.
type RedisConfig struct {
	Addr          string `yaml:"addr" env:"PRICING_WORKER_REDIS_ADDR"`
	Password      string `yaml:"password" env:"PRICING_WORKER_REDIS_PASSWORD"`
	DB            int    `yaml:"db" env:"PRICING_WORKER_REDIS_DB"`
	DeadLetterKey string `yaml:"deadLetterKey" env:"PRICING_WORKER_REDIS_DEADLETTER_KEY"`
	QuoteKey      string `yaml:"quoteKey" env:"PRICING_WORKER_REDIS_QUOTE_KEY"`
}

// PricingConfig describes the pricing endpoint and how hard to try it.
type PricingConfig struct {
	URL                  string  `yaml:"url" env:"PRICING_URL"`
	TimeoutSeconds       int     `yaml:"timeoutSeconds" env:"PRICING_TIMEOUT_SECONDS"`
	MaxAttempts          int     `yaml:"maxAttempts" env:"PRICING_MAX_ATTEMPTS"`
	BackoffInitialMillis int     `yaml:"backoffInitialMillis" env:"PRICING_BACKOFF_INITIAL_MILLIS"`
	BackoffMaxMillis     int     `yaml:"backoffMaxMillis" env:"PRICING_BACKOFF_MAX_MILLIS"`
	RateLimitPerSecond   float64 `yaml:"rateLimitPerSecond" env:"PRICING_RATE_LIMIT_PER_SECOND"`
	CacheTTLSeconds      int     `yaml:"cacheTtlSeconds" env:"PRICING_CACHE_TTL_SECONDS"`
}

// PipelineConfig tunes the driver loop.
type PipelineConfig struct {
	CommitMode            string `yaml:"commitMode" env:"PRICING_WORKER_COMMIT_MODE"`
	Workers               int    `yaml:"workers" env:"PRICING_WORKER_WORKERS"`
	OrderedCommit         bool   `yaml:"orderedCommit" env:"PRICING_WORKER_ORDERED_COMMIT"`
	SinkMaxAttempts       int    `yaml:"sinkMaxAttempts" env:"PRICING_WORKER_SINK_MAX_ATTEMPTS"`
	FetchErrorPauseMillis int    `yaml:"fetchErrorPauseMillis" env:"PRICING_WORKER_FETCH_ERROR_PAUSE_MILLIS"`
	IdempotentInserts     bool   `yaml:"idempotentInserts" env:"PRICING_WORKER_IDEMPOTENT_INSERTS"`
}

// Config defines pricing worker configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Pricing  PricingConfig  `yaml:"pricing"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{Port: defaultHTTPPort},
		Kafka: KafkaConfig{
			Brokers:     "localhost:19092",
			Topic:       "fleet-events",
			GroupID:     "pricing-worker-group",
			StartOffset: "earliest",
		},
		Redis: RedisConfig{
			DeadLetterKey: "pricing:deadletter",
			QuoteKey:      "pricing:quote:current",
		},
		Pricing: PricingConfig{
			URL:                  "http://localhost:8081/api/pricing",
			TimeoutSeconds:       5,
			MaxAttempts:          3,
			BackoffInitialMillis: 200,
			BackoffMaxMillis:     2000,
		},
		Pipeline: PipelineConfig{
			CommitMode:            string(pipeline.AtMostOnce),
			Workers:               1,
			OrderedCommit:         true,
			SinkMaxAttempts:       3,
			FetchErrorPauseMillis: 1000,
		},
	}
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the worker cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("config: database dsn required")
	}
	if len(c.KafkaReader().Brokers) == 0 {
		return errors.New("config: kafka brokers required")
	}
	if strings.TrimSpace(c.Kafka.Topic) == "" {
		return errors.New("config: kafka topic required")
	}
	if strings.TrimSpace(c.Kafka.GroupID) == "" {
		return errors.New("config: kafka group id required")
	}
	if strings.TrimSpace(c.Pricing.URL) == "" {
		return errors.New("config: pricing url required")
	}
	mode, err := c.CommitMode()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	// Redelivered messages get a new capture time and session id, so only the source
	// reference can deduplicate them.
	if mode == pipeline.AtLeastOnce && !c.Pipeline.IdempotentInserts {
		return errors.New("config: at-least-once commit mode requires pipeline.idempotentInserts")
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("config: pipeline workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Pricing.CacheTTLSeconds < 0 {
		return errors.New("config: pricing cache ttl must not be negative")
	}
	if c.Pricing.RateLimitPerSecond < 0 {
		return errors.New("config: pricing rate limit must not be negative")
	}
	if c.Pricing.CacheTTLSeconds > 0 && !c.RedisEnabled() {
		return errors.New("config: pricing cache requires redis addr")
	}
	return nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = defaultHTTPPort
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// KafkaReader returns the subscription options.
func (c *Config) KafkaReader() libkafka.ReaderOptions {
	return libkafka.ReaderOptions{
		Brokers:     libkafka.ParseBrokers(c.Kafka.Brokers),
		Topic:       strings.TrimSpace(c.Kafka.Topic),
		GroupID:     strings.TrimSpace(c.Kafka.GroupID),
		StartOffset: c.Kafka.StartOffset,
	}
}

// RedisClient returns the connection options for the dead-letter list and quote cache.
func (c *Config) RedisClient() libredis.ClientOptions {
	return libredis.ClientOptions{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}

// RedisEnabled reports whether a redis address is configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

// CommitMode parses the configured commit mode.
func (c *Config) CommitMode() (pipeline.CommitMode, error) {
	return pipeline.ParseCommitMode(c.Pipeline.CommitMode)
}

// PricingTimeout is the per-attempt deadline for the pricing endpoint.
func (c *Config) PricingTimeout() time.Duration {
	return seconds(c.Pricing.TimeoutSeconds)
}

// PricingBackoff returns the initial and maximum retry intervals.
func (c *Config) PricingBackoff() (initial, maximum time.Duration) {
	return millis(c.Pricing.BackoffInitialMillis), millis(c.Pricing.BackoffMaxMillis)
}

// QuoteCacheTTL is zero when quotes are fetched per event.
func (c *Config) QuoteCacheTTL() time.Duration {
	return seconds(c.Pricing.CacheTTLSeconds)
}

// FetchErrorPause is the wait after a failed stream receive.
func (c *Config) FetchErrorPause() time.Duration {
	return millis(c.Pipeline.FetchErrorPauseMillis)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func millis(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}
