// Package config defines the configuration of the pdbsieve tools.  No I/O or
// parsing logic lives here, only plain data types and validation.
package config

import (
	"net/url"
	"time"

	"github.com/turtacn/PDB-Sieve/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// SearchConfig holds the RCSB search service connection settings.
type SearchConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RetryMax     int           `mapstructure:"retry_max"`
	RetryWaitMin time.Duration `mapstructure:"retry_wait_min"`
	RetryWaitMax time.Duration `mapstructure:"retry_wait_max"`
	UserAgent    string        `mapstructure:"user_agent"`
}

// RedisConfig holds the query result cache settings.
type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Mode        string        `mapstructure:"mode"` // "standalone" | "sentinel" | "cluster"
	Addr        string        `mapstructure:"addr"`
	Addrs       []string      `mapstructure:"addrs"`
	MasterName  string        `mapstructure:"master_name"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	TTL         time.Duration `mapstructure:"ttl"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	LoadLock    bool          `mapstructure:"load_lock"`
}

// ObjectStoreConfig holds the S3-compatible store used for s3:// inputs and
// result exports.
type ObjectStoreConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Region          string `mapstructure:"region"`
}

// KafkaConfig holds the retained-structure publisher settings.
type KafkaConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	Brokers          []string `mapstructure:"brokers"`
	Topic            string   `mapstructure:"topic"`
	Acks             string   `mapstructure:"acks"`
	CompressionCodec string   `mapstructure:"compression"`
	BatchSize        int      `mapstructure:"batch_size"`
	SASLMechanism    string   `mapstructure:"sasl_mechanism"`
	SASLUsername     string   `mapstructure:"sasl_username"`
	SASLPassword     string   `mapstructure:"sasl_password"`
	TLSEnabled       bool     `mapstructure:"tls_enabled"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level       string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format      string   `mapstructure:"format"` // "json" | "console"
	OutputPaths []string `mapstructure:"output_paths"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// PipelineConfig holds record processing settings.
type PipelineConfig struct {
	Workers int `mapstructure:"workers"`
	// ProgressEvery is the number of evaluated records between progress logs.
	ProgressEvery int `mapstructure:"progress_every"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration.
type Config struct {
	Search   SearchConfig      `mapstructure:"search"`
	Redis    RedisConfig       `mapstructure:"redis"`
	Storage  ObjectStoreConfig `mapstructure:"storage"`
	Kafka    KafkaConfig       `mapstructure:"kafka"`
	Log      LogConfig         `mapstructure:"log"`
	Metrics  MetricsConfig     `mapstructure:"metrics"`
	Pipeline PipelineConfig    `mapstructure:"pipeline"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config and
// returns the first problem found.
func (c *Config) Validate() error {
	// Search
	u, err := url.Parse(c.Search.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Newf(errors.ErrCodeValidation, "search.base_url %q must be an http(s) URL", c.Search.BaseURL)
	}
	if c.Search.Timeout <= 0 {
		return errors.Newf(errors.ErrCodeValidation, "search.timeout must be > 0, got %s", c.Search.Timeout)
	}
	if c.Search.RetryMax < 0 {
		return errors.Newf(errors.ErrCodeValidation, "search.retry_max must be >= 0, got %d", c.Search.RetryMax)
	}
	if c.Search.RetryWaitMax < c.Search.RetryWaitMin {
		return errors.New(errors.ErrCodeValidation, "search.retry_wait_max must not be below search.retry_wait_min")
	}

	// Redis
	if c.Redis.Enabled {
		switch c.Redis.Mode {
		case "standalone":
			if c.Redis.Addr == "" {
				return errors.New(errors.ErrCodeValidation, "redis.addr is required")
			}
		case "sentinel":
			if c.Redis.MasterName == "" || len(c.Redis.Addrs) == 0 {
				return errors.New(errors.ErrCodeValidation, "redis sentinel mode needs redis.master_name and redis.addrs")
			}
		case "cluster":
			if len(c.Redis.Addrs) == 0 {
				return errors.New(errors.ErrCodeValidation, "redis cluster mode needs redis.addrs")
			}
		default:
			return errors.Newf(errors.ErrCodeValidation, "redis.mode %q is invalid; expected standalone|sentinel|cluster", c.Redis.Mode)
		}
		if c.Redis.DB < 0 {
			return errors.Newf(errors.ErrCodeValidation, "redis.db must be >= 0, got %d", c.Redis.DB)
		}
		if c.Redis.TTL <= 0 {
			return errors.Newf(errors.ErrCodeValidation, "redis.ttl must be > 0, got %s", c.Redis.TTL)
		}
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return errors.New(errors.ErrCodeValidation, "kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return errors.New(errors.ErrCodeValidation, "kafka.topic is required when kafka is enabled")
		}
		switch c.Kafka.Acks {
		case "none", "one", "all":
		default:
			return errors.Newf(errors.ErrCodeValidation, "kafka.acks %q is invalid; expected none|one|all", c.Kafka.Acks)
		}
		if c.Kafka.BatchSize < 1 {
			return errors.Newf(errors.ErrCodeValidation, "kafka.batch_size must be >= 1, got %d", c.Kafka.BatchSize)
		}
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.Newf(errors.ErrCodeValidation, "log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return errors.Newf(errors.ErrCodeValidation, "log.format %q is invalid; expected json|console", c.Log.Format)
	}

	// Metrics
	if c.Metrics.Enabled {
		if c.Metrics.Addr == "" {
			return errors.New(errors.ErrCodeValidation, "metrics.addr is required when metrics are enabled")
		}
		if c.Metrics.Namespace == "" {
			return errors.New(errors.ErrCodeValidation, "metrics.namespace is required when metrics are enabled")
		}
	}

	// Pipeline
	if c.Pipeline.Workers < 1 {
		return errors.Newf(errors.ErrCodeValidation, "pipeline.workers must be >= 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.ProgressEvery < 1 {
		return errors.Newf(errors.ErrCodeValidation, "pipeline.progress_every must be >= 1, got %d", c.Pipeline.ProgressEvery)
	}

	return nil
}
