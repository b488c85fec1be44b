package config

import (
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultSearchBaseURL      = "https://search.rcsb.org"
	DefaultSearchTimeout      = 30 * time.Second
	DefaultSearchRetryMax     = 3
	DefaultSearchRetryWaitMin = 500 * time.Millisecond
	DefaultSearchRetryWaitMax = 5 * time.Second

	DefaultRedisMode      = "standalone"
	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisTTL       = 24 * time.Hour
	DefaultRedisKeyPrefix = "pdbsieve:"

	DefaultStorageRegion = "us-east-1"

	DefaultKafkaTopic     = "pdbsieve.retained"
	DefaultKafkaAcks      = "all"
	DefaultKafkaBatchSize = 100

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsAddr      = ":9464"
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "pdbsieve"

	DefaultPipelineProgressEvery = 1000
)

// DefaultPipelineWorkers is the worker count used when none is configured.
var DefaultPipelineWorkers = runtime.NumCPU()

// setDefaults registers every key with viper so that PDBSIEVE_* variables
// are picked up by Unmarshal even when no file mentions the key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("search.base_url", DefaultSearchBaseURL)
	v.SetDefault("search.timeout", DefaultSearchTimeout)
	v.SetDefault("search.retry_max", DefaultSearchRetryMax)
	v.SetDefault("search.retry_wait_min", DefaultSearchRetryWaitMin)
	v.SetDefault("search.retry_wait_max", DefaultSearchRetryWaitMax)
	v.SetDefault("search.user_agent", "")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.mode", DefaultRedisMode)
	v.SetDefault("redis.addr", DefaultRedisAddr)
	v.SetDefault("redis.addrs", []string{})
	v.SetDefault("redis.master_name", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 0)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.ttl", DefaultRedisTTL)
	v.SetDefault("redis.key_prefix", DefaultRedisKeyPrefix)
	v.SetDefault("redis.load_lock", true)

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.secret_access_key", "")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.region", DefaultStorageRegion)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", DefaultKafkaTopic)
	v.SetDefault("kafka.acks", DefaultKafkaAcks)
	v.SetDefault("kafka.compression", "")
	v.SetDefault("kafka.batch_size", DefaultKafkaBatchSize)
	v.SetDefault("kafka.sasl_mechanism", "")
	v.SetDefault("kafka.sasl_username", "")
	v.SetDefault("kafka.sasl_password", "")
	v.SetDefault("kafka.tls_enabled", false)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("log.output_paths", []string{"stderr"})

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", DefaultMetricsAddr)
	v.SetDefault("metrics.path", DefaultMetricsPath)
	v.SetDefault("metrics.namespace", DefaultMetricsNamespace)

	v.SetDefault("pipeline.workers", DefaultPipelineWorkers)
	v.SetDefault("pipeline.progress_every", DefaultPipelineProgressEvery)
}

// ApplyDefaults fills every zero-value field in cfg with its default.  Fields
// already set are left unchanged so that explicit configuration always wins.
// Boolean switches keep their zero value.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Search ────────────────────────────────────────────────────────────────
	if cfg.Search.BaseURL == "" {
		cfg.Search.BaseURL = DefaultSearchBaseURL
	}
	if cfg.Search.Timeout == 0 {
		cfg.Search.Timeout = DefaultSearchTimeout
	}
	if cfg.Search.RetryWaitMin == 0 {
		cfg.Search.RetryWaitMin = DefaultSearchRetryWaitMin
	}
	if cfg.Search.RetryWaitMax == 0 {
		cfg.Search.RetryWaitMax = DefaultSearchRetryWaitMax
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Mode == "" {
		cfg.Redis.Mode = DefaultRedisMode
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = DefaultRedisTTL
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = DefaultStorageRegion
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = DefaultKafkaTopic
	}
	if cfg.Kafka.Acks == "" {
		cfg.Kafka.Acks = DefaultKafkaAcks
	}
	if cfg.Kafka.BatchSize == 0 {
		cfg.Kafka.BatchSize = DefaultKafkaBatchSize
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if len(cfg.Log.OutputPaths) == 0 {
		cfg.Log.OutputPaths = []string{"stderr"}
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = DefaultPipelineWorkers
	}
	if cfg.Pipeline.ProgressEvery == 0 {
		cfg.Pipeline.ProgressEvery = DefaultPipelineProgressEvery
	}
}

// Default returns a Config holding only defaults.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Search.RetryMax = DefaultSearchRetryMax
	cfg.Redis.LoadLock = true
	return cfg
}
