package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PDB-Sieve/internal/config"
	"github.com/turtacn/PDB-Sieve/pkg/errors"
)

func validConfig() *config.Config {
	return config.Default()
}

func TestConfig_Validate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"empty base url", func(c *config.Config) { c.Search.BaseURL = "" }, "search.base_url"},
		{"non http base url", func(c *config.Config) { c.Search.BaseURL = "ftp://search.rcsb.org" }, "search.base_url"},
		{"zero timeout", func(c *config.Config) { c.Search.Timeout = 0 }, "search.timeout"},
		{"negative retries", func(c *config.Config) { c.Search.RetryMax = -1 }, "search.retry_max"},
		{"inverted retry wait", func(c *config.Config) {
			c.Search.RetryWaitMin = time.Second
			c.Search.RetryWaitMax = time.Millisecond
		}, "retry_wait_max"},
		{"redis without addr", func(c *config.Config) {
			c.Redis.Enabled = true
			c.Redis.Addr = ""
		}, "redis.addr"},
		{"redis bad mode", func(c *config.Config) {
			c.Redis.Enabled = true
			c.Redis.Mode = "ring"
		}, "redis.mode"},
		{"redis sentinel without master", func(c *config.Config) {
			c.Redis.Enabled = true
			c.Redis.Mode = "sentinel"
			c.Redis.Addrs = []string{"localhost:26379"}
		}, "master_name"},
		{"redis cluster without addrs", func(c *config.Config) {
			c.Redis.Enabled = true
			c.Redis.Mode = "cluster"
		}, "redis.addrs"},
		{"redis zero ttl", func(c *config.Config) {
			c.Redis.Enabled = true
			c.Redis.TTL = 0
		}, "redis.ttl"},
		{"kafka without brokers", func(c *config.Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = nil
		}, "kafka.brokers"},
		{"kafka without topic", func(c *config.Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = []string{"localhost:9092"}
			c.Kafka.Topic = ""
		}, "kafka.topic"},
		{"kafka bad acks", func(c *config.Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = []string{"localhost:9092"}
			c.Kafka.Acks = "most"
		}, "kafka.acks"},
		{"kafka negative batch", func(c *config.Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = []string{"localhost:9092"}
			c.Kafka.BatchSize = -1
		}, "kafka.batch_size"},
		{"bad log level", func(c *config.Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
		{"metrics without addr", func(c *config.Config) {
			c.Metrics.Enabled = true
			c.Metrics.Addr = ""
		}, "metrics.addr"},
		{"zero workers", func(c *config.Config) { c.Pipeline.Workers = 0 }, "pipeline.workers"},
		{"zero progress interval", func(c *config.Config) { c.Pipeline.ProgressEvery = 0 }, "pipeline.progress_every"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
		})
	}
}

func TestConfig_Validate_RedisDisabledSkipsChecks(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Addr = ""
	cfg.Redis.Mode = "bogus"
	assert.NoError(t, cfg.Validate())
}

func TestConfig_SubStructs_ZeroValues(t *testing.T) {
	var cfg config.Config
	assert.Empty(t, cfg.Search.BaseURL)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Zero(t, cfg.Pipeline.Workers)
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_KafkaDisabledSkipsChecks(t *testing.T) {
	cfg := validConfig()
	cfg.Kafka.Brokers = nil
	cfg.Kafka.Acks = "bogus"
	assert.NoError(t, cfg.Validate())
}
