package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PDB-Sieve/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PDB-Sieve/pkg/errors"
)

const validConfigYAML = `
search:
  base_url: "http://localhost:8080"
  timeout: 10s
  retry_max: 1
redis:
  enabled: true
  addr: "localhost:6379"
  ttl: 1h
  key_prefix: "test:"
log:
  level: debug
  format: console
metrics:
  enabled: true
  addr: ":9100"
pipeline:
  workers: 2
  progress_every: 50
`

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FromFile_ValidConfig(t *testing.T) {
	cfg, err := Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.Search.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Search.Timeout)
	assert.Equal(t, 1, cfg.Search.RetryMax)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
	assert.Equal(t, "test:", cfg.Redis.KeyPrefix)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, 50, cfg.Pipeline.ProgressEvery)
}

func TestLoad_FromFile_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestLoad_FromFile_InvalidYAML(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "search: [unclosed"))
	assert.Error(t, err)
}

func TestLoad_FromFile_ValidationFailure(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "log:\n  level: loud\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PDBSIEVE_LOG_LEVEL", "warn")
	t.Setenv("PDBSIEVE_SEARCH_TIMEOUT", "3s")

	cfg, err := Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 3*time.Second, cfg.Search.Timeout)
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load(createTempConfigFile(t, "log:\n  level: info\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultSearchBaseURL, cfg.Search.BaseURL)
	assert.Equal(t, DefaultSearchRetryMax, cfg.Search.RetryMax)
	assert.Equal(t, DefaultRedisTTL, cfg.Redis.TTL)
	assert.False(t, cfg.Redis.Enabled)
	assert.True(t, cfg.Redis.LoadLock)
	assert.Equal(t, DefaultMetricsNamespace, cfg.Metrics.Namespace)
	assert.Equal(t, DefaultPipelineProgressEvery, cfg.Pipeline.ProgressEvery)
}

func TestLoadFromEnv_NoFile(t *testing.T) {
	t.Setenv("PDBSIEVE_SEARCH_BASE_URL", "http://search.internal")
	t.Setenv("PDBSIEVE_REDIS_ENABLED", "true")
	t.Setenv("PDBSIEVE_REDIS_ADDR", "cache:6379")
	t.Setenv("PDBSIEVE_PIPELINE_WORKERS", "9")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://search.internal", cfg.Search.BaseURL)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 9, cfg.Pipeline.Workers)
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	t.Setenv("PDBSIEVE_PIPELINE_WORKERS", "0")
	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.workers")
}

func TestWatch_MissingFile(t *testing.T) {
	err := Watch(filepath.Join(t.TempDir(), "missing.yaml"), logging.NewNopLogger(), func(*Config) {})
	assert.Error(t, err)
}

func TestWatch_Reload(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	changed := make(chan *Config, 16)
	require.NoError(t, Watch(path, nil, func(c *Config) { changed <- c }))

	updated := []byte("log:\n  level: error\n  format: json\n")
	require.NoError(t, os.WriteFile(path, updated, 0o600))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.Log.Level == "error" {
				return
			}
		case <-deadline:
			t.Skip("file watcher did not report the change in time")
		}
	}
}

func TestMustLoad_Success(t *testing.T) {
	cfg := MustLoad(createTempConfigFile(t, validConfigYAML))
	assert.NotNil(t, cfg)
}

func TestMustLoad_Panic(t *testing.T) {
	assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "missing.yaml")) })
}
