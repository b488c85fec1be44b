package cli

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/turtacn/PDB-Sieve/internal/application/sieve"
	"github.com/turtacn/PDB-Sieve/internal/config"
	"github.com/turtacn/PDB-Sieve/internal/domain/webfilter"
	"github.com/turtacn/PDB-Sieve/internal/infrastructure/database/redis"
	"github.com/turtacn/PDB-Sieve/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/PDB-Sieve/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/PDB-Sieve/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/PDB-Sieve/internal/infrastructure/search/rcsb"
	"github.com/turtacn/PDB-Sieve/internal/infrastructure/source"
	"github.com/turtacn/PDB-Sieve/internal/infrastructure/storage/minio"
	"github.com/turtacn/PDB-Sieve/pkg/errors"
)

// initMetrics registers the sieve metrics and starts the exposition server
// when metrics are enabled.
func initMetrics(c *CLIContext) error {
	if !c.Config.Metrics.Enabled {
		return nil
	}
	collector, err := prom.NewMetricsCollector(prom.CollectorConfig{
		Namespace:            c.Config.Metrics.Namespace,
		EnableGoMetrics:      true,
		EnableProcessMetrics: true,
		ConstLabels:          map[string]string{"version": Version},
	}, c.Logger)
	if err != nil {
		return err
	}
	c.Collector = collector
	c.Metrics = prom.NewSieveMetrics(collector)

	mux := http.NewServeMux()
	mux.Handle(c.Config.Metrics.Path, collector.Handler())
	srv := &http.Server{
		Addr:              c.Config.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.Logger.Error("metrics server stopped", logging.Err(err))
		}
	}()
	c.Logger.Info("metrics exposed",
		logging.String("addr", c.Config.Metrics.Addr),
		logging.String("path", c.Config.Metrics.Path))

	c.onClose(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	return nil
}

// redisConfig maps the cache section onto the client settings.
func redisConfig(cfg config.RedisConfig) *redis.RedisConfig {
	rc := &redis.RedisConfig{
		Mode:        cfg.Mode,
		Addr:        cfg.Addr,
		MasterName:  cfg.MasterName,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	}
	switch cfg.Mode {
	case "sentinel":
		rc.SentinelAddrs = cfg.Addrs
	case "cluster":
		rc.ClusterAddrs = cfg.Addrs
	}
	return rc
}

// openRedis connects the configured redis client.
func openRedis(c *CLIContext) (*redis.Client, error) {
	rdb, err := redis.NewClient(redisConfig(c.Config.Redis), c.Logger)
	if err != nil {
		return nil, err
	}
	c.onClose(rdb.Close)
	return rdb, nil
}

// SearchService returns the remote search service, decorated with the redis
// query cache and metrics as configured.  The service is built once per
// command.
func (c *CLIContext) SearchService() (webfilter.SearchService, error) {
	if c.search != nil {
		return c.search, nil
	}

	var svc webfilter.SearchService
	if c.override != nil {
		svc = c.override
	} else {
		s, err := rcsb.NewService(rcsb.ServiceConfig{
			BaseURL:      c.Config.Search.BaseURL,
			Timeout:      c.Config.Search.Timeout,
			RetryMax:     c.Config.Search.RetryMax,
			RetryWaitMin: c.Config.Search.RetryWaitMin,
			RetryWaitMax: c.Config.Search.RetryWaitMax,
			UserAgent:    c.Config.Search.UserAgent,
		}, c.Logger)
		if err != nil {
			return nil, err
		}
		svc = s
	}
	svc = sieve.InstrumentSearch(svc, "rcsb", c.Metrics)

	if c.Config.Redis.Enabled && !c.noCache {
		rdb, err := openRedis(c)
		if err != nil {
			// The cache is optional; queries go straight to the service.
			c.Logger.Warn("query cache unavailable", logging.Err(err))
		} else {
			cache := redis.NewQueryCache(rdb, c.Logger,
				redis.WithPrefix(c.Config.Redis.KeyPrefix),
				redis.WithScope(c.Config.Search.BaseURL),
				redis.WithDefaultTTL(c.Config.Redis.TTL))
			opts := []redis.CachedOption{redis.WithResultTTL(c.Config.Redis.TTL)}
			if c.Config.Redis.LoadLock {
				opts = append(opts, redis.WithLocks(redis.NewLockFactory(rdb, c.Config.Redis.KeyPrefix, c.Logger)))
			}
			if c.Metrics != nil {
				m := c.Metrics
				opts = append(opts, redis.WithLookupHook(func(hit bool) { prom.RecordCacheLookup(m, "redis", hit) }))
			}
			svc = redis.NewCachedSearchService(svc, cache, c.Logger, opts...)
		}
	}

	c.search = svc
	return svc, nil
}

// QueryCache opens the configured redis query cache.
func (c *CLIContext) QueryCache() (*redis.QueryCache, error) {
	if !c.Config.Redis.Enabled {
		return nil, errors.New(errors.CodeInvalidFilterConfig, "redis query cache is disabled in the configuration")
	}
	rdb, err := openRedis(c)
	if err != nil {
		return nil, err
	}
	return redis.NewQueryCache(rdb, c.Logger,
		redis.WithPrefix(c.Config.Redis.KeyPrefix),
		redis.WithScope(c.Config.Search.BaseURL),
		redis.WithDefaultTTL(c.Config.Redis.TTL)), nil
}

// commandContext applies the global timeout.
func (c *CLIContext) commandContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(parent, c.Timeout)
	}
	return context.WithCancel(parent)
}

// ObjectStore connects the configured S3-compatible store.
func (c *CLIContext) ObjectStore() (*minio.MinIOClient, error) {
	if c.objects != nil {
		return c.objects, nil
	}
	st := c.Config.Storage
	mcfg := &minio.MinIOConfig{
		Endpoint:        st.Endpoint,
		AccessKeyID:     st.AccessKeyID,
		SecretAccessKey: st.SecretAccessKey,
		UseSSL:          st.UseSSL,
		Region:          st.Region,
	}
	var mc *minio.MinIOClient
	if c.objectAPI != nil {
		mc = minio.NewMinIOClientFromAPI(c.objectAPI, mcfg, c.Logger)
	} else {
		if st.Endpoint == "" {
			return nil, errors.New(errors.CodeInvalidFilterConfig, "storage.endpoint is required for s3:// locations")
		}
		var err error
		if mc, err = minio.NewMinIOClient(mcfg, c.Logger); err != nil {
			return nil, err
		}
	}
	c.objects = mc
	c.onClose(mc.Close)
	return mc, nil
}

// Publisher returns the retained-structure producer, or nil when publishing
// is disabled.
func (c *CLIContext) Publisher() (*kafka.Producer, error) {
	k := c.Config.Kafka
	if !k.Enabled {
		return nil, nil
	}
	if c.publisher != nil {
		return c.publisher, nil
	}
	pcfg := kafka.ProducerConfig{
		Brokers:          k.Brokers,
		Acks:             k.Acks,
		CompressionCodec: k.CompressionCodec,
		BatchSize:        k.BatchSize,
		SASLEnabled:      k.SASLMechanism != "",
		SASLMechanism:    k.SASLMechanism,
		SASLUsername:     k.SASLUsername,
		SASLPassword:     k.SASLPassword,
		TLSEnabled:       k.TLSEnabled,
	}
	var p *kafka.Producer
	if c.writer != nil {
		p = kafka.NewProducerWithWriter(c.writer, pcfg, c.Logger)
	} else {
		var err error
		if p, err = kafka.NewProducer(pcfg, c.Logger); err != nil {
			return nil, err
		}
	}
	c.publisher = p
	c.onClose(p.Close)
	return p, nil
}

// openInput opens a local path, stdin ("-") or an s3:// object as a record
// source.
func (c *CLIContext) openInput(ctx context.Context, input string) (source.Source, io.Closer, error) {
	if !minio.IsURI(input) {
		f, err := source.OpenFile(input)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	}
	store, err := c.ObjectStore()
	if err != nil {
		return nil, nil, err
	}
	rc, err := store.Open(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return source.NewJSONLines(rc), rc, nil
}
