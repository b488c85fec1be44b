package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/turtacn/PDB-Sieve/internal/domain/webfilter"
	"github.com/turtacn/PDB-Sieve/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PDB-Sieve/pkg/errors"
	"golang.org/x/sync/singleflight"
)

var (
	ErrCacheMiss           = errors.New(errors.ErrCodeNotFound, "cache miss")
	ErrSerializationFailed = errors.New(errors.ErrCodeSerialization, "serialization failed")
)

// QueryCache stores search results keyed by a digest of the scope (the
// search endpoint) and the query payload.
type QueryCache struct {
	client     *Client
	logger     logging.Logger
	prefix     string
	scope      string
	defaultTTL time.Duration
}

type CacheOption func(*QueryCache)

func WithPrefix(prefix string) CacheOption {
	return func(c *QueryCache) { c.prefix = prefix }
}

// WithScope separates entries by the endpoint that answered them.
func WithScope(scope string) CacheOption {
	return func(c *QueryCache) { c.scope = scope }
}

func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *QueryCache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

func NewQueryCache(client *Client, log logging.Logger, opts ...CacheOption) *QueryCache {
	c := &QueryCache{
		client:     client,
		logger:     log,
		prefix:     "pdbsieve:",
		defaultTTL: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// QueryKey is the cache key, without prefix, for a query payload sent to
// scope.
func QueryKey(scope, payload string) string {
	h := sha256.New()
	h.Write([]byte(scope))
	h.Write([]byte{0})
	h.Write([]byte(payload))
	return "query:" + hex.EncodeToString(h.Sum(nil))
}

// Prefix returns the key prefix shared by entries and locks.
func (c *QueryCache) Prefix() string { return c.prefix }

// Key returns the unprefixed key of payload in this cache's scope.
func (c *QueryCache) Key(payload string) string {
	return QueryKey(c.scope, payload)
}

func (c *QueryCache) fullKey(payload string) string {
	return c.prefix + c.Key(payload)
}

func (c *QueryCache) jitterTTL(ttl time.Duration) time.Duration {
	if ttl == 0 {
		return 0
	}
	// +/- 10%
	jitter := float64(ttl) * 0.1 * (rand.Float64()*2 - 1)
	return ttl + time.Duration(jitter)
}

// Get returns the cached result for payload or ErrCacheMiss.
func (c *QueryCache) Get(ctx context.Context, payload string) (*webfilter.SearchResult, error) {
	data, err := c.client.Get(ctx, c.fullKey(payload)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to get from cache")
	}
	var res webfilter.SearchResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, ErrSerializationFailed.WithCause(err)
	}
	return &res, nil
}

// Put stores res for payload.  A zero ttl selects the default TTL.
func (c *QueryCache) Put(ctx context.Context, payload string, res *webfilter.SearchResult, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(res)
	if err != nil {
		return ErrSerializationFailed.WithCause(err)
	}
	if err := c.client.Set(ctx, c.fullKey(payload), data, c.jitterTTL(ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to set cache")
	}
	return nil
}

// Invalidate drops the cached result for payload.
func (c *QueryCache) Invalidate(ctx context.Context, payload string) error {
	return c.client.Del(ctx, c.fullKey(payload)).Err()
}

// Purge drops every cached query result and returns the number removed.
func (c *QueryCache) Purge(ctx context.Context) (int64, error) {
	var deleted int64
	var cursor uint64
	match := c.prefix + "query:*"
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return deleted, err
			}
			deleted += int64(len(keys))
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// CachedSearchService
// ─────────────────────────────────────────────────────────────────────────────

// CachedSearchService answers repeated queries from the QueryCache.  Misses
// are collapsed per payload inside the process and, when a LockFactory is
// set, serialised across processes; the cache is re-read after the lock is
// taken.  Cache failures are logged and the query goes to the wrapped
// service.
type CachedSearchService struct {
	next     webfilter.SearchService
	cache    *QueryCache
	locks    LockFactory
	ttl      time.Duration
	logger   logging.Logger
	onLookup func(hit bool)
	group    singleflight.Group
}

var _ webfilter.SearchService = (*CachedSearchService)(nil)

type CachedOption func(*CachedSearchService)

// WithLocks enables the cross-process load lock.
func WithLocks(f LockFactory) CachedOption {
	return func(s *CachedSearchService) { s.locks = f }
}

// WithResultTTL sets how long loaded results stay cached.
func WithResultTTL(ttl time.Duration) CachedOption {
	return func(s *CachedSearchService) { s.ttl = ttl }
}

// WithLookupHook registers fn to be told whether each lookup hit the cache.
func WithLookupHook(fn func(hit bool)) CachedOption {
	return func(s *CachedSearchService) { s.onLookup = fn }
}

func NewCachedSearchService(next webfilter.SearchService, cache *QueryCache, log logging.Logger, opts ...CachedOption) *CachedSearchService {
	if log == nil {
		log = logging.NewNopLogger()
	}
	s := &CachedSearchService{
		next:     next,
		cache:    cache,
		logger:   log.Named("query_cache"),
		onLookup: func(bool) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CachedSearchService) PostQuery(ctx context.Context, payload string) (*webfilter.SearchResult, error) {
	key := s.cache.Key(payload)

	res, err := s.cache.Get(ctx, payload)
	if err == nil {
		s.onLookup(true)
		s.logger.Debug("query cache hit", logging.String("key", key))
		return res, nil
	}
	if err != ErrCacheMiss {
		s.logger.Warn("query cache unavailable", logging.String("key", key), logging.Err(err))
	}
	s.onLookup(false)

	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		return s.load(ctx, key, payload)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("query load shared", logging.String("key", key))
	}
	return v.(*webfilter.SearchResult), nil
}

func (s *CachedSearchService) load(ctx context.Context, key, payload string) (*webfilter.SearchResult, error) {
	if s.locks != nil {
		m := s.locks.NewMutex(key, WithWatchdog(true))
		if err := m.Lock(ctx); err != nil {
			s.logger.Warn("query load lock not acquired", logging.String("key", key), logging.Err(err))
		} else {
			defer func() {
				if err := m.Unlock(context.Background()); err != nil {
					s.logger.Warn("query load unlock failed", logging.String("key", key), logging.Err(err))
				}
			}()
			if res, err := s.cache.Get(ctx, payload); err == nil {
				return res, nil
			}
		}
	}

	res, err := s.next.PostQuery(ctx, payload)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Put(ctx, payload, res, s.ttl); err != nil {
		s.logger.Warn("query cache store failed", logging.String("key", key), logging.Err(err))
	}
	return res, nil
}
