package redis

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/turtacn/PDB-Sieve/internal/domain/webfilter"
	"github.com/turtacn/PDB-Sieve/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PDB-Sieve/pkg/errors"
)

const payload = `{"query":{"type":"terminal","service":"text"},"return_type":"polymer_entity"}`

var sample = &webfilter.SearchResult{
	ResultType:  webfilter.ResultTypePolymerEntity,
	Identifiers: []string{"1ABC_1", "1ABC_2"},
	Scores:      []float64{1, 0.5},
}

// countingService returns sample and counts the calls that reach it.
type countingService struct {
	calls int32
	delay time.Duration
	err   error
}

func (s *countingService) PostQuery(ctx context.Context, _ string) (*webfilter.SearchResult, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return sample, nil
}

type QueryCacheTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *Client
	cache  *QueryCache
}

func (s *QueryCacheTestSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	client, err := NewClient(&RedisConfig{Addr: s.mr.Addr()}, logging.NewNopLogger())
	s.Require().NoError(err)
	s.client = client
	s.cache = NewQueryCache(client, logging.NewNopLogger(), WithPrefix("test:"), WithDefaultTTL(time.Hour))
}

func (s *QueryCacheTestSuite) TearDownTest() {
	s.client.Close()
}

func (s *QueryCacheTestSuite) TestGet_Miss() {
	_, err := s.cache.Get(context.Background(), payload)
	s.Equal(ErrCacheMiss, err)
}

func (s *QueryCacheTestSuite) TestPutGet_RoundTrip() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Put(ctx, payload, sample, 0))

	got, err := s.cache.Get(ctx, payload)
	s.Require().NoError(err)
	s.Equal(sample, got)

	key := "test:" + QueryKey("", payload)
	s.True(s.mr.Exists(key))
	ttl := s.mr.TTL(key)
	s.GreaterOrEqual(ttl, 54*time.Minute)
	s.LessOrEqual(ttl, 66*time.Minute)
}

func (s *QueryCacheTestSuite) TestGet_CorruptEntry() {
	s.Require().NoError(s.mr.Set("test:"+QueryKey("", payload), "{not json"))
	_, err := s.cache.Get(context.Background(), payload)
	s.True(errors.IsCode(err, errors.ErrCodeSerialization))
}

func (s *QueryCacheTestSuite) TestInvalidateAndPurge() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Put(ctx, payload, sample, 0))
	s.Require().NoError(s.cache.Put(ctx, "other", sample, 0))
	s.Require().NoError(s.mr.Set("test:lock:mutex:x", "held"))

	s.Require().NoError(s.cache.Invalidate(ctx, payload))
	_, err := s.cache.Get(ctx, payload)
	s.Equal(ErrCacheMiss, err)

	n, err := s.cache.Purge(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), n)
	s.True(s.mr.Exists("test:lock:mutex:x"), "purge leaves locks alone")
}

func (s *QueryCacheTestSuite) TestCachedService_LoadsOnce() {
	ctx := context.Background()
	next := &countingService{}
	var hits, misses int32
	svc := NewCachedSearchService(next, s.cache, nil,
		WithLocks(NewLockFactory(s.client, s.cache.Prefix(), logging.NewNopLogger())),
		WithLookupHook(func(hit bool) {
			if hit {
				atomic.AddInt32(&hits, 1)
			} else {
				atomic.AddInt32(&misses, 1)
			}
		}))

	for i := 0; i < 3; i++ {
		got, err := svc.PostQuery(ctx, payload)
		s.Require().NoError(err)
		s.Equal(sample.Identifiers, got.Identifiers)
	}
	s.Equal(int32(1), atomic.LoadInt32(&next.calls))
	s.Equal(int32(2), atomic.LoadInt32(&hits))
	s.Equal(int32(1), atomic.LoadInt32(&misses))
	s.False(s.mr.Exists("test:lock:mutex:"+QueryKey("", payload)), "load lock released")
}

func (s *QueryCacheTestSuite) TestCachedService_CollapsesConcurrentMisses() {
	next := &countingService{delay: 50 * time.Millisecond}
	svc := NewCachedSearchService(next, s.cache, logging.NewNopLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PostQuery(context.Background(), payload)
			assert.NoError(s.T(), err)
		}()
	}
	wg.Wait()
	s.Equal(int32(1), atomic.LoadInt32(&next.calls))
}

func (s *QueryCacheTestSuite) TestCachedService_ErrorNotCached() {
	ctx := context.Background()
	boom := stderrors.New("service down")
	next := &countingService{err: boom}
	svc := NewCachedSearchService(next, s.cache, logging.NewNopLogger())

	_, err := svc.PostQuery(ctx, payload)
	s.ErrorIs(err, boom)
	_, err = s.cache.Get(ctx, payload)
	s.Equal(ErrCacheMiss, err)
}

func (s *QueryCacheTestSuite) TestScopeSeparatesEndpoints() {
	ctx := context.Background()
	next := &countingService{}
	primary := NewQueryCache(s.client, logging.NewNopLogger(), WithPrefix("test:"), WithScope("https://search.rcsb.org"))
	mirror := NewQueryCache(s.client, logging.NewNopLogger(), WithPrefix("test:"), WithScope("http://localhost:8080"))
	s.NotEqual(primary.Key(payload), mirror.Key(payload))

	for _, c := range []*QueryCache{primary, mirror, primary} {
		_, err := NewCachedSearchService(next, c, logging.NewNopLogger()).PostQuery(ctx, payload)
		s.Require().NoError(err)
	}
	s.Equal(int32(2), atomic.LoadInt32(&next.calls), "each endpoint loads once")

	n, err := s.cache.Purge(ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), n, "purge covers every scope")
}

func TestQueryCacheSuite(t *testing.T) {
	suite.Run(t, new(QueryCacheTestSuite))
}

func TestCachedService_FallsThroughWhenRedisFails(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := NewClientFromUniversal(db, nil, nil)
	cache := NewQueryCache(client, logging.NewNopLogger(), WithPrefix("test:"))

	key := "test:" + QueryKey("", payload)
	mock.ExpectGet(key).SetErr(stderrors.New("connection reset"))
	// The store after the load is unexpected by the mock and fails; the
	// result is still returned.

	next := &countingService{}
	svc := NewCachedSearchService(next, cache, logging.NewNopLogger())
	got, err := svc.PostQuery(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, sample, got)
	assert.Equal(t, int32(1), next.calls)
}
