package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/lsoma/internal/application/pipeline"
	"github.com/turtacn/lsoma/internal/domain/params"
	"github.com/turtacn/lsoma/internal/domain/viability"
	"github.com/turtacn/lsoma/internal/testutil"
	"github.com/turtacn/lsoma/pkg/errors"
)

func TestNewClient_Standalone(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), Config{Addr: mr.Addr()}, nil)
	require.NoError(t, err)
	assert.Equal(t, "standalone", client.Config().Mode)
	assert.Equal(t, "lsoma:", client.Config().KeyPrefix)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.ErrorIs(t, client.Ping(context.Background()), ErrClientClosed)
}

func TestNewClient_ConnectionFailed(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), Config{Addr: addr, DialTimeout: 200 * time.Millisecond}, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCacheError))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"standalone", Config{Addr: "localhost:6379"}, true},
		{"standalone without addr", Config{}, false},
		{"sentinel", Config{Mode: "sentinel", MasterName: "m", SentinelAddrs: []string{"a:26379"}}, true},
		{"sentinel without master", Config{Mode: "sentinel", SentinelAddrs: []string{"a:26379"}}, false},
		{"cluster", Config{Mode: "cluster", ClusterAddrs: []string{"a:7000"}}, true},
		{"unknown mode", Config{Mode: "ring", Addr: "a"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))
			}
		})
	}
}

type CacheTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *Client
	cache  *SummaryCache
	ctx    context.Context
}

func (s *CacheTestSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	client, err := NewClient(context.Background(), Config{Addr: s.mr.Addr(), TTL: time.Hour}, testutil.NewMockLogger())
	s.Require().NoError(err)
	s.client = client
	s.cache = NewSummaryCache(client, WithoutJitter())
	s.ctx = context.Background()
}

func (s *CacheTestSuite) TearDownTest() {
	_ = s.client.Close()
}

func (s *CacheTestSuite) TestMissThenHit() {
	_, ok, err := s.cache.GetSummary(s.ctx, "fp:1")
	s.NoError(err)
	s.False(ok)

	want := viability.Summary{Sites: 3, ViableClusters: 2, TotalBeds: 351.5, SubCritical: 1, SubCriticalBeds: 18}
	s.Require().NoError(s.cache.SetSummary(s.ctx, "fp:1", want))

	got, ok, err := s.cache.GetSummary(s.ctx, "fp:1")
	s.NoError(err)
	s.True(ok)
	s.Equal(want, got)
	s.True(s.mr.Exists("lsoma:summary:fp:1"))
	s.Equal(time.Hour, s.mr.TTL("lsoma:summary:fp:1"))
}

func (s *CacheTestSuite) TestExpiry() {
	s.Require().NoError(s.cache.SetSummary(s.ctx, "fp:1", viability.Summary{Sites: 1}))
	s.mr.FastForward(2 * time.Hour)
	_, ok, err := s.cache.GetSummary(s.ctx, "fp:1")
	s.NoError(err)
	s.False(ok)
}

func (s *CacheTestSuite) TestCorruptEntry() {
	s.Require().NoError(s.mr.Set("lsoma:summary:fp:bad", "{not json"))
	_, ok, err := s.cache.GetSummary(s.ctx, "fp:bad")
	s.False(ok)
	s.True(errors.IsCode(err, errors.ErrCodeSerialization))
}

func (s *CacheTestSuite) TestUnavailable() {
	s.mr.Close()
	_, _, err := s.cache.GetSummary(s.ctx, "fp:1")
	s.True(errors.IsCode(err, errors.ErrCodeCacheError))
	s.True(errors.IsCode(s.cache.SetSummary(s.ctx, "fp:1", viability.Summary{}), errors.ErrCodeCacheError))
}

func (s *CacheTestSuite) TestInvalidate() {
	for _, k := range []string{"a:1", "a:2", "a:3", "b:1"} {
		s.Require().NoError(s.cache.SetSummary(s.ctx, k, viability.Summary{Sites: 1}))
	}
	n, err := s.cache.Invalidate(s.ctx, "a")
	s.NoError(err)
	s.Equal(int64(3), n)
	s.False(s.mr.Exists("lsoma:summary:a:1"))
	s.True(s.mr.Exists("lsoma:summary:b:1"))
}

func (s *CacheTestSuite) TestBacksEvaluator() {
	eval, err := pipeline.NewEvaluator(testutil.TwoClusterTable(s.T()), pipeline.DefaultConfig(), pipeline.WithCache(s.cache))
	s.Require().NoError(err)

	first, err := eval.Summarize(s.ctx, params.Prime())
	s.Require().NoError(err)
	s.True(s.mr.Exists("lsoma:summary:" + eval.CacheKey(params.Prime())))

	// A second evaluator over the same data reads the stored summary.
	again, err := pipeline.NewEvaluator(testutil.TwoClusterTable(s.T()), pipeline.DefaultConfig(), pipeline.WithCache(s.cache))
	s.Require().NoError(err)
	s.Equal(eval.Fingerprint(), again.Fingerprint())
	second, err := again.Summarize(s.ctx, params.Prime())
	s.Require().NoError(err)
	s.Equal(first, second)
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

func TestRunLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), Config{Addr: mr.Addr()}, nil)
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()

	a := NewRunLock(client, "expand:fp:1000", time.Minute)
	b := NewRunLock(client, "expand:fp:1000", time.Minute)
	assert.NotEqual(t, a.Owner(), b.Owner())

	require.NoError(t, a.Acquire(ctx))
	err = b.Acquire(ctx)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRunInProgress))
	assert.ErrorIs(t, b.Release(ctx), ErrLockNotHeld)

	val, err := mr.Get("lsoma:lock:expand:fp:1000")
	require.NoError(t, err)
	assert.Equal(t, a.Owner(), val)

	ok, err := a.Extend(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5*time.Minute, mr.TTL("lsoma:lock:expand:fp:1000"))

	require.NoError(t, a.Release(ctx))
	assert.False(t, mr.Exists("lsoma:lock:expand:fp:1000"))
	require.NoError(t, b.Acquire(ctx))
	require.NoError(t, b.Release(ctx))
}
