//go:build integration

package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/lsoma/internal/application/pipeline"
	"github.com/turtacn/lsoma/internal/domain/params"
	"github.com/turtacn/lsoma/internal/domain/viability"
	"github.com/turtacn/lsoma/internal/infrastructure/cache/redis"
	"github.com/turtacn/lsoma/internal/testutil"
	"github.com/turtacn/lsoma/pkg/errors"
)

// startRedis launches a Redis 7 container and returns a connected client.
func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := redis.NewClient(ctx, redis.Config{
		Enabled: true,
		Addr:    fmt.Sprintf("%s:%s", host, port.Port()),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIntegration_SummaryCache(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	cache := redis.NewSummaryCache(client, redis.WithTTL(time.Minute))

	want := viability.Summary{Sites: 4, ViableClusters: 1, TotalBeds: 180}
	require.NoError(t, cache.SetSummary(ctx, "fp1:85|0.03|1|120", want))

	got, ok, err := cache.GetSummary(ctx, "fp1:85|0.03|1|120")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	n, err := cache.Invalidate(ctx, "fp1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	_, ok, err = cache.GetSummary(ctx, "fp1:85|0.03|1|120")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIntegration_EvaluatorSharesCache(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	table := testutil.TwoClusterTable(t)
	cfg := pipeline.DefaultConfig()

	first, err := pipeline.NewEvaluator(table, cfg, pipeline.WithCache(redis.NewSummaryCache(client)))
	require.NoError(t, err)
	want, err := first.Summarize(ctx, params.Prime())
	require.NoError(t, err)

	// A fresh evaluator over the same data reads the stored summary.
	second, err := pipeline.NewEvaluator(table, cfg, pipeline.WithCache(redis.NewSummaryCache(client)))
	require.NoError(t, err)
	got, err := second.Summarize(ctx, params.Prime())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	keys, err := client.Universal().Keys(ctx, "lsoma:summary:"+first.Fingerprint()+":*").Result()
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestIntegration_RunLock(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	a := redis.NewRunLock(client, "expand:fp:6", time.Second)
	b := redis.NewRunLock(client, "expand:fp:6", time.Second)

	require.NoError(t, a.Acquire(ctx))
	err := b.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRunInProgress))

	// The watchdog keeps the lock alive past its ttl.
	time.Sleep(1500 * time.Millisecond)
	assert.Error(t, b.Acquire(ctx))

	require.NoError(t, a.Release(ctx))
	require.NoError(t, b.Acquire(ctx))
	require.NoError(t, b.Release(ctx))
}
