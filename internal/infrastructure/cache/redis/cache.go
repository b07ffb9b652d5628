package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/lsoma/internal/domain/viability"
	"github.com/turtacn/lsoma/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lsoma/pkg/errors"
)

const summaryNamespace = "summary:"

// SummaryCache stores evaluation summaries as JSON under
// <prefix>summary:<fingerprint>:<state>.  It satisfies pipeline.SummaryCache.
type SummaryCache struct {
	client *Client
	logger logging.Logger
	prefix string
	ttl    time.Duration
	jitter bool
}

// CacheOption configures a SummaryCache.
type CacheOption func(*SummaryCache)

// WithTTL overrides the configured TTL.  Zero keeps entries forever.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *SummaryCache) { c.ttl = ttl }
}

// WithoutJitter disables the ±10% TTL spread.
func WithoutJitter() CacheOption {
	return func(c *SummaryCache) { c.jitter = false }
}

// NewSummaryCache returns a cache over client.
func NewSummaryCache(client *Client, opts ...CacheOption) *SummaryCache {
	cfg := client.Config()
	c := &SummaryCache{
		client: client,
		logger: client.logger,
		prefix: cfg.KeyPrefix + summaryNamespace,
		ttl:    cfg.TTL,
		jitter: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetSummary returns the cached summary for key.  ok is false on a miss.
func (c *SummaryCache) GetSummary(ctx context.Context, key string) (viability.Summary, bool, error) {
	var s viability.Summary
	if c.client.isClosed() {
		return s, false, ErrClientClosed
	}
	data, err := c.client.rdb.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return s, false, nil
	}
	if err != nil {
		return s, false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to get from cache")
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, false, errors.Wrap(err, errors.ErrCodeSerialization, "corrupt cached summary").
			WithDetailf("key=%s", key)
	}
	return s, true, nil
}

// SetSummary stores s under key.
func (c *SummaryCache) SetSummary(ctx context.Context, key string, s viability.Summary) error {
	if c.client.isClosed() {
		return ErrClientClosed
	}
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode summary")
	}
	if err := c.client.rdb.Set(ctx, c.prefix+key, data, c.expiry()).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to set cache")
	}
	return nil
}

// Invalidate drops every summary cached for a dataset fingerprint.
func (c *SummaryCache) Invalidate(ctx context.Context, fingerprint string) (int64, error) {
	if c.client.isClosed() {
		return 0, ErrClientClosed
	}
	pattern := c.prefix + fingerprint + ":*"
	var deleted int64
	var cursor uint64
	for {
		keys, next, err := c.client.rdb.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "failed to scan cache")
		}
		if len(keys) > 0 {
			n, err := c.client.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "failed to delete cache keys")
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.logger.Info("summary cache invalidated",
		logging.String("fingerprint", fingerprint), logging.Int64("deleted", deleted))
	return deleted, nil
}

func (c *SummaryCache) expiry() time.Duration {
	if c.ttl <= 0 || !c.jitter {
		return c.ttl
	}
	spread := float64(c.ttl) * 0.1 * (rand.Float64()*2 - 1)
	return c.ttl + time.Duration(spread)
}
