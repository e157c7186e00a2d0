package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/eddiefleurent/ivcrush/internal/metrics"
	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// DefaultCacheTTL keeps snapshots for five minutes.
const DefaultCacheTTL = 5 * time.Minute

const cachePrefix = "ivcrush"

// RedisCache stores JSON snapshots of provider responses in Redis. Cache
// failures are logged and fall through to the wrapped provider.
type RedisCache struct {
	next    MarketData
	client  *redis.Client
	metrics *metrics.Registry
	logger  *logrus.Logger
	ttl     time.Duration
}

var _ MarketData = (*RedisCache)(nil)

// NewRedisCache wraps next with an existing client.
func NewRedisCache(next MarketData, client *redis.Client, ttl time.Duration, reg *metrics.Registry, logger *logrus.Logger) *RedisCache {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{next: next, client: client, metrics: reg, logger: logger, ttl: ttl}
}

// NewRedisCacheFromAddr dials addr lazily; no connection is made until the
// first lookup.
func NewRedisCacheFromAddr(next MarketData, addr string, ttl time.Duration, reg *metrics.Registry, logger *logrus.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	return NewRedisCache(next, client, ttl, reg, logger)
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func cacheKey(kind, symbol string, parts ...string) string {
	key := fmt.Sprintf("%s:%s:%s", cachePrefix, kind, strings.ToUpper(symbol))
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// cached returns the snapshot stored under key, or calls load and stores its
// result.
func cached[T any](ctx context.Context, c *RedisCache, key string, load func(context.Context) (T, error)) (T, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		uerr := json.Unmarshal(raw, &v)
		if uerr == nil {
			c.metrics.RecordCache(true)
			return v, nil
		}
		c.logger.WithField("key", key).WithError(uerr).Warn("discarding corrupt cache entry")
	case errors.Is(err, redis.Nil):
	default:
		c.logger.WithField("key", key).WithError(err).Warn("cache read failed")
	}
	c.metrics.RecordCache(false)

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.WithField("key", key).WithError(err).Warn("cache encode failed")
		return v, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WithField("key", key).WithError(err).Warn("cache write failed")
	}
	return v, nil
}

// GetQuote returns a cached quote or fetches one.
func (c *RedisCache) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	return cached(ctx, c, cacheKey("quote", symbol), func(ctx context.Context) (*Quote, error) {
		return c.next.GetQuote(ctx, symbol)
	})
}

// GetExpirations returns cached expirations or fetches them.
func (c *RedisCache) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	return cached(ctx, c, cacheKey("expirations", symbol), func(ctx context.Context) ([]time.Time, error) {
		return c.next.GetExpirations(ctx, symbol)
	})
}

// GetOptionChain returns a cached chain or fetches it.
func (c *RedisCache) GetOptionChain(ctx context.Context, symbol string, expiration time.Time) (models.OptionChain, error) {
	key := cacheKey("chain", symbol, expiration.Format(dateLayout))
	return cached(ctx, c, key, func(ctx context.Context) (models.OptionChain, error) {
		return c.next.GetOptionChain(ctx, symbol, expiration)
	})
}

// GetHistory returns cached bars or fetches them.
func (c *RedisCache) GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.OHLCBar, error) {
	key := cacheKey("history", symbol, start.Format(dateLayout), end.Format(dateLayout))
	return cached(ctx, c, key, func(ctx context.Context) ([]models.OHLCBar, error) {
		return c.next.GetHistory(ctx, symbol, start, end)
	})
}
