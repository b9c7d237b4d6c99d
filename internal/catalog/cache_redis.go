package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"connectlist/discoveryservice/internal/domain"
	"connectlist/discoveryservice/internal/metrics"
)

const redisCachePrefix = "discovery:cache:"

// RedisCache stores successful provider search responses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]domain.RawRecord, bool, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	var records []domain.RawRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, false, err
	}
	return records, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, records []domain.RawRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisCachePrefix+key, data, r.ttl).Err()
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Cached wraps provider so that non-empty search pages are served from cache.
// Browse is never cached: each seed is meant to yield a different mix.
func (r *RedisCache) Cached(provider Provider) Provider {
	if r == nil || provider == nil {
		return provider
	}
	return &cachedProvider{Provider: provider, cache: r}
}

type cachedProvider struct {
	Provider
	cache *RedisCache
}

func (c *cachedProvider) Search(ctx context.Context, query string, page int) ([]domain.RawRecord, error) {
	key := searchCacheKey(c.Name(), query, page)
	records, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.cache.logger.Debug("provider cache read failed",
			slog.String("provider", c.Name()),
			slog.String("error", err.Error()),
		)
	}
	if ok {
		metrics.CacheHitsTotal.Inc()
		return records, nil
	}
	metrics.CacheMissesTotal.Inc()

	records, err = c.Provider.Search(ctx, query, page)
	if err != nil || len(records) == 0 {
		return records, err
	}
	if err := c.cache.Set(ctx, key, records); err != nil {
		c.cache.logger.Debug("provider cache write failed",
			slog.String("provider", c.Name()),
			slog.String("error", err.Error()),
		)
	}
	return records, nil
}

func searchCacheKey(provider, query string, page int) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return fmt.Sprintf("%s:search:%d:%s", normalizeName(provider), page, normalized)
}
