package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-graph/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Cache stores valid assignments keyed by transaction content hash.
// A miss is reported as (nil, nil).
type Cache interface {
	Get(ctx context.Context, contentHash string) (*domain.CategoryAssignment, error)
	Set(ctx context.Context, contentHash string, a domain.CategoryAssignment) error
}

const defaultCachePrefix = "finance-graph:category:"

// RedisCache is a Cache backed by Redis string keys with a TTL.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps an existing client. ttl <= 0 keeps entries forever.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: defaultCachePrefix, ttl: ttl}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, contentHash string) (*domain.CategoryAssignment, error) {
	b, err := c.client.Get(ctx, c.prefix+contentHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("RedisCache.Get: %w", err)
	}
	var a domain.CategoryAssignment
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("RedisCache.Get: decode: %w", err)
	}
	return &a, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, contentHash string, a domain.CategoryAssignment) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("RedisCache.Set: encode: %w", err)
	}
	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, c.prefix+contentHash, b, ttl).Err(); err != nil {
		return fmt.Errorf("RedisCache.Set: %w", err)
	}
	return nil
}
