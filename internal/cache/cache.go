package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// KeyPrefix namespaces every key this service writes.
const KeyPrefix = "winsome:"

// Cache key patterns
const (
	ExchangeRateKey = "exchange:rate:%s" // exchange:rate:<unit>
)

// Cache durations
const (
	ExchangeRateCacheDuration = time.Minute // Rates are refreshed lazily
)

// CacheService stores JSON values in Redis
type CacheService struct {
	redis *redis.Client
}

// NewCacheService creates a new cache service
func NewCacheService(redisClient *redis.Client) *CacheService {
	return &CacheService{redis: redisClient}
}

// Key renders a namespaced cache key from one of the patterns above.
func Key(pattern string, args ...interface{}) string {
	return KeyPrefix + fmt.Sprintf(pattern, args...)
}

// GetJSON decodes the value at key into dst. It reports false on a miss or
// an undecodable value.
func (c *CacheService) GetJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	cached, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}

	if err := json.Unmarshal(cached, dst); err != nil {
		// Treat garbage as a miss; the next Set overwrites it.
		return false, nil
	}
	return true, nil
}

// SetJSON stores v at key for ttl.
func (c *CacheService) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Invalidate clears the given keys
func (c *CacheService) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...).Err()
}
