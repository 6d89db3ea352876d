package cache

import (
	"context"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/princekumarofficial/winsome/internal/utils/response"
)

// sampleSize bounds the keys listed in stats and clear responses.
const sampleSize = 10

// CacheStats represents cache statistics
type CacheStats struct {
	RedisConnected bool     `json:"redis_connected"`
	CacheKeys      []string `json:"cache_keys_sample"`
	KeyCount       int      `json:"total_keys"`
}

// Stats inspects the keys this service owns.
func Stats(ctx context.Context, redisClient *redis.Client) CacheStats {
	stats := CacheStats{RedisConnected: true}

	// Test Redis connection
	if err := redisClient.Ping(ctx).Err(); err != nil {
		stats.RedisConnected = false
		return stats
	}

	keys, err := scan(ctx, redisClient, KeyPrefix+"*")
	if err == nil {
		stats.KeyCount = len(keys)
		if len(keys) > sampleSize {
			keys = keys[:sampleSize]
		}
		stats.CacheKeys = keys
	}
	return stats
}

// GetCacheStats returns cache statistics
func GetCacheStats(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := Stats(r.Context(), redisClient)
		response.WriteJSON(w, http.StatusOK, response.RequestOK("Cache stats retrieved", stats))
	}
}

// ClearCache endpoint for administrative purposes
func ClearCache(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		// Get cache type from query parameter
		var pattern string
		switch r.URL.Query().Get("type") {
		case "rate_limit":
			pattern = KeyPrefix + "rate_limit:*"
		case "all":
			pattern = KeyPrefix + "*"
		default:
			pattern = KeyPrefix + "exchange:*"
		}

		keys, err := scan(ctx, redisClient, pattern)
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		var deleted int64
		if len(keys) > 0 {
			deleted, err = redisClient.Del(ctx, keys...).Result()
			if err != nil {
				response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
				return
			}
		}

		result := map[string]interface{}{
			"pattern":      pattern,
			"deleted_keys": deleted,
			"keys_sample":  keys[:min(len(keys), sampleSize)],
		}
		response.WriteJSON(w, http.StatusOK, response.RequestOK("Cache cleared", result))
	}
}

func scan(ctx context.Context, redisClient *redis.Client, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := redisClient.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}
