package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Actions limited per user (or per client address for registration).
const (
	ActionPost     = "post"
	ActionRate     = "rate"
	ActionComment  = "comment"
	ActionRewin    = "rewin"
	ActionRegister = "register"
)

// allowScript atomically refills and consumes one token.
var allowScript = redis.NewScript(`
	local key = KEYS[1]
	local capacity = tonumber(ARGV[1])
	local refill_rate = tonumber(ARGV[2])
	local window = tonumber(ARGV[3])
	local now = tonumber(ARGV[4])

	-- Get current bucket state
	local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
	local tokens = tonumber(bucket[1]) or capacity
	local last_refill = tonumber(bucket[2]) or now

	-- Calculate tokens to add based on time elapsed
	local time_passed = now - last_refill
	local tokens_to_add = math.floor((time_passed / window) * refill_rate)

	if tokens_to_add > 0 then
		tokens = math.min(capacity, tokens + tokens_to_add)
		last_refill = now
	end

	local allowed = 0
	if tokens > 0 then
		tokens = tokens - 1
		allowed = 1
	end

	redis.call('HMSET', key, 'tokens', tokens, 'last_refill', last_refill)
	redis.call('EXPIRE', key, window * 2)
	return allowed
`)

// remainingScript reports the refilled token count without consuming.
var remainingScript = redis.NewScript(`
	local key = KEYS[1]
	local capacity = tonumber(ARGV[1])
	local refill_rate = tonumber(ARGV[2])
	local window = tonumber(ARGV[3])
	local now = tonumber(ARGV[4])

	local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
	local tokens = tonumber(bucket[1]) or capacity
	local last_refill = tonumber(bucket[2]) or now

	local time_passed = now - last_refill
	local tokens_to_add = math.floor((time_passed / window) * refill_rate)

	if tokens_to_add > 0 then
		tokens = math.min(capacity, tokens + tokens_to_add)
	end

	return tokens
`)

// TokenBucket represents a token bucket rate limiter
type TokenBucket struct {
	redis    *redis.Client
	capacity int64         // Maximum number of tokens
	refill   int64         // Number of tokens to refill per window
	window   time.Duration // Time window for refilling (1 minute)
	now      func() time.Time
}

// NewTokenBucket creates a new token bucket rate limiter
func NewTokenBucket(redisClient *redis.Client, capacity, refillRate int64) *TokenBucket {
	return &TokenBucket{
		redis:    redisClient,
		capacity: capacity,
		refill:   refillRate,
		window:   time.Minute,
		now:      time.Now,
	}
}

func key(subject, action string) string {
	return fmt.Sprintf("winsome:rate_limit:%s:%s", subject, action)
}

// Allow consumes one token for subject's action. It reports false when the
// bucket is empty.
func (tb *TokenBucket) Allow(ctx context.Context, subject, action string) (bool, error) {
	result, err := allowScript.Run(ctx, tb.redis, []string{key(subject, action)},
		tb.capacity, tb.refill, int64(tb.window.Seconds()), tb.now().Unix()).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	allowed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected result type from rate limit script")
	}

	return allowed == 1, nil
}

// GetRemaining returns the number of remaining tokens for subject's action
func (tb *TokenBucket) GetRemaining(ctx context.Context, subject, action string) (int64, error) {
	result, err := remainingScript.Run(ctx, tb.redis, []string{key(subject, action)},
		tb.capacity, tb.refill, int64(tb.window.Seconds()), tb.now().Unix()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get remaining tokens: %w", err)
	}

	remaining, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected result type from remaining tokens script")
	}

	return remaining, nil
}

// Capacity returns the bucket size.
func (tb *TokenBucket) Capacity() int64 { return tb.capacity }

// Reset clears the rate limit for a specific subject action
func (tb *TokenBucket) Reset(ctx context.Context, subject, action string) error {
	return tb.redis.Del(ctx, key(subject, action)).Err()
}

// Limits holds one bucket per limited action.
type Limits struct {
	buckets map[string]*TokenBucket
}

// NewLimits builds buckets for the given per-minute allowances. Actions
// with a non-positive allowance are not limited.
func NewLimits(redisClient *redis.Client, perMinute map[string]int64) *Limits {
	l := &Limits{buckets: make(map[string]*TokenBucket)}
	for action, n := range perMinute {
		if n > 0 {
			l.buckets[action] = NewTokenBucket(redisClient, n, n)
		}
	}
	return l
}

// Bucket returns the bucket for action, if it is limited.
func (l *Limits) Bucket(action string) (*TokenBucket, bool) {
	tb, ok := l.buckets[action]
	return tb, ok
}

// Allow consumes a token from action's bucket. Unlimited actions are
// always allowed.
func (l *Limits) Allow(ctx context.Context, subject, action string) (bool, error) {
	tb, ok := l.buckets[action]
	if !ok {
		return true, nil
	}
	return tb.Allow(ctx, subject, action)
}
