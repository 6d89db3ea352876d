package middleware

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/princekumarofficial/winsome/internal/ratelimit"
	"github.com/princekumarofficial/winsome/internal/utils/response"
)

// RateLimitConfig throttles anonymous endpoints per client address.
type RateLimitConfig struct {
	limits *ratelimit.Limits
	logger *slog.Logger
}

// NewRateLimitConfig wraps limits. A nil limits disables throttling.
func NewRateLimitConfig(limits *ratelimit.Limits, logger *slog.Logger) *RateLimitConfig {
	return &RateLimitConfig{limits: limits, logger: logger}
}

func (rlc *RateLimitConfig) RateLimitMiddleware(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rlc.limits == nil {
				next.ServeHTTP(w, r)
				return
			}

			limiter, exists := rlc.limits.Bucket(action)
			if !exists {
				next.ServeHTTP(w, r)
				return
			}

			subject := clientIP(r)
			allowed, err := limiter.Allow(r.Context(), subject, action)
			if err != nil {
				// Redis trouble must not lock users out.
				rlc.logger.Warn("rate limit check failed",
					slog.String("action", action), slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}

			remaining, _ := limiter.GetRemaining(r.Context(), subject, action)
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limiter.Capacity(), 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			w.Header().Set("X-RateLimit-Reset", "60")

			if !allowed {
				response.WriteJSON(w, http.StatusTooManyRequests, response.GeneralError(
					errors.New("rate limit exceeded")))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitedHandler wraps a handler with rate limiting for a specific action
func (rlc *RateLimitConfig) RateLimitedHandler(action string, handler http.HandlerFunc) http.Handler {
	return rlc.RateLimitMiddleware(action)(handler)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
