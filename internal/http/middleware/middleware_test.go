package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/princekumarofficial/winsome/internal/ratelimit"
	"github.com/princekumarofficial/winsome/internal/utils/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

type liveSessions map[string]string

func (l liveSessions) Valid(username, sessionID string) bool { return l[username] == sessionID }

func whoami() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := GetUserIDFromContext(r.Context())
		io.WriteString(w, userID)
	})
}

func TestAuthMiddleware(t *testing.T) {
	current, err := jwt.CreateToken("alice", "s2", secret)
	require.NoError(t, err)
	stale, err := jwt.CreateToken("alice", "s1", secret)
	require.NoError(t, err)
	forged, err := jwt.CreateToken("alice", "s2", "other-secret")
	require.NoError(t, err)

	h := AuthMiddleware(secret, liveSessions{"alice": "s2"})(whoami())

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"header", "Bearer " + current, "", http.StatusOK},
		{"query", "", current, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"bad scheme", "Basic " + current, "", http.StatusUnauthorized},
		{"stale session", "Bearer " + stale, "", http.StatusUnauthorized},
		{"forged", "Bearer " + forged, "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/notify"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "alice", rec.Body.String())
			}
		})
	}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRateLimitPerAddress(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	limits := ratelimit.NewLimits(rdb, map[string]int64{ratelimit.ActionRegister: 2})
	h := NewRateLimitConfig(limits, discard()).RateLimitedHandler(ratelimit.ActionRegister,
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	call := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/register", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1001").Code)

	rec := call("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))

	assert.Equal(t, http.StatusNoContent, call("10.0.0.2:1000").Code)
}

func TestRateLimitFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	limits := ratelimit.NewLimits(rdb, map[string]int64{ratelimit.ActionRegister: 1})
	h := NewRateLimitConfig(limits, discard()).RateLimitedHandler(ratelimit.ActionRegister,
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/register", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}

	rec := httptest.NewRecorder()
	NewRateLimitConfig(nil, discard()).RateLimitedHandler(ratelimit.ActionRegister,
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/register", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
