package httpmiddleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, time.Time) (Quota, error) {
	return Quota{}, errors.New("connection refused")
}

// --- Helpers ---

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func fromIP(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = addr
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// limiters returns a fresh limiter of every kind admitting max per window.
func limiters(t *testing.T, max int, window time.Duration) map[string]Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]Limiter{
		"Memory": NewMemoryLimiter(max, window),
		"Redis":  NewRedisLimiter(client, "rl:", max, window),
	}
}

// --- Tests ---

func TestRateLimit_OverLimit(t *testing.T) {
	for name, l := range limiters(t, 2, time.Minute) {
		t.Run(name, func(t *testing.T) {
			h := RateLimit(l, RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

			for range 2 {
				w := serve(h, fromIP("10.0.0.1:9999"))
				require.Equal(t, http.StatusOK, w.Code)
				assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
				assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
			}

			w := serve(h, fromIP("10.0.0.1:9999"))
			assert.Equal(t, http.StatusTooManyRequests, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
			assert.NotEmpty(t, w.Header().Get("Retry-After"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, float64(429), body["code"])
			assert.Equal(t, "rate limit exceeded", body["message"])

			// Other clients keep their own quota.
			assert.Equal(t, http.StatusOK, serve(h, fromIP("10.0.0.2:1234")).Code)
		})
	}
}

func TestRateLimit_CookieOrIP(t *testing.T) {
	live := map[string]bool{"a": true, "b": true}
	h := RateLimit(NewMemoryLimiter(1, time.Minute), RateLimitConfig{
		Max:     1,
		Window:  time.Minute,
		KeyFunc: CookieOrIP("sf_session", func(v string) bool { return live[v] }),
	})(okHandler())

	withCookie := func(v string) *http.Request {
		req := fromIP("10.0.0.1:1")
		req.AddCookie(&http.Cookie{Name: "sf_session", Value: v})
		return req
	}

	assert.Equal(t, http.StatusOK, serve(h, withCookie("a")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, withCookie("a")).Code)
	// Same address, other session.
	assert.Equal(t, http.StatusOK, serve(h, withCookie("b")).Code)
	// No cookie falls back to the address.
	assert.Equal(t, http.StatusOK, serve(h, fromIP("10.0.0.1:2")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, fromIP("10.0.0.1:3")).Code)
}

func TestRateLimit_UnknownCookiesShareAddressQuota(t *testing.T) {
	h := RateLimit(NewMemoryLimiter(2, time.Minute), RateLimitConfig{
		Max:     2,
		Window:  time.Minute,
		KeyFunc: CookieOrIP("sf_session", func(string) bool { return false }),
	})(okHandler())

	passed := 0
	for i := range 50 {
		req := fromIP("10.0.0.1:1")
		req.AddCookie(&http.Cookie{Name: "sf_session", Value: fmt.Sprintf("forged-%d", i)})
		if serve(h, req).Code == http.StatusOK {
			passed++
		}
	}
	assert.Equal(t, 2, passed)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	h := RateLimit(brokenLimiter{}, RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	w := serve(h, fromIP("10.0.0.1:1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestClientIP(t *testing.T) {
	req := fromIP("192.168.1.1:4444")
	req.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")
	assert.Equal(t, "203.0.113.50", ClientIP(req))

	req = fromIP("192.168.1.1:4444")
	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", ClientIP(req))

	assert.Equal(t, "192.168.1.1", ClientIP(fromIP("192.168.1.1:4444")))
	assert.Equal(t, "pipe", ClientIP(fromIP("pipe")))
}

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(4, time.Minute)
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	for range 4 {
		q, err := l.Allow(ctx, "k", start)
		require.NoError(t, err)
		require.True(t, q.Allowed)
	}

	// Half way through the next window half of the previous count remains.
	mid := start.Add(90 * time.Second)
	q, err := l.Allow(ctx, "k", mid)
	require.NoError(t, err)
	assert.True(t, q.Allowed)
	q, err = l.Allow(ctx, "k", mid)
	require.NoError(t, err)
	assert.True(t, q.Allowed)
	assert.Equal(t, 0, q.Remaining)
	q, err = l.Allow(ctx, "k", mid)
	require.NoError(t, err)
	assert.False(t, q.Allowed)
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(1, time.Minute)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	_, err := l.Allow(ctx, "a", now)
	require.NoError(t, err)
	_, err = l.Allow(ctx, "b", now.Add(time.Minute))
	require.NoError(t, err)

	l.Cleanup(now.Add(2 * time.Minute))
	assert.Equal(t, 1, l.Len())
}

func TestRedisLimiter_WindowExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	l := NewRedisLimiter(client, "rl:", 1, time.Minute)
	now := time.Date(2026, 5, 1, 9, 0, 10, 0, time.UTC)

	q, err := l.Allow(ctx, "k", now)
	require.NoError(t, err)
	assert.True(t, q.Allowed)
	assert.Equal(t, now.Truncate(time.Minute).Add(time.Minute), q.ResetAt)

	q, err = l.Allow(ctx, "k", now)
	require.NoError(t, err)
	assert.False(t, q.Allowed)

	key := "rl:k:" + "1777626000"
	assert.True(t, mr.Exists(key))
	mr.FastForward(time.Minute)
	assert.False(t, mr.Exists(key))

	q, err = l.Allow(ctx, "k", now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, q.Allowed)
}
