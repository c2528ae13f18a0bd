package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/workbench/pkg/observability"
)

func TestLoginLimiter_Burst(t *testing.T) {
	limiter := NewLoginLimiter(RateLimitConfig{RequestsPerMinute: 1, Burst: 3})
	now := time.Now()
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "ip:a")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := limiter.Allow(ctx, "ip:a")
	assert.False(t, ok, "burst exhausted")

	ok, _ = limiter.Allow(ctx, "ip:b")
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Minute)
	ok, _ = limiter.Allow(ctx, "ip:a")
	assert.True(t, ok, "a token refills after a minute")
}

func TestLoginLimiter_Cleanup(t *testing.T) {
	limiter := NewLoginLimiter(RateLimitConfig{})
	now := time.Now()
	limiter.now = func() time.Time { return now }

	_, _ = limiter.Allow(context.Background(), "a")
	now = now.Add(30 * time.Second)
	_, _ = limiter.Allow(context.Background(), "b")
	require.Equal(t, 2, limiter.Len())

	now = now.Add(45 * time.Second)
	limiter.Cleanup(time.Minute)
	assert.Equal(t, 1, limiter.Len())
}

func TestDistributedLoginLimiter(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := NewDistributedLoginLimiter(client, RateLimitConfig{RequestsPerMinute: 2, Burst: 1}, "test")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "login:10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, "login:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := limiter.Remaining(ctx, "login:10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)
	assert.True(t, mr.TTL("test:login:10.0.0.1") > 0)

	mr.FastForward(time.Minute + time.Second)
	ok, err = limiter.Allow(ctx, "login:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok, "window expired")

	mr.Close()
	ok, err = limiter.Allow(ctx, "login:10.0.0.1")
	assert.Error(t, err)
	assert.True(t, ok, "fails open")
}

func TestDistributedLoginLimiter_CounterAlwaysExpires(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := NewDistributedLoginLimiter(client, RateLimitConfig{RequestsPerMinute: 1, Burst: 1}, "test")
	ctx := context.Background()

	ok, err := limiter.Allow(ctx, "login:10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.TTL("test:login:10.0.0.2") > 0, "first attempt opens the window")

	// a counter stuck without an expiry
	require.NoError(t, mr.Set("test:login:10.0.0.3", "50"))
	ok, err = limiter.Allow(ctx, "login:10.0.0.3")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.TTL("test:login:10.0.0.3") > 0, "expiry is restored")

	mr.FastForward(time.Minute + time.Second)
	ok, err = limiter.Allow(ctx, "login:10.0.0.3")
	require.NoError(t, err)
	assert.True(t, ok, "client is let back in after the window")
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(ctx context.Context, key string) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

func TestLimitLogins(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	t.Run("rejects post when limited", func(t *testing.T) {
		limiter := &stubLimiter{allow: false}
		handler := LimitLogins(limiter, metrics, "api")(okHandler())
		req := httptest.NewRequest("POST", "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "60", w.Header().Get("Retry-After"))
		assert.Equal(t, []string{"login:10.0.0.1"}, limiter.keys)
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.LoginAttemptsTotal.WithLabelValues("api", "rate_limited")))
	})

	t.Run("never limits get", func(t *testing.T) {
		limiter := &stubLimiter{allow: false}
		w := httptest.NewRecorder()
		LimitLogins(limiter, nil, "web")(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/auth/login", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, limiter.keys)
	})

	t.Run("limiter error fails open", func(t *testing.T) {
		limiter := &stubLimiter{allow: true, err: errors.New("redis down")}
		w := httptest.NewRecorder()
		LimitLogins(limiter, nil, "api")(okHandler()).ServeHTTP(w, httptest.NewRequest("POST", "/api/auth/login", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
