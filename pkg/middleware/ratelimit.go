package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/httputil"
	"github.com/platinummonkey/workbench/pkg/observability"
)

// Limiter decides whether another attempt is allowed for key
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate
	RequestsPerMinute int
	// Burst allows temporary bursts above the rate
	Burst int
}

// DefaultRateLimitConfig returns the login limits
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 10, Burst: 5}
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	defaults := DefaultRateLimitConfig()
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = defaults.RequestsPerMinute
	}
	if c.Burst <= 0 {
		c.Burst = defaults.Burst
	}
	return c
}

// LoginLimiter keeps one token bucket per key in process
type LoginLimiter struct {
	config  RateLimitConfig
	limit   rate.Limit
	mu      sync.Mutex
	buckets map[string]*visitor
	now     func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLoginLimiter creates an in-process limiter
func NewLoginLimiter(config RateLimitConfig) *LoginLimiter {
	config = config.withDefaults()
	return &LoginLimiter{
		config:  config,
		limit:   rate.Limit(float64(config.RequestsPerMinute) / 60),
		buckets: make(map[string]*visitor),
		now:     time.Now,
	}
}

// Allow implements Limiter
func (l *LoginLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	v, ok := l.buckets[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.config.Burst)}
		l.buckets[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1), nil
}

// Cleanup forgets keys idle for longer than maxIdle
func (l *LoginLimiter) Cleanup(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, v := range l.buckets {
		if now.Sub(v.lastSeen) > maxIdle {
			delete(l.buckets, key)
		}
	}
}

// Len returns the number of tracked keys
func (l *LoginLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// StartCleanup starts a background goroutine to cleanup idle buckets
func (l *LoginLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Cleanup(interval)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// LimitLogins rate limits credential submissions per client IP. Only POST
// requests count; rendering the login form is never limited. Limiter errors
// fail open.
func LimitLogins(limiter Limiter, metrics *observability.Metrics, surface string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ip := httputil.ClientIP(r)
			allowed, err := limiter.Allow(r.Context(), "login:"+ip)
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).Warn("login rate limiter unavailable")
			}
			if !allowed {
				metrics.RecordLogin(surface, "rate_limited")
				audit.Record(r.Context(), audit.FromContext(r.Context()),
					audit.NewEvent(r, audit.EventTypeAuthRateLimited, audit.EventStatusDenied))
				w.Header().Set("Retry-After", strconv.Itoa(60))
				httputil.WriteTooManyRequests(w, "too many login attempts, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
