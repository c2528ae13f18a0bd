package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DistributedLoginLimiter implements a fixed window limit in Redis so that
// login attempts are counted across every instance
type DistributedLoginLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

// NewDistributedLoginLimiter creates a new Redis-backed rate limiter. The
// window is one minute and admits RequestsPerMinute plus Burst attempts.
func NewDistributedLoginLimiter(redisClient *redis.Client, config RateLimitConfig, prefix string) *DistributedLoginLimiter {
	config = config.withDefaults()
	if prefix == "" {
		prefix = "workbench:ratelimit"
	}
	return &DistributedLoginLimiter{
		redis:  redisClient,
		limit:  int64(config.RequestsPerMinute + config.Burst),
		window: time.Minute,
		prefix: prefix,
	}
}

// Allow implements Limiter. On Redis errors it fails open and returns the
// error for logging.
//
// The window is opened and counted in one transaction, so a counter never
// exists without an expiry. A counter left without one by an older version
// gets its expiry restored.
func (l *DistributedLoginLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, redisKey, 0, l.window)
		incr = pipe.Incr(ctx, redisKey)
		ttl = pipe.TTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}

	if ttl.Val() < 0 {
		if err := l.redis.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return true, fmt.Errorf("redis error: %w", err)
		}
	}
	return incr.Val() <= l.limit, nil
}

// Remaining returns the number of attempts left in the current window
func (l *DistributedLoginLimiter) Remaining(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Get(ctx, fmt.Sprintf("%s:%s", l.prefix, key)).Int64()
	if err == redis.Nil {
		return l.limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	if count >= l.limit {
		return 0, nil
	}
	return l.limit - count, nil
}
