package projects

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/workbench/pkg/auth"
	"github.com/platinummonkey/workbench/pkg/observability"
)

const cacheName = "membership"

// CacheConfig sizes the membership cache
type CacheConfig struct {
	Size      int
	TTL       time.Duration
	KeyPrefix string
}

// DefaultCacheConfig returns sensible defaults
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{Size: 4096, TTL: time.Minute, KeyPrefix: "workbench"}
}

// MembershipCache fronts a MembershipStore. Without Redis it keeps answers in
// an in-process LRU. With Redis the shared tier is the only tier, so an
// invalidation from any process (another replica, the admin CLI) is seen by
// every other process on its next lookup. Concurrent misses for the same pair
// share one store lookup.
//
// A lookup that was already reading the store when an invalidation happened
// does not write its answer back. Without Redis this is tracked with a local
// epoch; with Redis through generation keys that the write watches.
type MembershipCache struct {
	store   auth.MembershipStore
	local   *lru.LRU[string, bool]
	redis   *redis.Client
	ttl     time.Duration
	prefix  string
	group   singleflight.Group
	metrics *observability.Metrics
	logger  *observability.Logger

	mu    sync.Mutex
	epoch uint64
}

// NewMembershipCache creates a cache over store. redisClient may be nil.
func NewMembershipCache(store auth.MembershipStore, redisClient *redis.Client, cfg CacheConfig,
	metrics *observability.Metrics, logger *observability.Logger) *MembershipCache {
	defaults := DefaultCacheConfig()
	if cfg.Size <= 0 {
		cfg.Size = defaults.Size
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}
	if logger == nil {
		logger = observability.NewLogger(observability.ErrorLevel, io.Discard)
	}
	c := &MembershipCache{
		store:   store,
		redis:   redisClient,
		ttl:     cfg.TTL,
		prefix:  cfg.KeyPrefix,
		metrics: metrics,
		logger:  logger,
	}
	if redisClient == nil {
		c.local = lru.NewLRU[string, bool](cfg.Size, nil, cfg.TTL)
	}
	return c
}

func (c *MembershipCache) key(projectID, userID int64) string {
	return fmt.Sprintf("%s:%s:%d:%d", c.prefix, cacheName, projectID, userID)
}

func (c *MembershipCache) projectPrefix(projectID int64) string {
	return fmt.Sprintf("%s:%s:%d:", c.prefix, cacheName, projectID)
}

// generationKeys returns the pair and project generation keys. They live
// outside the answer keyspace so project scans never match them.
func (c *MembershipCache) generationKeys(projectID, userID int64) []string {
	return []string{
		fmt.Sprintf("%s:%s-gen:%d:%d", c.prefix, cacheName, projectID, userID),
		fmt.Sprintf("%s:%s-gen:%d", c.prefix, cacheName, projectID),
	}
}

// generationTTL outlives any lookup that could still be comparing against it
func (c *MembershipCache) generationTTL() time.Duration {
	if ttl := 2 * c.ttl; ttl > 10*time.Minute {
		return ttl
	}
	return 10 * time.Minute
}

// IsMember implements auth.MembershipStore
func (c *MembershipCache) IsMember(ctx context.Context, userID, projectID int64) (bool, error) {
	if c.redis == nil {
		return c.isMemberLocal(ctx, userID, projectID)
	}
	return c.isMemberShared(ctx, userID, projectID)
}

func (c *MembershipCache) isMemberLocal(ctx context.Context, userID, projectID int64) (bool, error) {
	key := c.key(projectID, userID)
	if member, ok := c.local.Get(key); ok {
		c.metrics.RecordCacheHit(cacheName, "local")
		return member, nil
	}

	c.metrics.RecordCacheMiss(cacheName)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.Lock()
		epoch := c.epoch
		c.mu.Unlock()

		member, err := c.store.IsMember(ctx, userID, projectID)
		if err != nil {
			return false, err
		}

		c.mu.Lock()
		if c.epoch == epoch {
			c.local.Add(key, member)
		}
		c.mu.Unlock()
		return member, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (c *MembershipCache) isMemberShared(ctx context.Context, userID, projectID int64) (bool, error) {
	key := c.key(projectID, userID)
	val, err := c.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		c.metrics.RecordCacheHit(cacheName, "redis")
		return val == "1", nil
	case err != redis.Nil:
		c.logger.WithError(err).Warn("membership cache read failed")
	}

	c.metrics.RecordCacheMiss(cacheName)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		genKeys := c.generationKeys(projectID, userID)
		before, genErr := c.redis.MGet(ctx, genKeys...).Result()

		member, err := c.store.IsMember(ctx, userID, projectID)
		if err != nil {
			return false, err
		}
		if genErr != nil {
			c.logger.WithError(genErr).Warn("membership cache read failed")
			return member, nil
		}
		if err := c.storeShared(ctx, key, genKeys, before, member); err != nil {
			c.logger.WithError(err).Warn("membership cache write failed")
		}
		return member, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// storeShared writes the answer only while the generation keys still hold the
// values read before the store lookup
func (c *MembershipCache) storeShared(ctx context.Context, key string, genKeys []string, before []interface{}, member bool) error {
	val := "0"
	if member {
		val = "1"
	}
	err := c.redis.Watch(ctx, func(tx *redis.Tx) error {
		now, err := tx.MGet(ctx, genKeys...).Result()
		if err != nil {
			return err
		}
		if !sameGeneration(before, now) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, val, c.ttl)
			return nil
		})
		return err
	}, genKeys...)
	if errors.Is(err, redis.TxFailedErr) {
		// invalidated between the check and the write
		return nil
	}
	return err
}

func sameGeneration(before, now []interface{}) bool {
	if len(before) != len(now) {
		return false
	}
	for i := range before {
		if fmt.Sprint(before[i]) != fmt.Sprint(now[i]) {
			return false
		}
	}
	return true
}

// Invalidate drops the cached answer for one user and project
func (c *MembershipCache) Invalidate(ctx context.Context, projectID, userID int64) error {
	key := c.key(projectID, userID)
	c.group.Forget(key)
	if c.redis == nil {
		c.mu.Lock()
		c.epoch++
		c.local.Remove(key)
		c.mu.Unlock()
		return nil
	}

	genKey := c.generationKeys(projectID, userID)[0]
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, c.generationTTL())
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate membership: %w", err)
	}
	return nil
}

// InvalidateProject drops every cached answer for a project
func (c *MembershipCache) InvalidateProject(ctx context.Context, projectID int64) error {
	prefix := c.projectPrefix(projectID)
	if c.redis == nil {
		c.mu.Lock()
		c.epoch++
		for _, key := range c.local.Keys() {
			if strings.HasPrefix(key, prefix) {
				c.local.Remove(key)
				c.group.Forget(key)
			}
		}
		c.mu.Unlock()
		return nil
	}

	genKey := c.generationKeys(projectID, 0)[1]
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, c.generationTTL())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate project %d: %w", projectID, err)
	}

	iter := c.redis.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		c.group.Forget(iter.Val())
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan failed for project %d: %w", projectID, err)
	}
	return nil
}

// InvalidateUser drops the cached answers for a user across projectIDs
func (c *MembershipCache) InvalidateUser(ctx context.Context, userID int64, projectIDs []int64) error {
	for _, projectID := range projectIDs {
		if err := c.Invalidate(ctx, projectID, userID); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of entries in the local tier. It is always zero
// when Redis is configured.
func (c *MembershipCache) Len() int {
	if c.local == nil {
		return 0
	}
	return c.local.Len()
}
