// Package cache stores preview results in Redis keyed by batch fingerprint.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/logger"
)

const keyPrefix = "clover:preview"

// Cmdable is the subset of the go-redis client the cache uses
type Cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Config holds Redis connection configuration
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient creates a Redis client. The connection is checked lazily; use Ping
// during startup to fail fast.
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// PreviewCache caches JSON-encoded preview responses. Entries are immutable:
// a batch fingerprint covers the policy, threshold and every input record.
type PreviewCache struct {
	rdb      Cmdable
	ttl      time.Duration
	log      logger.Logger
	observer func(hit bool)
}

// NewPreviewCache creates a cache. observer, when not nil, receives every lookup outcome.
func NewPreviewCache(rdb Cmdable, ttl time.Duration, log logger.Logger, observer func(hit bool)) *PreviewCache {
	return &PreviewCache{rdb: rdb, ttl: ttl, log: logger.OrNop(log), observer: observer}
}

// Key builds the cache key for a policy's batch fingerprint
func Key(policy, fingerprint string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, policy, fingerprint)
}

// Get decodes the cached value for key into dest. A miss returns false and no error.
func (c *PreviewCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.observe(false)
		return false, nil
	}
	if err != nil {
		c.observe(false)
		return false, fmt.Errorf("failed to read preview cache: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.log.Warn("Discarding undecodable preview cache entry", zap.String("key", key), zap.Error(err))
		c.observe(false)
		return false, nil
	}
	c.observe(true)
	return true, nil
}

// Set stores value under key for the configured TTL
func (c *PreviewCache) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode preview cache entry: %w", err)
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write preview cache: %w", err)
	}
	return nil
}

// Ping checks that Redis is reachable
func (c *PreviewCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *PreviewCache) observe(hit bool) {
	if c.observer != nil {
		c.observer(hit)
	}
}
