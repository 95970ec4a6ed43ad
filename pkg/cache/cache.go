// Package cache memoises dynamically loaded node options.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/operion-dust/pkg/models"
	redis "github.com/redis/go-redis/v9"
)

// DefaultTTL is used when a cache is created without a TTL.
const DefaultTTL = 5 * time.Minute

const keyPrefix = "operion-dust:options:"

// OptionsCache stores option lists by key.
type OptionsCache interface {
	// Get returns the cached options. ok is false on a miss.
	Get(ctx context.Context, key string) (options []models.NodeOption, ok bool, err error)
	Set(ctx context.Context, key string, options []models.NodeOption) error
}

// Key builds the cache key of an option loader method for one workspace.
func Key(method, workspaceID string) string {
	return keyPrefix + method + ":" + workspaceID
}

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisOptionsCache keeps option lists in Redis as JSON with a TTL.
type RedisOptionsCache struct {
	client redisClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisOptionsCache wraps an existing Redis client.
func NewRedisOptionsCache(client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *RedisOptionsCache {
	return newRedisOptionsCache(client, ttl, logger)
}

func newRedisOptionsCache(client redisClient, ttl time.Duration, logger *slog.Logger) *RedisOptionsCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &RedisOptionsCache{
		client: client,
		ttl:    ttl,
		logger: logger.With("module", "options_cache"),
	}
}

// Connect opens a Redis client from a redis:// URL and checks it with a ping.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

func (c *RedisOptionsCache) Get(ctx context.Context, key string) ([]models.NodeOption, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("failed to read options from cache: %w", err)
	}

	var options []models.NodeOption
	if err := json.Unmarshal(raw, &options); err != nil {
		c.logger.WarnContext(ctx, "Discarding unreadable cached options", "key", key, "error", err)

		return nil, false, nil
	}

	return options, true, nil
}

func (c *RedisOptionsCache) Set(ctx context.Context, key string, options []models.NodeOption) error {
	raw, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}

	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write options to cache: %w", err)
	}

	return nil
}
