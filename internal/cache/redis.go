package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/muzz-matching/internal/config"
)

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr:         cfg.Redis.Addr,
		PoolSize:     20,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

// Get returns ("", nil) on a cache miss.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.Client.Del(ctx, key).Err()
}

func (c *RedisCache) Incr(ctx context.Context, key string) (int64, error) {
	return c.Client.Incr(ctx, key).Result()
}

// KeyForDiscoveryQuota generates the sorted set holding a user's discovery grants.
func (c *RedisCache) KeyForDiscoveryQuota(userID uint64) string {
	return fmt.Sprintf("quota:discover:%d", userID)
}

// KeyForPresence generates the heartbeat key of a user inside one channel.
func (c *RedisCache) KeyForPresence(channelID, userID uint64) string {
	return fmt.Sprintf("presence:%d:%d", channelID, userID)
}

// KeyForScore generates the score cache key of an unordered user pair.
func (c *RedisCache) KeyForScore(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("score:%d:%d", a, b)
}

// KeyForChannelEvents is the pub/sub topic carrying a channel's events.
func (c *RedisCache) KeyForChannelEvents(channelID uint64) string {
	return fmt.Sprintf("chat:events:%d", channelID)
}

// KeyForChannelSeq holds the last event sequence number of a channel.
func (c *RedisCache) KeyForChannelSeq(channelID uint64) string {
	return fmt.Sprintf("chat:seq:%d", channelID)
}
