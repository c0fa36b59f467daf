package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/embermatch/engine/internal/config"
	"github.com/redis/go-redis/v9"
)

// exclusionTTL bounds how long a materialized exclusion set may serve
// discovery before being rebuilt from the database.
const exclusionTTL = 10 * time.Minute

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
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

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.Client.Del(ctx, keys...).Err()
}

// KeyForAdmirerCount generates the Redis key for a user's admirer count.
func (c *RedisCache) KeyForAdmirerCount(userID uint64) string {
	return fmt.Sprintf("admirers:count:%d", userID)
}

// GetAdmirerCount returns the cached admirer count, with a miss indicator.
// TTL is refreshed on access.
func (c *RedisCache) GetAdmirerCount(ctx context.Context, userID uint64) (int64, bool, error) {
	key := c.KeyForAdmirerCount(userID)
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	_ = c.Client.Expire(ctx, key, time.Hour).Err()
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

// SetAdmirerCount stores the admirer count with a 1h TTL.
func (c *RedisCache) SetAdmirerCount(ctx context.Context, userID uint64, count int64) error {
	return c.Client.Set(ctx, c.KeyForAdmirerCount(userID), count, time.Hour).Err()
}

// InvalidateAdmirerCount drops the cached count so the next read recounts.
func (c *RedisCache) InvalidateAdmirerCount(ctx context.Context, userID uint64) error {
	return c.Client.Del(ctx, c.KeyForAdmirerCount(userID)).Err()
}

// KeyForExclusions generates the Redis key for a user's exclusion set.
func (c *RedisCache) KeyForExclusions(userID uint64) string {
	return fmt.Sprintf("exclusions:%d", userID)
}

// GetExclusions returns the materialized exclusion set for a viewer, with a
// miss indicator. The set always contains the viewer's own id, so an
// existing key is never empty and a cache miss is unambiguous.
func (c *RedisCache) GetExclusions(ctx context.Context, userID uint64) ([]uint64, bool, error) {
	members, err := c.Client.SMembers(ctx, c.KeyForExclusions(userID)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(members) == 0 {
		return nil, false, nil
	}
	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, true, nil
}

// SetExclusions replaces the viewer's exclusion set.
func (c *RedisCache) SetExclusions(ctx context.Context, userID uint64, ids []uint64) error {
	key := c.KeyForExclusions(userID)
	members := make([]interface{}, 0, len(ids)+1)
	members = append(members, strconv.FormatUint(userID, 10))
	for _, id := range ids {
		members = append(members, strconv.FormatUint(id, 10))
	}

	pipe := c.Client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, exclusionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// AddExclusion incrementally adds one id to an existing exclusion set.
// A missing key is left missing; it will be rebuilt on the next read.
func (c *RedisCache) AddExclusion(ctx context.Context, userID, excludedID uint64) error {
	key := c.KeyForExclusions(userID)
	exists, err := c.Client.Exists(ctx, key).Result()
	if err != nil || exists == 0 {
		return err
	}
	if err := c.Client.SAdd(ctx, key, strconv.FormatUint(excludedID, 10)).Err(); err != nil {
		return err
	}
	return c.Client.Expire(ctx, key, exclusionTTL).Err()
}

// InvalidateExclusions drops the materialized set so the next discovery
// request rebuilds it from the database.
func (c *RedisCache) InvalidateExclusions(ctx context.Context, userIDs ...uint64) error {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, c.KeyForExclusions(id))
	}
	return c.Client.Del(ctx, keys...).Err()
}

// KeyForNotificationQueue is the outbox list consumed by the notification
// collaborator.
func (c *RedisCache) KeyForNotificationQueue() string {
	return "notifications:outbox"
}

// EnqueueNotification pushes a serialized notification onto the outbox.
func (c *RedisCache) EnqueueNotification(ctx context.Context, payload []byte) error {
	return c.Client.RPush(ctx, c.KeyForNotificationQueue(), payload).Err()
}
