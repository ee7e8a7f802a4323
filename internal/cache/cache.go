package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"voyago/config"
)

const (
	// ListTTL covers paginated catalog listings, which change whenever an
	// admin edits inventory and are invalidated on write anyway.
	ListTTL = 5 * time.Minute
	// DetailTTL covers single-item lookups.
	DetailTTL = 15 * time.Minute
)

// NewRedisClient connects to Redis and verifies the connection before
// returning, so a bad address fails at startup rather than on first use.
func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Cache is a small JSON-over-Redis wrapper. A nil *Cache is safe to use and
// behaves as a permanent miss, so callers don't need to guard every call
// when caching is disabled.
type Cache struct {
	client *redis.Client
	logger *zap.Logger
}

func New(client *redis.Client, logger *zap.Logger) *Cache {
	return &Cache{client: client, logger: logger}
}

// GetJSON loads key into dest. It reports false on a miss, and treats Redis
// errors as misses so a cache outage never takes down reads.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) bool {
	if c == nil || c.client == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn("cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// SetJSON stores val under key for ttl. Failures are logged and swallowed.
func (c *Cache) SetJSON(ctx context.Context, key string, val any, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(val)
	if err != nil {
		c.logger.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes the given keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if c == nil || c.client == nil || len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// InvalidatePrefix deletes every key under prefix. Used when an admin write
// changes catalog data and all cached listings for that type go stale.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) {
	if c == nil || c.client == nil {
		return
	}
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("cache scan failed", zap.String("prefix", prefix), zap.Error(err))
		return
	}
	c.Delete(ctx, keys...)
}

// Key builders. Listing keys embed the query parameters that shape the
// result so distinct filters never collide.

func HotelKey(id uint) string { return fmt.Sprintf("hotel:%d", id) }

func HotelListKey(city string, page, pageSize int) string {
	return fmt.Sprintf("hotels:%s:%d:%d", city, page, pageSize)
}

func AttractionKey(id uint) string { return fmt.Sprintf("attraction:%d", id) }

func AttractionListKey(city string, page, pageSize int) string {
	return fmt.Sprintf("attractions:%s:%d:%d", city, page, pageSize)
}

func RestaurantKey(id uint) string { return fmt.Sprintf("restaurant:%d", id) }

func RestaurantListKey(city string, page, pageSize int) string {
	return fmt.Sprintf("restaurants:%s:%d:%d", city, page, pageSize)
}
