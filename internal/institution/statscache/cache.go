package statscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	platformredis "flowledger/internal/platform/redis"
)

// Cache memoizes directory stats scans in Redis. The directory is scanned
// linearly per query, so hot dashboards hit this cache instead.
type Cache struct {
	client *platformredis.Client
	ttl    time.Duration
}

func New(client *platformredis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Enabled reports whether a Redis backend is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

func regionKey(regionCode uint32) string {
	return fmt.Sprintf("flowledger:stats:region:%d", regionCode)
}

func tierKey(riskTier uint8) string {
	return fmt.Sprintf("flowledger:stats:tier:%d", riskTier)
}

// GetRegion returns the cached count for the region, or found=false on a
// miss. Cache errors are reported as misses; the caller falls back to a
// directory scan.
func (c *Cache) GetRegion(ctx context.Context, regionCode uint32) (count uint64, found bool) {
	return c.get(ctx, regionKey(regionCode))
}

func (c *Cache) SetRegion(ctx context.Context, regionCode uint32, count uint64) error {
	return c.set(ctx, regionKey(regionCode), count)
}

func (c *Cache) GetTier(ctx context.Context, riskTier uint8) (count uint64, found bool) {
	return c.get(ctx, tierKey(riskTier))
}

func (c *Cache) SetTier(ctx context.Context, riskTier uint8, count uint64) error {
	return c.set(ctx, tierKey(riskTier), count)
}

// Invalidate drops every stats key. Called after any directory mutation so
// stale counts never outlive a write by more than the scan that follows.
func (c *Cache) Invalidate(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	iter := c.client.Scan(ctx, 0, "flowledger:stats:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan stats keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *Cache) get(ctx context.Context, key string) (uint64, bool) {
	if !c.Enabled() {
		return 0, false
	}
	raw, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil || err != nil {
		return 0, false
	}
	var count uint64
	if err := json.Unmarshal([]byte(raw), &count); err != nil {
		return 0, false
	}
	return count, true
}

func (c *Cache) set(ctx context.Context, key string, count uint64) error {
	if !c.Enabled() {
		return nil
	}
	raw, err := json.Marshal(count)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}
