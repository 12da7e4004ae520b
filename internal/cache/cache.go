// Package cache keeps per-skill-unit item pools in Redis so quiz assembly
// does not hit Postgres on every request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quizlab/adaptive-backend/internal/models"
)

// PoolCache wraps a Redis client.
type PoolCache struct {
	Client *redis.Client
	ttl    time.Duration
}

// ParseURL validates a Redis connection URL.
func ParseURL(url string) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("cache URL is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	return opts, nil
}

// New connects and pings. A non-positive ttl means entries never expire.
func New(ctx context.Context, url string, ttl time.Duration) (*PoolCache, error) {
	opts, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging cache: %w", err)
	}

	return &PoolCache{Client: client, ttl: ttl}, nil
}

func poolKey(skillUnitID int64) string {
	return fmt.Sprintf("pool:%d", skillUnitID)
}

// GetPool returns the cached pool. ok is false on a miss.
func (c *PoolCache) GetPool(ctx context.Context, skillUnitID int64) ([]models.Item, bool, error) {
	raw, err := c.Client.Get(ctx, poolKey(skillUnitID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get pool %d: %w", skillUnitID, err)
	}

	items, err := decodePool(raw)
	if err != nil {
		return nil, false, fmt.Errorf("decode pool %d: %w", skillUnitID, err)
	}
	return items, true, nil
}

func (c *PoolCache) SetPool(ctx context.Context, skillUnitID int64, items []models.Item) error {
	raw, err := encodePool(items)
	if err != nil {
		return fmt.Errorf("encode pool %d: %w", skillUnitID, err)
	}
	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := c.Client.Set(ctx, poolKey(skillUnitID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("set pool %d: %w", skillUnitID, err)
	}
	return nil
}

// InvalidatePool drops the cached pool for a skill unit.
func (c *PoolCache) InvalidatePool(ctx context.Context, skillUnitID int64) error {
	if err := c.Client.Del(ctx, poolKey(skillUnitID)).Err(); err != nil {
		return fmt.Errorf("invalidate pool %d: %w", skillUnitID, err)
	}
	return nil
}

// Close shuts down the cache client.
func (c *PoolCache) Close() error {
	return c.Client.Close()
}

// HealthCheck verifies the cache connection is alive.
func (c *PoolCache) HealthCheck(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func encodePool(items []models.Item) ([]byte, error) {
	if items == nil {
		items = []models.Item{}
	}
	return json.Marshal(items)
}

func decodePool(raw []byte) ([]models.Item, error) {
	var items []models.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}
