package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"helpdesk-service/internal/models"
)

// PermissionCache handles caching of resolved user permissions in Redis.
// A nil client means the cache is degraded; callers fall back to direct
// recomputation and the request still succeeds.
type PermissionCache struct {
	client *redis.Client
	ttl    time.Duration

	hits     atomic.Int64
	misses   atomic.Int64
	setFails atomic.Int64
}

// Stats is a snapshot of cache counters
type Stats struct {
	Available bool  `json:"available"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	SetFails  int64 `json:"setFails"`
}

// NewPermissionCache creates a new permission cache instance
func NewPermissionCache(host string, port int, password string, db int, ttlSeconds int) (*PermissionCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		// Return cache with nil client - will gracefully degrade to no caching
		return &PermissionCache{
			client: nil,
			ttl:    time.Duration(ttlSeconds) * time.Second,
		}, nil
	}

	return &PermissionCache{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
	}, nil
}

// NewPermissionCacheWithClient wraps an existing client (used by tests)
func NewPermissionCacheWithClient(client *redis.Client, ttl time.Duration) *PermissionCache {
	return &PermissionCache{client: client, ttl: ttl}
}

func (c *PermissionCache) cacheKey(userID uuid.UUID) string {
	return fmt.Sprintf("perms:%s", userID.String())
}

// Get retrieves cached effective permissions for a user
func (c *PermissionCache) Get(ctx context.Context, userID uuid.UUID) (*models.EffectivePermissions, error) {
	if c.client == nil {
		return nil, nil // Cache unavailable
	}

	data, err := c.client.Get(ctx, c.cacheKey(userID)).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, nil // Cache miss
	}
	if err != nil {
		c.misses.Add(1)
		return nil, err
	}

	var perms models.EffectivePermissions
	if err := json.Unmarshal(data, &perms); err != nil {
		return nil, err
	}

	c.hits.Add(1)
	return &perms, nil
}

// Set caches effective permissions for a user
func (c *PermissionCache) Set(ctx context.Context, userID uuid.UUID, perms *models.EffectivePermissions) error {
	if c.client == nil {
		return nil // Cache unavailable, silently skip
	}

	data, err := json.Marshal(perms)
	if err != nil {
		return err
	}

	if err := c.client.Set(ctx, c.cacheKey(userID), data, c.ttl).Err(); err != nil {
		c.setFails.Add(1)
		return err
	}
	return nil
}

// Invalidate removes cached permissions for a user. Called whenever a role,
// temporal, or emergency state mutates for that user.
func (c *PermissionCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.cacheKey(userID)).Err()
}

// InvalidateAll removes all cached permission entries. Used when a role's
// permission set changes, since any user may hold that role.
func (c *PermissionCache) InvalidateAll(ctx context.Context) error {
	if c.client == nil {
		return nil
	}

	iter := c.client.Scan(ctx, 0, "perms:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if len(keys) > 0 {
		return c.client.Del(ctx, keys...).Err()
	}
	return nil
}

// GetStats returns a snapshot of the cache counters
func (c *PermissionCache) GetStats() Stats {
	return Stats{
		Available: c.client != nil,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		SetFails:  c.setFails.Load(),
	}
}

// IsAvailable returns true if the cache is available
func (c *PermissionCache) IsAvailable() bool {
	return c.client != nil
}

// Close closes the Redis connection
func (c *PermissionCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
