package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"transport-backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// Key identifies one caller's merged list.
type Key struct {
	Role   models.UserRole
	UserID uint
}

// Cache keeps merged lists for a short TTL plus a read overlay for
// notifications whose category has no backing source to update.
type Cache interface {
	Get(ctx context.Context, k Key) ([]Item, bool, error)
	Set(ctx context.Context, k Key, items []Item) error
	// Invalidate drops cached lists of role, or only userID's when non-nil.
	Invalidate(ctx context.Context, role models.UserRole, userID *uint) error
	MarkLocalRead(ctx context.Context, k Key, category models.NotificationCategory, id uint) error
	LocalReads(ctx context.Context, k Key) (map[string]bool, error)
}

const overlayTTL = 7 * 24 * time.Hour

func overlayMember(category models.NotificationCategory, id uint) string {
	return fmt.Sprintf("%s:%d", category, id)
}

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func listKey(k Key) string {
	return fmt.Sprintf("notifications:list:%s:%d", k.Role, k.UserID)
}

func overlayKey(k Key) string {
	return fmt.Sprintf("notifications:read:%s:%d", k.Role, k.UserID)
}

func (c *RedisCache) Get(ctx context.Context, k Key) ([]Item, bool, error) {
	raw, err := c.rdb.Get(ctx, listKey(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}
	return items, true, nil
}

func (c *RedisCache) Set(ctx context.Context, k Key, items []Item) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, listKey(k), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, role models.UserRole, userID *uint) error {
	if role != "" && userID != nil {
		return c.rdb.Del(ctx, listKey(Key{Role: role, UserID: *userID})).Err()
	}

	rolePart, userPart := "*", "*"
	if role != "" {
		rolePart = string(role)
	}
	if userID != nil {
		userPart = fmt.Sprint(*userID)
	}
	iter := c.rdb.Scan(ctx, 0, fmt.Sprintf("notifications:list:%s:%s", rolePart, userPart), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *RedisCache) MarkLocalRead(ctx context.Context, k Key, category models.NotificationCategory, id uint) error {
	pipe := c.rdb.TxPipeline()
	pipe.SAdd(ctx, overlayKey(k), overlayMember(category, id))
	pipe.Expire(ctx, overlayKey(k), overlayTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("overlay write: %w", err)
	}
	return nil
}

func (c *RedisCache) LocalReads(ctx context.Context, k Key) (map[string]bool, error) {
	members, err := c.rdb.SMembers(ctx, overlayKey(k)).Result()
	if err != nil {
		return nil, fmt.Errorf("overlay read: %w", err)
	}
	out := make(map[string]bool, len(members))
	for _, m := range members {
		out[m] = true
	}
	return out, nil
}

// MemoryCache is used when redis is not configured. The overlay does not
// survive a restart.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	lists   map[Key]memoryEntry
	overlay map[Key]map[string]bool
}

type memoryEntry struct {
	items   []Item
	expires time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		lists:   make(map[Key]memoryEntry),
		overlay: make(map[Key]map[string]bool),
	}
}

func (c *MemoryCache) Get(_ context.Context, k Key) ([]Item, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lists[k]
	if !ok || c.now().After(e.expires) {
		delete(c.lists, k)
		return nil, false, nil
	}
	return append([]Item(nil), e.items...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, k Key, items []Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[k] = memoryEntry{items: append([]Item(nil), items...), expires: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, role models.UserRole, userID *uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.lists {
		if role != "" && k.Role != role {
			continue
		}
		if userID != nil && k.UserID != *userID {
			continue
		}
		delete(c.lists, k)
	}
	return nil
}

func (c *MemoryCache) MarkLocalRead(_ context.Context, k Key, category models.NotificationCategory, id uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.overlay[k] == nil {
		c.overlay[k] = make(map[string]bool)
	}
	c.overlay[k][overlayMember(category, id)] = true
	return nil
}

func (c *MemoryCache) LocalReads(_ context.Context, k Key) (map[string]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]bool, len(c.overlay[k]))
	for m := range c.overlay[k] {
		out[m] = true
	}
	return out, nil
}
