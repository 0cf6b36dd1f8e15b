package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested page is not cached or has expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates a stored entry is corrupted or does not hold
	// the page its key addresses; callers should Delete it and refetch
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrNotCacheable is returned by Set for pages that are always refetched
	ErrNotCacheable = errors.New("page not cacheable")
)

// Manager stores UTS pages in Redis, one key per resource page.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis: redisClient,
	}
}

// Get returns the cached page for key.
//
// Missing or expired entries yield ErrCacheMiss. Entries that cannot be
// decoded, belong to another page, or describe an uncacheable page yield
// ErrInvalidEntry.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	raw, err := m.redis.Get(ctx, key.String()).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	case err != nil:
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis drops the key at Expires; this covers clock skew between writers.
	if entry.IsExpired() {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	if err := entry.describes(key); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.WithLabelValues("redis").Inc()
	return &entry, nil
}

// Set stores a page until entry.Expires.
//
// Only 200 pages without a service error are stored; anything else returns
// ErrNotCacheable and leaves an existing entry in place. An entry whose Page
// differs from key.Page returns ErrInvalidEntry.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if err := entry.cacheable(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotCacheable, err)
	}
	if entry.Page != key.Page {
		return fmt.Errorf("%w: entry holds page %d, key addresses page %d", ErrInvalidEntry, entry.Page, key.Page)
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSize.WithLabelValues("redis").Add(float64(len(data)))
	return nil
}

// Delete removes the entry for key.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
