package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"almaseo-go/internal/seo"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryCache is a size-bounded in-process cache with per-entry expiry.
// Safe for concurrent use.
type MemoryCache struct {
	entries *lru.Cache
	now     func() time.Time
}

// NewMemoryCache creates a MemoryCache holding at most size entries.
// clock may be nil, in which case the wall clock is used.
func NewMemoryCache(size int, clock seo.Clock) (*MemoryCache, error) {
	entries, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating memory cache: %w", err)
	}
	if clock == nil {
		clock = seo.RealClock{}
	}
	return &MemoryCache{entries: entries, now: clock.Now}, nil
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	entry := v.(memoryEntry)
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.entries.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores a copy of value. A non-positive ttl keeps the entry until evicted.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries.Add(key, entry)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.entries.Remove(key)
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}

var _ seo.Cache = (*MemoryCache)(nil)
