package cache

import (
	"context"
	"fmt"

	"almaseo-go/internal/config"
	"almaseo-go/internal/seo"
)

// NewCacheFromConfig creates a Cache implementation based on the cache config type.
// An empty type selects the memory cache.
func NewCacheFromConfig(ctx context.Context, cfg config.CacheConfig, clock seo.Clock) (seo.Cache, error) {
	switch cfg.Type {
	case "memory", "":
		size := cfg.MaxEntries
		if size <= 0 {
			size = config.DefaultCacheEntries
		}
		return NewMemoryCache(size, clock)
	case "redis":
		return NewRedisCache(ctx, cfg.RedisURL, cfg.KeyPrefix)
	case "none":
		return seo.NopCache{}, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}
