package seo

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry expiry.
type Cache interface {
	// Get returns the value for key; ok is false on a miss or expired entry.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete invalidates key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// NopCache never stores anything, forcing every read through to the store.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (NopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NopCache) Delete(context.Context, string) error                     { return nil }
