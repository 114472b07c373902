package cache

import (
	"context"
	"testing"
	"time"

	"almaseo-go/internal/testutil"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("miss on unknown key", func(t *testing.T) {
		c, _ := NewMemoryCache(4, testutil.FixedClock())

		_, ok, err := c.Get(ctx, "nope")
		if err != nil || ok {
			t.Errorf("Get() = ok %v, err %v, want miss", ok, err)
		}
	})

	t.Run("set then get", func(t *testing.T) {
		c, _ := NewMemoryCache(4, testutil.FixedClock())

		if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		got, ok, err := c.Get(ctx, "k")
		if err != nil || !ok || string(got) != "v" {
			t.Errorf("Get() = %q, %v, %v, want v", got, ok, err)
		}
	})

	t.Run("stored value is a copy", func(t *testing.T) {
		c, _ := NewMemoryCache(4, testutil.FixedClock())

		buf := []byte("abc")
		c.Set(ctx, "k", buf, 0)
		buf[0] = 'x'

		got, _, _ := c.Get(ctx, "k")
		if string(got) != "abc" {
			t.Errorf("Get() = %q, want abc", got)
		}
	})

	t.Run("entries expire", func(t *testing.T) {
		clock := testutil.FixedClock()
		c, _ := NewMemoryCache(4, clock)

		c.Set(ctx, "k", []byte("v"), time.Minute)
		clock.Advance(59 * time.Second)
		if _, ok, _ := c.Get(ctx, "k"); !ok {
			t.Error("entry expired early")
		}

		clock.Advance(time.Second)
		if _, ok, _ := c.Get(ctx, "k"); ok {
			t.Error("entry still present after ttl")
		}
		if c.Len() != 0 {
			t.Errorf("Len() = %d, want 0 after expired read", c.Len())
		}
	})

	t.Run("zero ttl never expires", func(t *testing.T) {
		clock := testutil.FixedClock()
		c, _ := NewMemoryCache(4, clock)

		c.Set(ctx, "k", []byte("v"), 0)
		clock.Advance(24 * time.Hour)
		if _, ok, _ := c.Get(ctx, "k"); !ok {
			t.Error("entry without ttl expired")
		}
	})

	t.Run("delete", func(t *testing.T) {
		c, _ := NewMemoryCache(4, testutil.FixedClock())

		c.Set(ctx, "k", []byte("v"), time.Minute)
		if err := c.Delete(ctx, "k"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, ok, _ := c.Get(ctx, "k"); ok {
			t.Error("entry present after Delete()")
		}
		if err := c.Delete(ctx, "k"); err != nil {
			t.Errorf("Delete() of missing key error = %v", err)
		}
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		c, _ := NewMemoryCache(2, testutil.FixedClock())

		c.Set(ctx, "a", []byte("1"), 0)
		c.Set(ctx, "b", []byte("2"), 0)
		c.Get(ctx, "a")
		c.Set(ctx, "c", []byte("3"), 0)

		if _, ok, _ := c.Get(ctx, "b"); ok {
			t.Error("least recently used entry not evicted")
		}
		if _, ok, _ := c.Get(ctx, "a"); !ok {
			t.Error("recently used entry evicted")
		}
	})

	t.Run("rejects non-positive size", func(t *testing.T) {
		if _, err := NewMemoryCache(0, nil); err == nil {
			t.Error("NewMemoryCache(0) expected error")
		}
	})
}
