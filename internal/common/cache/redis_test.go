package cache_test

import (
	"context"
	"testing"
	"time"

	"codepad/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(context.Background(), cache.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestGetSet(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)

	if v, err := c.Get(ctx, "missing"); err != nil || v != "" {
		t.Fatalf("missing key should read empty, got %q (%v)", v, err)
	}
	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if v, _ := c.Get(ctx, "k"); v != "v" {
		t.Fatalf("unexpected value %q", v)
	}
	if mr.TTL("k") != time.Minute {
		t.Fatalf("expected ttl of one minute, got %s", mr.TTL("k"))
	}
}

func TestIncrWindow(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)

	for want := int64(1); want <= 3; want++ {
		n, err := c.IncrWindow(ctx, "hits", time.Minute)
		if err != nil || n != want {
			t.Fatalf("IncrWindow = %d (%v), want %d", n, err, want)
		}
	}
	if ttl := mr.TTL("hits"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("window expiry not armed: %s", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if n, _ := c.IncrWindow(ctx, "hits", time.Minute); n != 1 {
		t.Fatalf("expected a fresh window, got %d", n)
	}

	// A counter that lost its ttl gets one back on the next hit.
	mr.Set("stale", "7")
	if n, _ := c.IncrWindow(ctx, "stale", time.Minute); n != 8 || mr.TTL("stale") <= 0 {
		t.Fatalf("expected stale counter to be re-armed, got %d ttl %s", n, mr.TTL("stale"))
	}

	if _, err := c.IncrWindow(ctx, "hits", 0); err == nil {
		t.Fatalf("expected error for zero window")
	}
}

func TestNewRedisCacheErrors(t *testing.T) {
	if _, err := cache.NewRedisCache(context.Background(), cache.RedisConfig{}); err == nil {
		t.Fatalf("expected error without addr")
	}
	if _, err := cache.NewRedisCacheWithClient(nil); err == nil {
		t.Fatalf("expected error for nil client")
	}
	cfg := cache.RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond}
	if _, err := cache.NewRedisCache(context.Background(), cfg); err == nil {
		t.Fatalf("expected ping failure")
	}
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}))
	if err != nil || c == nil {
		t.Fatalf("wrapping a client should not dial: %v", err)
	}
	_ = c.Close()
}

func TestRedisConfigDefaults(t *testing.T) {
	cfg := cache.RedisConfig{PoolSize: 16}.WithDefaults()
	if cfg.PoolSize != 16 || cfg.MaxRetries != 3 || cfg.DialTimeout != 5*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}
