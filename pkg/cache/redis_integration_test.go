package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/instantcocoa/periscope/pkg/testutil"
)

func setupRedis(t *testing.T) *RedisStore {
	t.Helper()

	cfg := DefaultConfig()
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	cfg.DB = 15
	cfg.KeyPrefix = "periscope_test"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	store, err := Connect(ctx, cfg, testutil.DiscardLogger())
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	store.client.FlushDB(ctx)
	t.Cleanup(func() {
		store.client.FlushDB(context.Background())
		store.Close()
	})
	return store
}

func TestRedisStore_Integration(t *testing.T) {
	testStore(t, setupRedis(t))
}

func TestRedisStore_TTL_Integration(t *testing.T) {
	store := setupRedis(t)
	ctx := context.Background()

	store.Incr(ctx, "window", time.Minute)
	ttl, err := store.client.TTL(ctx, store.key("window")).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want within (0, 1m]", ttl)
	}
}

func TestCacheAside_Redis_Integration(t *testing.T) {
	store := setupRedis(t)
	ca := NewCacheAside[graph](store, "servicemap", time.Minute, testutil.DiscardLogger())

	var loads int
	load := func(context.Context) (graph, error) {
		loads++
		return graph{Edges: []string{"a->b"}}, nil
	}
	ca.Get(context.Background(), "k", load)
	got, err := ca.Get(context.Background(), "k", load)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loads != 1 || len(got.Edges) != 1 {
		t.Errorf("loads = %d, got = %+v", loads, got)
	}
}
