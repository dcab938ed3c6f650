package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultLoadTimeout bounds a shared load once its callers stop waiting.
const DefaultLoadTimeout = 30 * time.Second

// CacheAside serves JSON-encoded values from a Store and loads misses from
// the source. Concurrent misses for one key share a single load that no
// single caller's cancellation can abort. Store failures degrade to loading
// from the source.
type CacheAside[T any] struct {
	store       Store
	ttl         time.Duration
	namespace   string
	loadTimeout time.Duration
	group       singleflight.Group
	logger      *slog.Logger
}

// NewCacheAside creates a cache for values under namespace.
func NewCacheAside[T any](store Store, namespace string, ttl time.Duration, logger *slog.Logger) *CacheAside[T] {
	return &CacheAside[T]{
		store:       store,
		ttl:         ttl,
		namespace:   namespace,
		loadTimeout: DefaultLoadTimeout,
		logger:      logger,
	}
}

// Key derives a fixed-length cache key from any JSON-encodable request.
func Key(request any) (string, error) {
	b, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func (c *CacheAside[T]) key(k string) string {
	return c.namespace + ":" + k
}

// Get returns the cached value for key, or calls load and caches its result.
// Errors from load are returned and never cached. A cancelled caller stops
// waiting while the load carries on for the others.
func (c *CacheAside[T]) Get(ctx context.Context, key string, load func(ctx context.Context) (T, error)) (T, error) {
	full := c.key(key)

	if data, ok, err := c.store.Get(ctx, full); err != nil {
		c.logger.WarnContext(ctx, "cache read failed", "key", full, "error", err)
	} else if ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cache entry", "key", full)
	}

	ch := c.group.DoChan(full, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		v, err := load(lctx)
		if err != nil {
			return v, err
		}
		if data, err := json.Marshal(v); err == nil {
			if err := c.store.Set(lctx, full, data, c.ttl); err != nil {
				c.logger.WarnContext(lctx, "cache write failed", "key", full, "error", err)
			}
		}
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Invalidate removes key from the cache.
func (c *CacheAside[T]) Invalidate(ctx context.Context, key string) error {
	return c.store.Delete(ctx, c.key(key))
}
