package cache

import (
	"context"
	"time"
)

// RateLimiter allows up to limit requests per key in each fixed window.
type RateLimiter struct {
	store  Store
	prefix string
	limit  int
	window time.Duration
}

// NewRateLimiter creates a fixed-window limiter.
func NewRateLimiter(store Store, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		store:  store,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

// Allow counts a request for key and reports whether it is within the limit
// and how many requests remain in the window.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (allowed bool, remaining int, err error) {
	n, err := rl.store.Incr(ctx, rl.prefix+":"+key, rl.window)
	if err != nil {
		return false, 0, err
	}
	remaining = rl.limit - int(n)
	if remaining < 0 {
		remaining = 0
	}
	return n <= int64(rl.limit), remaining, nil
}

// Limit returns the requests allowed per window.
func (rl *RateLimiter) Limit() int { return rl.limit }
