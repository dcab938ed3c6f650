package cache

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 9, 11, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	rl := NewRateLimiter(store, "ratelimit", 2, time.Minute)
	if rl.Limit() != 2 {
		t.Errorf("Limit() = %d, want 2", rl.Limit())
	}

	tests := []struct {
		allowed   bool
		remaining int
	}{
		{true, 1},
		{true, 0},
		{false, 0},
	}
	for i, tt := range tests {
		allowed, remaining, err := rl.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if allowed != tt.allowed || remaining != tt.remaining {
			t.Errorf("request %d: Allow() = (%v, %d), want (%v, %d)", i, allowed, remaining, tt.allowed, tt.remaining)
		}
	}

	if allowed, _, _ := rl.Allow(ctx, "10.0.0.2"); !allowed {
		t.Error("limit leaked across keys")
	}

	now = now.Add(time.Minute)
	if allowed, _, _ := rl.Allow(ctx, "10.0.0.1"); !allowed {
		t.Error("limit not reset after the window")
	}
}
