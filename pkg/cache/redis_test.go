package cache

import (
	"context"
	"testing"
	"time"

	"github.com/instantcocoa/periscope/pkg/testutil"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Addr != "localhost:6379" {
		t.Errorf("Addr = %v, want %v", cfg.Addr, "localhost:6379")
	}
	if cfg.PoolSize != 10 {
		t.Errorf("PoolSize = %v, want %v", cfg.PoolSize, 10)
	}
	if cfg.ReadTimeout != 3*time.Second {
		t.Errorf("ReadTimeout = %v, want %v", cfg.ReadTimeout, 3*time.Second)
	}
	if cfg.KeyPrefix != "periscope" {
		t.Errorf("KeyPrefix = %v, want %v", cfg.KeyPrefix, "periscope")
	}
}

func TestRedisStore_Key(t *testing.T) {
	tests := []struct {
		prefix string
		key    string
		want   string
	}{
		{"", "servicemap:abc", "servicemap:abc"},
		{"periscope", "servicemap:abc", "periscope:servicemap:abc"},
	}

	for _, tt := range tests {
		s := &RedisStore{keyPrefix: tt.prefix}
		if got := s.key(tt.key); got != tt.want {
			t.Errorf("key(%q) with prefix %q = %v, want %v", tt.key, tt.prefix, got, tt.want)
		}
	}
}

func TestConnect_InvalidAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.MaxRetries = 0

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := Connect(ctx, cfg, testutil.DiscardLogger()); err == nil {
		t.Error("expected error connecting to a closed port")
	}
}
