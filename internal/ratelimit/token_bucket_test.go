package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestTokenBucket(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bucket := NewTokenBucket(client, 2, 1, time.Minute)

	allowed, err := bucket.Allow(ctx, "tenant")
	if err != nil || !allowed {
		t.Fatalf("expected first token allowed got allowed=%v err=%v", allowed, err)
	}
	allowed, _ = bucket.Allow(ctx, "tenant")
	if !allowed {
		t.Fatalf("expected second token allowed")
	}
	allowed, _ = bucket.Allow(ctx, "tenant")
	if allowed {
		t.Fatalf("expected third token to be rejected")
	}

	// Buckets are keyed per tenant; another tenant starts full.
	allowed, _ = bucket.Allow(ctx, "other")
	if !allowed {
		t.Fatalf("expected fresh tenant to be allowed")
	}
}
