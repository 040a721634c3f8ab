package ratelimit

import (
	"context"
	"net"
	"testing"
	"time"

	"tarpit/pkg/models"

	"github.com/alicebob/miniredis/v2"
)

// unreachableAddr returns an address nothing is listening on.
func unreachableAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve a port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestNewRedisRateLimiter_DefaultValues(t *testing.T) {
	limiter := NewRedisRateLimiter(&models.RedisConfig{
		Address:      "localhost:6379",
		KeyNamespace: "test:",
	}, 100, time.Minute, createTestLogger(t))
	defer limiter.Close()

	if limiter.limit != 100 {
		t.Errorf("Expected limit=100, got %d", limiter.limit)
	}
	if limiter.namespace != "test:" {
		t.Errorf("Expected namespace='test:', got '%s'", limiter.namespace)
	}
	if !limiter.failOpen {
		t.Error("Expected failOpen=true by default")
	}
}

func TestNewRedisRateLimiter_NamespaceFormatting(t *testing.T) {
	limiter := NewRedisRateLimiter(&models.RedisConfig{
		Address:      "localhost:6379",
		KeyNamespace: "tarpit",
	}, 100, time.Minute, createTestLogger(t))
	defer limiter.Close()

	if limiter.namespace != "tarpit:" {
		t.Errorf("Expected namespace to be appended with ':', got '%s'", limiter.namespace)
	}
	if limiter.key("1.2.3.4") != "tarpit:1.2.3.4" {
		t.Errorf("Unexpected key %s", limiter.key("1.2.3.4"))
	}
}

func TestNewRedisRateLimiter_EmptyNamespace(t *testing.T) {
	limiter := NewRedisRateLimiter(&models.RedisConfig{Address: "localhost:6379"}, 100, time.Minute, createTestLogger(t))
	defer limiter.Close()

	if limiter.namespace != DEFAULT_REDIS_NAMESPACE {
		t.Errorf("Expected default namespace, got '%s'", limiter.namespace)
	}
}

func TestRedisRateLimiter_FailOpen(t *testing.T) {
	limiter := NewRedisRateLimiter(&models.RedisConfig{Address: unreachableAddr(t)}, 5, time.Minute, createTestLogger(t))
	defer limiter.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	allowed, remaining, _ := limiter.Allow(ctx, "client")
	if !allowed {
		t.Error("Expected request to be allowed when redis is down and failOpen=true")
	}
	if remaining != 5 {
		t.Errorf("Expected remaining=5 on fail-open, got %d", remaining)
	}
	if err := limiter.Health(ctx); err == nil {
		t.Error("Expected health check to fail against an unreachable redis")
	}
}

func TestRedisRateLimiter_FailClosed(t *testing.T) {
	failOpen := false
	limiter := NewRedisRateLimiter(&models.RedisConfig{
		Address:  unreachableAddr(t),
		FailOpen: &failOpen,
	}, 5, time.Minute, createTestLogger(t))
	defer limiter.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	allowed, _, retryAt := limiter.Allow(ctx, "client")
	if allowed {
		t.Error("Expected request to be denied when redis is down and failOpen=false")
	}
	if !retryAt.After(time.Now()) {
		t.Error("Expected retryAt in the future")
	}
}

func TestRedisRateLimiter_TokenBucket(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter := NewRedisRateLimiter(&models.RedisConfig{Address: mr.Addr()}, 2, time.Minute, createTestLogger(t))
	defer limiter.Close()

	ctx := context.Background()
	if err := limiter.Health(ctx); err != nil {
		t.Fatalf("Expected healthy redis, got %v", err)
	}

	for i, want := range []int64{1, 0} {
		allowed, remaining, _ := limiter.Allow(ctx, "client")
		if !allowed {
			t.Fatalf("Request %d should be allowed", i+1)
		}
		if remaining != want {
			t.Errorf("Request %d: expected remaining=%d, got %d", i+1, want, remaining)
		}
	}

	before := time.Now()
	allowed, remaining, retryAt := limiter.Allow(ctx, "client")
	if allowed {
		t.Fatal("Third request should be denied")
	}
	if remaining != 0 {
		t.Errorf("Expected remaining=0, got %d", remaining)
	}
	// One token every 30s at 2 per minute.
	if wait := retryAt.Sub(before); wait < 25*time.Second || wait > 31*time.Second {
		t.Errorf("Expected retry in about 30s, got %s", wait)
	}

	if allowed, _, _ := limiter.Allow(ctx, "other"); !allowed {
		t.Error("Keys should not share a bucket")
	}

	key := DEFAULT_REDIS_NAMESPACE + "client"
	if !mr.Exists(key) {
		t.Fatalf("Expected bucket stored under %s, keys: %v", key, mr.Keys())
	}
	if ttl := mr.TTL(key); ttl != 2*time.Minute {
		t.Errorf("Expected bucket TTL of two windows, got %s", ttl)
	}
}

func TestRedisRateLimiter_ZeroLimitDenies(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter := NewRedisRateLimiter(&models.RedisConfig{Address: mr.Addr()}, 0, time.Minute, createTestLogger(t))
	defer limiter.Close()

	before := time.Now()
	allowed, _, retryAt := limiter.Allow(context.Background(), "client")
	if allowed {
		t.Error("Expected a zero limit to deny every request")
	}
	if wait := retryAt.Sub(before); wait < 59*time.Second {
		t.Errorf("Expected retry after a full window, got %s", wait)
	}
}
