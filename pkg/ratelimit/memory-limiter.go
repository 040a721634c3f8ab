package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tarpit/pkg/utils/logger"
)

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// MemoryRateLimiter is an in-process token bucket per key. Buckets refill
// continuously at limit/window tokens per second.
type MemoryRateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	limit     int64
	window    time.Duration
	ttl       time.Duration
	now       func() time.Time
	logger    *logger.Logger
	stop      chan struct{}
	closeOnce sync.Once
}

func NewMemoryRateLimiter(limit int64, window time.Duration, logger *logger.Logger) *MemoryRateLimiter {
	limiter := &MemoryRateLimiter{
		buckets: make(map[string]*tokenBucket),
		limit:   limit,
		window:  window,
		ttl:     window * 2,
		now:     time.Now,
		logger:  logger,
		stop:    make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

func (m *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, int64, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.limit <= 0 {
		return false, 0, now.Add(m.window)
	}

	bucket, exists := m.buckets[key]
	if !exists {
		bucket = &tokenBucket{tokens: float64(m.limit), lastRefill: now}
		m.buckets[key] = bucket
		m.logger.Debug(fmt.Sprintf("Created token bucket for key %s", key))
	}

	rate := m.refillRate()
	if elapsed := now.Sub(bucket.lastRefill); elapsed > 0 {
		bucket.tokens = min(float64(m.limit), bucket.tokens+elapsed.Seconds()*rate)
		bucket.lastRefill = now
	}

	if bucket.tokens >= 1 {
		bucket.tokens--
		return true, int64(bucket.tokens), now
	}

	wait := time.Duration((1 - bucket.tokens) / rate * float64(time.Second))
	return false, 0, now.Add(wait)
}

func (m *MemoryRateLimiter) refillRate() float64 {
	return float64(m.limit) / m.window.Seconds()
}

// cleanup drops buckets that have been idle for longer than ttl; an idle
// bucket is full again anyway.
func (m *MemoryRateLimiter) cleanup() {
	ticker := time.NewTicker(m.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictIdle()
		case <-m.stop:
			return
		}
	}
}

func (m *MemoryRateLimiter) evictIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, bucket := range m.buckets {
		if now.Sub(bucket.lastRefill) > m.ttl {
			delete(m.buckets, key)
		}
	}
}

func (m *MemoryRateLimiter) Health(context.Context) error {
	return nil
}

func (m *MemoryRateLimiter) Close() error {
	m.closeOnce.Do(func() {
		close(m.stop)
		m.mu.Lock()
		m.buckets = make(map[string]*tokenBucket)
		m.mu.Unlock()
	})
	return nil
}
