// Package ratelimit throttles per-IP authentication attempts per spec §4.6.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether an authentication attempt from an address is
// allowed within the current one-minute window.
type Limiter interface {
	Allow(ctx context.Context, addr string) (bool, error)
}

// Disabled never throttles; used when rate_limit_per_minute is 0 or no
// key-value store is configured, per spec §4.6 "If absent, rate limiting is
// disabled".
type Disabled struct{}

func (Disabled) Allow(context.Context, string) (bool, error) { return true, nil }

// memoryBucket tracks the attempt count for one address within the current
// window.
type memoryBucket struct {
	count      int
	windowEnds time.Time
}

// InMemory is a fixed-window per-IP limiter. New never selects it: per spec
// §4.6, an absent redis_url means rate limiting is disabled outright rather
// than falling back to a single-process limiter. Kept as a Limiter
// implementation for callers that want explicit single-process throttling
// without Redis.
type InMemory struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
	limit   int
	window  time.Duration
}

// NewInMemory builds an in-memory limiter permitting limit attempts per
// one-minute window.
func NewInMemory(limit int) *InMemory {
	return &InMemory{
		buckets: make(map[string]*memoryBucket),
		limit:   limit,
		window:  time.Minute,
	}
}

func (l *InMemory) Allow(_ context.Context, addr string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[addr]
	if !ok || now.After(b.windowEnds) {
		b = &memoryBucket{count: 0, windowEnds: now.Add(l.window)}
		l.buckets[addr] = b
	}

	b.count++
	return b.count <= l.limit, nil
}

// Redis is a sliding-window-by-TTL per-IP limiter backed by an external
// key-value store, so multiple Server processes share one limit. It uses
// INCR+EXPIRE rather than a true sliding log: the window resets on the
// first attempt seen per key, matching spec §4.6's "Counts expire by TTL
// and do not require sweeping".
type Redis struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedis builds a Redis-backed limiter.
func NewRedis(url string, limit int) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Redis{client: redis.NewClient(opts), limit: limit, window: time.Minute}, nil
}

func (l *Redis) Allow(ctx context.Context, addr string) (bool, error) {
	key := "wireterm:ratelimit:" + addr
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("redis expire: %w", err)
		}
	}
	return count <= int64(l.limit), nil
}

func (l *Redis) Close() error { return l.client.Close() }

// New selects a Limiter based on configuration: Redis if redisURL is set and
// limitPerMinute > 0, otherwise disabled. Per spec §4.6, an absent redisURL
// means auth attempts are unthrottled regardless of limitPerMinute — there
// is no single-process fallback.
func New(redisURL string, limitPerMinute int) (Limiter, error) {
	if limitPerMinute <= 0 || redisURL == "" {
		return Disabled{}, nil
	}
	return NewRedis(redisURL, limitPerMinute)
}
