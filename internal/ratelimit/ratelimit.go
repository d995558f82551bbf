// Package ratelimit throttles login attempts with a fixed window per key.
//
// The Redis limiter shares its counters across API instances; the memory
// limiter is for single-instance and development setups. Both fail open:
// an unreachable Redis never locks users out.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"shopnest-backend/internal/logging"
)

type Limiter interface {
	// Allow records an attempt for key. When the window's budget is spent
	// it returns false and how long until the window resets.
	Allow(ctx context.Context, key string) (bool, time.Duration)
	// Reset forgets the attempts recorded for key.
	Reset(ctx context.Context, key string)
}

// Redis counts attempts with INCR on a key that expires with the window.
type Redis struct {
	client *redis.Client
	prefix string
	max    int
	window time.Duration
	log    logging.Logger
}

// OpenRedis parses url, connects and pings the server.
func OpenRedis(ctx context.Context, url string, max int, window time.Duration, log logging.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return NewRedis(client, max, window, log), nil
}

func NewRedis(client *redis.Client, max int, window time.Duration, log logging.Logger) *Redis {
	return &Redis{client: client, prefix: "shopnest:login:", max: max, window: window, log: log}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, time.Duration) {
	k := r.prefix + key
	n, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		r.log.Error("rate limit counter failed", map[string]interface{}{"key": key, "error": err})
		return true, 0
	}
	if n == 1 {
		if err := r.client.Expire(ctx, k, r.window).Err(); err != nil {
			r.log.Error("rate limit expiry failed", map[string]interface{}{"key": key, "error": err})
		}
	}
	if n <= int64(r.max) {
		return true, 0
	}
	ttl, err := r.client.TTL(ctx, k).Result()
	if err != nil || ttl < 0 {
		// A key without expiry would block forever.
		_ = r.client.Expire(ctx, k, r.window).Err()
		ttl = r.window
	}
	r.log.Warn("login rate limit exceeded", map[string]interface{}{"key": key, "attempts": n})
	return false, ttl
}

func (r *Redis) Reset(ctx context.Context, key string) {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		r.log.Error("rate limit reset failed", map[string]interface{}{"key": key, "error": err})
	}
}

func (r *Redis) Close() error { return r.client.Close() }

type bucket struct {
	count int
	reset time.Time
}

// Memory keeps the windows in process.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	max     int
	window  time.Duration
	now     func() time.Time
}

func NewMemory(max int, window time.Duration) *Memory {
	return &Memory{buckets: map[string]*bucket{}, max: max, window: window, now: time.Now}
}

func (m *Memory) Allow(_ context.Context, key string) (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweep(now)

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{reset: now.Add(m.window)}
		m.buckets[key] = b
	}
	b.count++
	if b.count <= m.max {
		return true, 0
	}
	return false, b.reset.Sub(now)
}

func (m *Memory) Reset(_ context.Context, key string) {
	m.mu.Lock()
	delete(m.buckets, key)
	m.mu.Unlock()
}

// sweep drops expired windows. Called with mu held.
func (m *Memory) sweep(now time.Time) {
	for k, b := range m.buckets {
		if !now.Before(b.reset) {
			delete(m.buckets, k)
		}
	}
}

// Disabled allows everything.
type Disabled struct{}

func (Disabled) Allow(context.Context, string) (bool, time.Duration) { return true, 0 }
func (Disabled) Reset(context.Context, string)                       {}
