// Package ratelimit throttles expensive per-user operations with Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Policy allows Limit hits per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// RedisLimiter is a fixed-window counter stored in Redis. Each window gets its
// own key so counters expire on their own.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	policy Policy
	now    func() time.Time
}

// NewRedisLimiter constructs a RedisLimiter. prefix defaults to "rl".
func NewRedisLimiter(client redis.UniversalClient, prefix string, policy Policy) *RedisLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	if policy.Limit <= 0 {
		policy.Limit = 1
	}
	if policy.Window <= 0 {
		policy.Window = time.Minute
	}
	return &RedisLimiter{client: client, prefix: prefix, policy: policy, now: time.Now}
}

// Allow increments the caller's counter for the current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l.client == nil {
		return Decision{}, errors.New("redis client is nil")
	}
	if key == "" {
		key = "unknown"
	}

	now := l.now()
	windowMS := l.policy.Window.Milliseconds()
	if windowMS <= 0 {
		windowMS = 1
	}
	slot := now.UnixMilli() / windowMS
	storeKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, storeKey)
		pipe.PExpire(ctx, storeKey, l.policy.Window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}

	count := incr.Val()
	windowEnd := time.UnixMilli((slot + 1) * windowMS)
	retry := windowEnd.Sub(now)
	if retry <= 0 {
		retry = time.Millisecond
	}
	return Decision{
		Allowed:    count <= int64(l.policy.Limit),
		Remaining:  max(l.policy.Limit-int(count), 0),
		RetryAfter: retry,
	}, nil
}
