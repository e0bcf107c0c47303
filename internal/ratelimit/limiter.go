package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "shipyard:rate_limit"

// RedisLimiter allows one action per subject within a fixed window using SETNX.
type RedisLimiter struct {
	client *redis.Client
	window time.Duration
}

// NewRedisLimiter builds a limiter. A nil client allows every action.
func NewRedisLimiter(client *redis.Client, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, window: window}
}

// Connect dials Redis at address.
func Connect(ctx context.Context, address string, window time.Duration) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: address})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ratelimit: ping redis: %w", err)
	}
	return NewRedisLimiter(client, window), nil
}

// Allow reports whether subject may perform action now, locking it for the window when it may.
func (l *RedisLimiter) Allow(ctx context.Context, subject string, action string) (bool, error) {
	if l == nil || l.client == nil || l.window <= 0 {
		return true, nil
	}
	wasSet, err := l.client.SetNX(ctx, key(subject, action), "locked", l.window).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: check: %w", err)
	}
	return wasSet, nil
}

// RetryAfter reports how long subject must wait before action is allowed again.
func (l *RedisLimiter) RetryAfter(ctx context.Context, subject string, action string) (time.Duration, error) {
	if l == nil || l.client == nil {
		return 0, nil
	}
	ttl, err := l.client.TTL(ctx, key(subject, action)).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: ttl: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Close releases the Redis connection.
func (l *RedisLimiter) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}

func key(subject string, action string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, action, subject)
}
