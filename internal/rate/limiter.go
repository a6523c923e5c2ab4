package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule is a budget of Limit hits per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Enabled reports whether r limits anything.
func (r Rule) Enabled() bool {
	return r.Limit > 0 && r.Window > 0
}

// Limiter counts hits in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a Limiter whose keys start with prefix.
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Allow records one hit for id in namespace and returns ErrRateLimited once
// the rule's budget is spent. A disabled rule always allows.
func (l *Limiter) Allow(ctx context.Context, namespace, id string, rule Rule) error {
	if !rule.Enabled() {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.key(namespace, id), rule.Window)
	if err != nil {
		return err
	}
	if count > int64(rule.Limit) {
		return ErrRateLimited
	}
	return nil
}

// Hits returns the hits recorded for id in the current window.
func (l *Limiter) Hits(ctx context.Context, namespace, id string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(namespace, id)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Reset clears the window for id in namespace.
func (l *Limiter) Reset(ctx context.Context, namespace, id string) error {
	if err := l.redis.Del(ctx, l.key(namespace, id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(namespace, id string) string {
	return l.prefix + ":" + namespace + ":" + id
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
