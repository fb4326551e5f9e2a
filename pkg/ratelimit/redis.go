package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a fixed window limiter shared by every API replica.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewRedis builds a limiter storing counters under prefix in Redis.
func NewRedis(client *redis.Client, prefix string, limit int, window time.Duration) *Redis {
	limit, window = normalise(limit, window)
	return &Redis{client: client, prefix: prefix, limit: limit, window: window}
}

// Allow increments the counter for key and reads its remaining window in one
// MULTI/EXEC. A counter without an expiry (first hit, or one whose PEXPIRE was
// lost) gets the window armed before the decision is made.
func (r *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := r.prefix + key

	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	if _, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pttl = pipe.PTTL(ctx, redisKey)
		return nil
	}); err != nil {
		return true, 0, fmt.Errorf("redis incr %s: %w", redisKey, err)
	}

	count := incr.Val()
	ttl := pttl.Val()
	if ttl < 0 {
		if err := r.client.PExpire(ctx, redisKey, r.window).Err(); err != nil {
			return true, 0, fmt.Errorf("redis pexpire %s: %w", redisKey, err)
		}
		ttl = r.window
	}
	if count <= int64(r.limit) {
		return true, 0, nil
	}

	if ttl < time.Second {
		ttl = time.Second
	}
	return false, ttl, nil
}
