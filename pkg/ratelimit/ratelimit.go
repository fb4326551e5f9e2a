// Package ratelimit throttles credential endpoints per client key.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether another hit for key fits in the current window.
// When the hit is rejected, retryAfter tells the client how long to wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

func normalise(limit int, window time.Duration) (int, time.Duration) {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return limit, window
}
