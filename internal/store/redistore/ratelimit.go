package redistore

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/predictify/marketengine/internal/domain"
)

//go:embed sliding_window.lua
var slidingWindowScript string

// RateLimiter implements domain.RateLimiter as a Redis sorted-set sliding
// window: each call records the current timestamp as a member and trims
// members older than the window before counting, giving an exact (not
// bucketed) rolling count per key.
type RateLimiter struct {
	rdb    *redis.Client
	script *redis.Script
}

// NewRateLimiter wraps an already-connected go-redis client.
func NewRateLimiter(rdb *redis.Client) *RateLimiter {
	return &RateLimiter{rdb: rdb, script: redis.NewScript(slidingWindowScript)}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// Allow reports whether one more request under key is permitted within the
// last window, given at most limit requests may occur in any rolling
// window-length interval.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now().UnixMilli()
	windowMillis := window.Milliseconds()

	res, err := r.script.Run(ctx, r.rdb, []string{"ratelimit:" + key}, now, windowMillis, limit).Result()
	if err != nil {
		return false, fmt.Errorf("redistore: rate limit %s: %w", key, err)
	}

	allowed, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("redistore: rate limit %s: unexpected script result %T", key, res)
	}
	return allowed == 1, nil
}
