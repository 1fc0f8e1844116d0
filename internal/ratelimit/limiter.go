// internal/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"autoapply-backend/internal/common/config"
	"autoapply-backend/internal/common/logger"
	"autoapply-backend/internal/common/metrics"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is a fixed-window counter per (scope, ip, actor) kept in Redis with a TTL.
type Limiter struct {
	rdb     redis.Cmdable
	enabled bool
	limit   int
	window  time.Duration
	logger  logger.Logger
}

func New(rdb redis.Cmdable, cfg config.RateLimitConfig, log logger.Logger) *Limiter {
	l := &Limiter{
		rdb:     rdb,
		enabled: cfg.Enabled && rdb != nil,
		limit:   cfg.Limit,
		window:  time.Duration(cfg.Window) * time.Millisecond,
		logger:  log.WithFields(map[string]interface{}{"component": "ratelimit"}),
	}
	if l.limit <= 0 {
		l.limit = 10
	}
	if l.window <= 0 {
		l.window = time.Minute
	}
	return l
}

func key(scope, ip, actorID string) string {
	return fmt.Sprintf("%s%s:%s:%s", keyPrefix, scope, ip, actorID)
}

// Allow counts one request. Redis failures fail open.
func (l *Limiter) Allow(ctx context.Context, scope, ip, actorID string) (Decision, error) {
	open := Decision{Allowed: true, Remaining: l.limit}
	if !l.enabled {
		return open, nil
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	k := key(scope, ip, actorID)
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("rate limiter unavailable, allowing request", map[string]interface{}{"scope": scope, "error": err.Error()})
		return open, nil
	}
	count, ttl := incr.Val(), pttl.Val()

	// A counter without a TTL (new window, or a previous PEXPIRE that failed) gets one here.
	if ttl < 0 {
		if err := l.rdb.PExpire(ctx, k, l.window).Err(); err != nil {
			l.logger.Warn("failed to set rate limit window", map[string]interface{}{"scope": scope, "error": err.Error()})
		}
		ttl = l.window
	}

	if int(count) <= l.limit {
		return Decision{Allowed: true, Remaining: l.limit - int(count)}, nil
	}

	metrics.RateLimited.WithLabelValues(scope).Inc()
	return Decision{Allowed: false, Remaining: 0, RetryAfter: ttl}, nil
}
