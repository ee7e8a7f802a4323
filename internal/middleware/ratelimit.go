package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"voyago/config"
	"voyago/internal/domain"
)

// RateLimiter implements a sliding-window counter over a Redis sorted set.
// Each request adds a member scored by its nanosecond timestamp; entries
// older than the window are pruned on every call, and the remaining
// cardinality is compared against the caller's tier quota. Rejected
// requests still consume quota.
type RateLimiter struct {
	rdb    *redis.Client
	cfg    *config.RateLimitConfig
	logger *zap.Logger

	now   func() time.Time
	nonce func() string
}

func NewRateLimiter(rdb *redis.Client, cfg *config.RateLimitConfig, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:    rdb,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		nonce:  uuid.NewString,
	}
}

// Allow records the request under key and reports whether it fits the quota,
// along with the remaining quota and the window reset time.
func (l *RateLimiter) Allow(ctx context.Context, key string, quota int) (bool, int, time.Time, error) {
	now := l.now()
	windowStart := now.Add(-l.cfg.Window)
	resetAt := now.Add(l.cfg.Window)

	var countCmd *redis.IntCmd
	_, err := l.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart.UnixNano(), 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: l.nonce()})
		countCmd = pipe.ZCard(ctx, key)
		pipe.Expire(ctx, key, l.cfg.Window)
		return nil
	})
	if err != nil {
		return false, 0, resetAt, err
	}

	count := int(countCmd.Val())
	remaining := quota - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= quota, remaining, resetAt, nil
}

// RateLimit limits by authenticated user (tier quota) when placed after
// AuthRequired, and by client IP (FREE quota) otherwise. Store errors fail
// open with the configured default quota.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limiter.cfg.Disabled {
			c.Next()
			return
		}

		key := "ratelimit:ip:" + c.ClientIP()
		tier := GetTier(c)
		if userID := GetUserID(c); userID != 0 {
			key = fmt.Sprintf("ratelimit:user:%d", userID)
		}
		quota := domain.QuotaForTier(tier)

		allowed, remaining, resetAt, err := limiter.Allow(c.Request.Context(), key, quota)
		if err != nil {
			limiter.logger.Warn("rate limiter store error, failing open",
				zap.String("key", key), zap.Error(err))
			setRateHeaders(c, limiter.cfg.FailOpenQuota, limiter.cfg.FailOpenQuota, resetAt)
			c.Next()
			return
		}

		setRateHeaders(c, quota, remaining, resetAt)
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":    "rate limit exceeded",
				"reset_at": resetAt.Unix(),
			})
			return
		}
		c.Next()
	}
}

func setRateHeaders(c *gin.Context, limit, remaining int, resetAt time.Time) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}
