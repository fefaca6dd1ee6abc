package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter enforces a per-client request budget using a fixed
// one-minute window counter in Redis.
type RateLimiter struct {
	client *redis.Client
	limit  int
	logger *zap.Logger
}

func NewRateLimiter(client *redis.Client, perMinute int, logger *zap.Logger) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &RateLimiter{
		client: client,
		limit:  perMinute,
		logger: logger.Named("ratelimit"),
	}
}

// Middleware rejects requests over the per-minute budget with 429.
// Redis failures fail open so a cache outage never blocks trading.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := fmt.Sprintf("ratelimit:%s:%d", c.ClientIP(), time.Now().Unix()/60)

		count, err := rl.client.Incr(ctx, key).Result()
		if err != nil {
			rl.logger.Warn("rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			rl.client.Expire(ctx, key, time.Minute)
		}
		if count > int64(rl.limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, retry in a minute",
			})
			return
		}
		c.Next()
	}
}
