package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tenant-provisioner/internal/config"
	"tenant-provisioner/internal/infrastructure/persistence/redis"
	"tenant-provisioner/internal/interfaces/http/dto"
	"tenant-provisioner/pkg/logger"
)

// defaultRequestsPerSecond 未配置时的每秒上限
const defaultRequestsPerSecond = 100

// RateLimiter 限流器接口
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit 按客户与路由模板限流；未登录请求按来源 IP 计数。限流器故障时放行
func RateLimit(cfg config.RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}

	limit := cfg.RequestsPerSecond
	if limit <= 0 {
		limit = defaultRequestsPerSecond
	}
	limit = max(limit, cfg.Burst)

	return func(c *gin.Context) {
		caller := c.GetString(CtxCustomerID)
		if caller == "" {
			caller = "ip:" + c.ClientIP()
		}
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		ctx := c.Request.Context()
		allowed, err := limiter.Allow(ctx, redis.BuildRateLimitKey(caller, route), limit, time.Second)
		if err != nil {
			logger.Warn(ctx, "rate limiter unavailable, allowing request", "error", err.Error())
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", "1")
			c.Abort()
			dto.ErrorWithDetail(c, http.StatusTooManyRequests, "rate limit exceeded", &dto.ErrorDetail{
				Reason: "RATE_LIMITED",
			})
			return
		}

		c.Next()
	}
}
