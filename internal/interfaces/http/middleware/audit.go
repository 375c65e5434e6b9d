package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"tenant-provisioner/internal/infrastructure/messaging"
	"tenant-provisioner/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AuditPublisher 审计日志发布
type AuditPublisher interface {
	PublishAuditLog(ctx context.Context, log *messaging.AuditLogMessage) (string, error)
}

// AuditConfig 审计配置
type AuditConfig struct {
	// Enabled 是否启用审计
	Enabled bool
	// SkipPaths 跳过审计的路径
	SkipPaths []string
}

// Audit 审计中间件：写操作发布到审计流，所有请求记日志
func Audit(cfg AuditConfig, publisher AuditPublisher) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	skipMap := make(map[string]bool)
	for _, path := range cfg.SkipPaths {
		skipMap[path] = true
	}

	return func(c *gin.Context) {
		if skipMap[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		ctx := c.Request.Context()
		logger.Info(ctx, "api audit",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", duration.Milliseconds(),
			"ip", c.ClientIP(),
			"customer_id", c.GetString(CtxCustomerID),
		)

		if publisher == nil || c.Request.Method == http.MethodGet {
			return
		}
		entry := &messaging.AuditLogMessage{
			TenantID:     c.Param("id"),
			CustomerID:   c.GetString(CtxCustomerID),
			Action:       c.Request.Method,
			ResourceType: resourceType(c.FullPath()),
			ResourceID:   c.Param("id"),
			Status:       c.Writer.Status(),
			RequestID:    c.GetString("request_id"),
			TraceID:      c.GetString("trace_id"),
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		}
		if _, err := publisher.PublishAuditLog(context.WithoutCancel(ctx), entry); err != nil {
			logger.Warn(ctx, "failed to publish audit log", "error", err.Error())
		}
	}
}

// resourceType 取路由模板中最后一个静态段，如 /v1/tenants/:id/backups -> backups
func resourceType(route string) string {
	parts := strings.Split(strings.Trim(route, "/"), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if p := parts[i]; p != "" && !strings.HasPrefix(p, ":") && p != "v1" {
			return p
		}
	}
	return "unknown"
}

// DefaultAuditSkipPaths 默认跳过审计的路径
var DefaultAuditSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}
