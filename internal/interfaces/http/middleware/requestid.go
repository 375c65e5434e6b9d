package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tenant-provisioner/pkg/logger"
)

// RequestIDHeader 请求 ID 头
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength 客户端传入的请求 ID 超长时重新生成
const maxRequestIDLength = 64

// RequestID 注入请求 ID；同一 ID 会随任务消息写入元数据，便于串联 worker 日志
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}

		c.Set("request_id", id)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), logger.RequestIDKey, id))
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}
