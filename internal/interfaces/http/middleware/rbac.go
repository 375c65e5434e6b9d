package middleware

import (
	"net/http"

	"tenant-provisioner/pkg/utils"

	"github.com/gin-gonic/gin"
)

// IsAdmin 当前调用者是否平台管理员
func IsAdmin(c *gin.Context) bool {
	return c.GetString(CtxRole) == utils.RoleAdmin
}

// RequireAdmin 管理员权限检查中间件
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(CtxRole) == "" {
			abortForbidden(c, "missing role in context")
			return
		}
		if !IsAdmin(c) {
			abortForbidden(c, "admin access required")
			return
		}
		c.Next()
	}
}

// abortForbidden 终止请求并返回 403
func abortForbidden(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"code":     403,
		"message":  msg,
		"trace_id": c.GetString("trace_id"),
	})
}
