package router

import (
	"tenant-provisioner/internal/interfaces/http/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h *Handlers) {
	// 子域名
	domains := v1.Group("/domains")
	{
		domains.GET("/base", h.Domain.BaseDomain)
		domains.GET("/check", h.Domain.Check)
		domains.GET("/suggest", h.Domain.Suggest)
	}

	// 公司生命周期
	tenants := v1.Group("/tenants")
	{
		tenants.POST("", h.Tenant.Create)
		tenants.GET("", h.Tenant.List)
		tenants.GET("/:id", h.Tenant.Get)
		tenants.DELETE("/:id", h.Tenant.Delete)
		tenants.GET("/:id/credentials", h.Tenant.Credentials)
		tenants.POST("/:id/retry", h.Tenant.Retry)
		tenants.POST("/:id/suspend", middleware.RequireAdmin(), h.Tenant.Suspend)
		tenants.POST("/:id/reactivate", h.Tenant.Reactivate)
		tenants.PUT("/:id/site", h.Tenant.RenameSite)

		// 自定义域名与站点状态
		tenants.PUT("/:id/domain", h.Site.SetDomain)
		tenants.DELETE("/:id/domain", h.Site.RemoveDomain)
		tenants.POST("/:id/domain/verify", h.Site.VerifyDomain)
		tenants.GET("/:id/health", h.Site.Health)
		tenants.GET("/:id/metrics", h.Site.Metrics)

		// 备份
		tenants.POST("/:id/backups", h.Backup.Create)
		tenants.GET("/:id/backups", h.Backup.List)
		tenants.POST("/:id/backups/:bid/restore", h.Backup.Restore)

		// 应用
		tenants.GET("/:id/apps", h.Module.ListApps)
		tenants.POST("/:id/apps/:app", h.Module.Install)
		tenants.PUT("/:id/apps/:app", h.Module.Update)
		tenants.DELETE("/:id/apps/:app", h.Module.Uninstall)
	}

	// 任务
	jobs := v1.Group("/jobs")
	{
		jobs.GET("/:jid", h.Module.GetJob)
	}

	// 运维
	admin := v1.Group("/admin", middleware.RequireAdmin())
	{
		admin.POST("/subscriptions/:sid/enforce", h.Admin.EnforceSubscription)
	}
}
