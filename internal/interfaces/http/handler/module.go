package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/interfaces/http/dto"
)

// ModuleService 站点应用安装、卸载与更新
type ModuleService interface {
	RequestInstall(ctx context.Context, tenantID, app string) (*entity.ModuleJobProgress, error)
	RequestUninstall(ctx context.Context, tenantID, app string) (*entity.ModuleJobProgress, error)
	RequestUpdate(ctx context.Context, tenantID, app string) (*entity.ModuleJobProgress, error)
	InstalledApps(ctx context.Context, tenant *entity.Tenant) ([]entity.InstalledApp, error)
	JobStatus(ctx context.Context, jobID string) (*entity.ModuleJobProgress, error)
}

type moduleRequest func(ctx context.Context, tenantID, app string) (*entity.ModuleJobProgress, error)

// ModuleHandler 应用模块处理器
type ModuleHandler struct {
	tenants TenantService
	modules ModuleService
}

// NewModuleHandler 创建应用模块处理器
func NewModuleHandler(tenants TenantService, modules ModuleService) *ModuleHandler {
	return &ModuleHandler{tenants: tenants, modules: modules}
}

// ListApps 站点已安装应用
func (h *ModuleHandler) ListApps(c *gin.Context) {
	tenant, err := h.tenants.Authorize(c.Request.Context(), actorFrom(c), dto.BindTenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	apps, err := h.modules.InstalledApps(c.Request.Context(), tenant)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, &dto.InstalledAppsResponse{SiteName: tenant.SiteName, Apps: apps})
}

// Install 安装应用
// @Summary 安装应用
// @Tags Apps
// @Produce json
// @Param id path string true "公司 ID"
// @Param app path string true "应用名"
// @Success 202 {object} dto.Response[dto.ModuleJobResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/tenants/{id}/apps/{app} [post]
func (h *ModuleHandler) Install(c *gin.Context) {
	h.request(c, h.modules.RequestInstall)
}

// Update 更新应用
func (h *ModuleHandler) Update(c *gin.Context) {
	h.request(c, h.modules.RequestUpdate)
}

// Uninstall 卸载应用
func (h *ModuleHandler) Uninstall(c *gin.Context) {
	h.request(c, h.modules.RequestUninstall)
}

func (h *ModuleHandler) request(c *gin.Context, fn moduleRequest) {
	ctx := c.Request.Context()
	id := dto.BindTenantID(c)
	if _, err := h.tenants.Authorize(ctx, actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	progress, err := fn(ctx, id, dto.BindApp(c))
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Accepted(c, dto.ToModuleJobResponse(progress))
}

// GetJob 应用任务进度，仅该公司可访问者可见
func (h *ModuleHandler) GetJob(c *gin.Context) {
	ctx := c.Request.Context()
	progress, err := h.modules.JobStatus(ctx, dto.BindJobID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := h.tenants.Authorize(ctx, actorFrom(c), progress.TenantID); err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, dto.ToModuleJobResponse(progress))
}
