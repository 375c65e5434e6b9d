package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"tenant-provisioner/internal/application/lifecycle"
	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/repository"
	"tenant-provisioner/internal/interfaces/http/dto"
	"tenant-provisioner/internal/interfaces/http/middleware"
)

// TenantService 租户生命周期
type TenantService interface {
	Create(ctx context.Context, in lifecycle.CreateInput) (*entity.Tenant, error)
	Authorize(ctx context.Context, actor lifecycle.Actor, id string) (*entity.Tenant, error)
	GetStatus(ctx context.Context, actor lifecycle.Actor, id string) (*lifecycle.StatusView, error)
	GetCredentials(ctx context.Context, actor lifecycle.Actor, id string) (*lifecycle.Credentials, error)
	List(ctx context.Context, customerID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Tenant], error)
	Retry(ctx context.Context, id string) (*entity.Tenant, error)
	Suspend(ctx context.Context, id, reason string) (*entity.Tenant, error)
	Reactivate(ctx context.Context, id string) (*entity.Tenant, error)
	Delete(ctx context.Context, id string, teardown bool) error
	RenameSite(ctx context.Context, id, newSiteName string) (*entity.Tenant, error)
}

// TenantHandler 租户处理器
type TenantHandler struct {
	tenants TenantService
}

// NewTenantHandler 创建租户处理器
func NewTenantHandler(tenants TenantService) *TenantHandler {
	return &TenantHandler{tenants: tenants}
}

// Create 创建公司并入队开通
// @Summary 创建公司
// @Description 校验子域名与订阅配额，创建记录后异步开通站点
// @Tags Tenants
// @Accept json
// @Produce json
// @Param body body dto.CreateTenantRequest true "公司信息"
// @Success 201 {object} dto.Response[dto.CreateTenantResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /v1/tenants [post]
func (h *TenantHandler) Create(c *gin.Context) {
	var req dto.CreateTenantRequest
	if !bindJSON(c, &req) {
		return
	}

	actor := actorFrom(c)
	tenant, err := h.tenants.Create(c.Request.Context(), req.ToInput(actor.CustomerID, actor.Email))
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Created(c, &dto.CreateTenantResponse{
		TenantID:  tenant.ID,
		Status:    tenant.Status,
		Subdomain: tenant.Subdomain,
		SiteURL:   tenant.SiteURL,
		Message:   "Your company is being set up. This usually takes a few minutes.",
	})
}

// List 当前客户的公司列表
func (h *TenantHandler) List(c *gin.Context) {
	page := dto.BindPage(c)
	customerID := c.GetString(middleware.CtxCustomerID)
	if middleware.IsAdmin(c) && c.Query("customer_id") != "" {
		customerID = c.Query("customer_id")
	}

	result, err := h.tenants.List(c.Request.Context(), customerID, page.Pagination())
	if err != nil {
		respondError(c, err)
		return
	}
	dto.SuccessWithPage(c, dto.ToTenantListResponse(result.Items), dto.NewPageMetaFrom(result))
}

// Get 公司状态与开通进度
// @Summary 查询公司状态
// @Tags Tenants
// @Produce json
// @Param id path string true "公司 ID"
// @Success 200 {object} dto.Response[dto.TenantStatusResponse]
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/tenants/{id} [get]
func (h *TenantHandler) Get(c *gin.Context) {
	view, err := h.tenants.GetStatus(c.Request.Context(), actorFrom(c), dto.BindTenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, dto.ToTenantStatusResponse(view))
}

// Credentials 站点管理员凭据，仅所有者可见
func (h *TenantHandler) Credentials(c *gin.Context) {
	creds, err := h.tenants.GetCredentials(c.Request.Context(), actorFrom(c), dto.BindTenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, creds)
}

// Retry 重试失败的开通
func (h *TenantHandler) Retry(c *gin.Context) {
	h.transition(c, func(ctx context.Context, id string) (*entity.Tenant, error) {
		return h.tenants.Retry(ctx, id)
	})
}

// Suspend 挂起（管理员）
func (h *TenantHandler) Suspend(c *gin.Context) {
	var req dto.SuspendRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	tenant, err := h.tenants.Suspend(c.Request.Context(), dto.BindTenantID(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, dto.ToTenantResponse(tenant))
}

// Reactivate 恢复挂起的公司
func (h *TenantHandler) Reactivate(c *gin.Context) {
	h.transition(c, func(ctx context.Context, id string) (*entity.Tenant, error) {
		return h.tenants.Reactivate(ctx, id)
	})
}

// RenameSite 重命名站点
func (h *TenantHandler) RenameSite(c *gin.Context) {
	var req dto.RenameSiteRequest
	if !bindJSON(c, &req) {
		return
	}
	h.transition(c, func(ctx context.Context, id string) (*entity.Tenant, error) {
		return h.tenants.RenameSite(ctx, id, req.NewSiteName)
	})
}

// Delete 删除公司，drop_site=true 时同时删除站点
// @Summary 删除公司
// @Tags Tenants
// @Param id path string true "公司 ID"
// @Param drop_site query bool false "是否删除站点"
// @Success 204
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/tenants/{id} [delete]
func (h *TenantHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	id := dto.BindTenantID(c)
	if _, err := h.tenants.Authorize(ctx, actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	teardown, _ := strconv.ParseBool(c.Query("drop_site"))
	if err := h.tenants.Delete(ctx, id, teardown); err != nil {
		respondError(c, err)
		return
	}
	dto.NoContent(c)
}

// transition 校验访问权限后执行状态变更
func (h *TenantHandler) transition(c *gin.Context, fn func(ctx context.Context, id string) (*entity.Tenant, error)) {
	ctx := c.Request.Context()
	id := dto.BindTenantID(c)
	if _, err := h.tenants.Authorize(ctx, actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	tenant, err := fn(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, dto.ToTenantResponse(tenant))
}
