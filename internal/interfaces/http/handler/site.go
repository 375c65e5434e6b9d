package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"tenant-provisioner/internal/application/lifecycle"
	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/interfaces/http/dto"
)

// CustomDomains 自定义域名管理
type CustomDomains interface {
	Set(ctx context.Context, tenant *entity.Tenant, domain string) ([]lifecycle.DNSRecord, error)
	Verify(ctx context.Context, tenant *entity.Tenant) (*lifecycle.DomainVerification, error)
	Remove(ctx context.Context, tenant *entity.Tenant) error
}

// SiteInspector 站点健康与资源
type SiteInspector interface {
	Health(ctx context.Context, tenant *entity.Tenant) (*lifecycle.SiteHealth, error)
	Metrics(ctx context.Context, tenant *entity.Tenant) (*lifecycle.SiteMetrics, error)
}

// SiteHandler 站点域名与健康处理器
type SiteHandler struct {
	tenants   TenantService
	domains   CustomDomains
	inspector SiteInspector
}

// NewSiteHandler 创建站点处理器
func NewSiteHandler(tenants TenantService, domains CustomDomains, inspector SiteInspector) *SiteHandler {
	return &SiteHandler{tenants: tenants, domains: domains, inspector: inspector}
}

func (h *SiteHandler) authorized(c *gin.Context) (*entity.Tenant, bool) {
	tenant, err := h.tenants.Authorize(c.Request.Context(), actorFrom(c), dto.BindTenantID(c))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return tenant, true
}

// SetDomain 绑定自定义域名，返回需要配置的 DNS 记录
func (h *SiteHandler) SetDomain(c *gin.Context) {
	var req dto.CustomDomainRequest
	if !bindJSON(c, &req) {
		return
	}
	tenant, ok := h.authorized(c)
	if !ok {
		return
	}
	records, err := h.domains.Set(c.Request.Context(), tenant, req.Domain)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, gin.H{
		"domain":      tenant.CustomDomain,
		"dns_records": records,
		"message":     "Domain set. Configure the DNS records, then verify.",
	})
}

// VerifyDomain 检查自定义域名解析
func (h *SiteHandler) VerifyDomain(c *gin.Context) {
	tenant, ok := h.authorized(c)
	if !ok {
		return
	}
	res, err := h.domains.Verify(c.Request.Context(), tenant)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, res)
}

// RemoveDomain 解绑自定义域名
func (h *SiteHandler) RemoveDomain(c *gin.Context) {
	tenant, ok := h.authorized(c)
	if !ok {
		return
	}
	if err := h.domains.Remove(c.Request.Context(), tenant); err != nil {
		respondError(c, err)
		return
	}
	dto.NoContent(c)
}

// Health 站点健康检查
func (h *SiteHandler) Health(c *gin.Context) {
	tenant, ok := h.authorized(c)
	if !ok {
		return
	}
	res, err := h.inspector.Health(c.Request.Context(), tenant)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, res)
}

// Metrics 站点资源占用
func (h *SiteHandler) Metrics(c *gin.Context) {
	tenant, ok := h.authorized(c)
	if !ok {
		return
	}
	res, err := h.inspector.Metrics(c.Request.Context(), tenant)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, res)
}
