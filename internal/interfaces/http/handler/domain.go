package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"tenant-provisioner/internal/application/namespace"
	"tenant-provisioner/internal/interfaces/http/dto"
)

// SubdomainAllocator 子域名查询能力
type SubdomainAllocator interface {
	BaseDomain() string
	MaxLength() int
	Check(ctx context.Context, candidate string) (*namespace.CheckResult, error)
	SuggestForName(ctx context.Context, businessName string, count int) (string, []namespace.Suggestion, error)
}

// DomainHandler 子域名处理器
type DomainHandler struct {
	allocator SubdomainAllocator
}

// NewDomainHandler 创建子域名处理器
func NewDomainHandler(allocator SubdomainAllocator) *DomainHandler {
	return &DomainHandler{allocator: allocator}
}

// BaseDomain 返回平台主域名
// @Summary 主域名信息
// @Tags Domains
// @Produce json
// @Success 200 {object} dto.Response[dto.BaseDomainResponse]
// @Router /v1/domains/base [get]
func (h *DomainHandler) BaseDomain(c *gin.Context) {
	dto.Success(c, &dto.BaseDomainResponse{
		BaseDomain: h.allocator.BaseDomain(),
		MaxLength:  h.allocator.MaxLength(),
	})
}

// Check 检查子域名是否可用
// @Summary 检查子域名
// @Tags Domains
// @Produce json
// @Param subdomain query string true "候选子域名"
// @Success 200 {object} dto.Response[namespace.CheckResult]
// @Router /v1/domains/check [get]
func (h *DomainHandler) Check(c *gin.Context) {
	subdomain := c.Query("subdomain")
	if subdomain == "" {
		dto.BadRequest(c, "subdomain is required")
		return
	}
	res, err := h.allocator.Check(c.Request.Context(), subdomain)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, res)
}

// Suggest 根据企业名称生成子域名建议
func (h *DomainHandler) Suggest(c *gin.Context) {
	name := c.Query("business_name")
	if name == "" {
		dto.BadRequest(c, "business_name is required")
		return
	}
	count, _ := strconv.Atoi(c.Query("count"))

	slug, suggestions, err := h.allocator.SuggestForName(c.Request.Context(), name, count)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, &dto.SuggestResponse{
		BusinessName: name,
		BaseSlug:     slug,
		Suggestions:  suggestions,
	})
}
