package dto

import (
	"time"

	"tenant-provisioner/internal/application/lifecycle"
	"tenant-provisioner/internal/domain/entity"
)

// CreateTenantRequest 创建公司请求
type CreateTenantRequest struct {
	CompanyName    string   `json:"company_name" binding:"required"`
	Subdomain      string   `json:"subdomain" binding:"required"`
	SubscriptionID string   `json:"subscription_id"`
	AdminEmail     string   `json:"admin_email" binding:"omitempty,email"`
	AdminPassword  string   `json:"admin_password"`
	Modules        []string `json:"modules"`
	Currency       string   `json:"currency"`
	Country        string   `json:"country"`
}

// ToInput 转换为应用层输入
func (r *CreateTenantRequest) ToInput(customerID, customerEmail string) lifecycle.CreateInput {
	return lifecycle.CreateInput{
		CustomerID:     customerID,
		CustomerEmail:  customerEmail,
		Name:           r.CompanyName,
		Subdomain:      r.Subdomain,
		SubscriptionID: r.SubscriptionID,
		AdminEmail:     r.AdminEmail,
		AdminPassword:  r.AdminPassword,
		Modules:        r.Modules,
		Currency:       r.Currency,
		Country:        r.Country,
	}
}

// SuspendRequest 挂起请求
type SuspendRequest struct {
	Reason string `json:"reason"`
}

// RenameSiteRequest 站点重命名请求
type RenameSiteRequest struct {
	NewSiteName string `json:"new_site_name" binding:"required"`
}

// TenantResponse 公司响应
type TenantResponse struct {
	ID                      string              `json:"company_id"`
	Name                    string              `json:"company_name"`
	Abbreviation            string              `json:"abbreviation"`
	Subdomain               string              `json:"subdomain"`
	SiteName                string              `json:"site_name"`
	SiteURL                 string              `json:"site_url"`
	CustomDomain            string              `json:"custom_domain,omitempty"`
	SubscriptionID          string              `json:"subscription_id,omitempty"`
	Modules                 []string            `json:"modules"`
	Status                  entity.TenantStatus `json:"status"`
	SiteStatus              entity.SiteStatus   `json:"site_status"`
	SuspensionReason        string              `json:"suspension_reason,omitempty"`
	ProvisioningNotes       string              `json:"provisioning_notes,omitempty"`
	ProvisioningStartedAt   *time.Time          `json:"provisioning_started_at,omitempty"`
	ProvisioningCompletedAt *time.Time          `json:"provisioning_completed_at,omitempty"`
	CreatedAt               time.Time           `json:"created_at"`
}

// ToTenantResponse 实体转换为响应
func ToTenantResponse(t *entity.Tenant) *TenantResponse {
	if t == nil {
		return nil
	}
	resp := &TenantResponse{
		ID:                      t.ID,
		Name:                    t.Name,
		Abbreviation:            t.Abbreviation,
		Subdomain:               t.Subdomain,
		SiteName:                t.SiteName,
		SiteURL:                 t.SiteURL,
		CustomDomain:            t.CustomDomain,
		Modules:                 t.Modules,
		Status:                  t.Status,
		SiteStatus:              t.SiteStatus,
		SuspensionReason:        t.SuspensionReason,
		ProvisioningNotes:       t.ProvisioningNotes,
		ProvisioningStartedAt:   t.ProvisioningStartedAt,
		ProvisioningCompletedAt: t.ProvisioningCompletedAt,
		CreatedAt:               t.CreatedAt,
	}
	if t.SubscriptionID != nil {
		resp.SubscriptionID = *t.SubscriptionID
	}
	return resp
}

// ToTenantListResponse 实体列表转换为响应
func ToTenantListResponse(tenants []*entity.Tenant) []*TenantResponse {
	out := make([]*TenantResponse, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, ToTenantResponse(t))
	}
	return out
}

// CreateTenantResponse 创建结果
type CreateTenantResponse struct {
	TenantID  string              `json:"company_id"`
	Status    entity.TenantStatus `json:"status"`
	Subdomain string              `json:"subdomain"`
	SiteURL   string              `json:"site_url"`
	Message   string              `json:"message"`
}

// TenantStatusResponse 状态与开通进度
type TenantStatusResponse struct {
	*TenantResponse
	Progress *entity.ProvisioningProgress `json:"progress,omitempty"`
	Warnings []string                     `json:"warnings,omitempty"`
}

// ToTenantStatusResponse 状态视图转换为响应
func ToTenantStatusResponse(v *lifecycle.StatusView) *TenantStatusResponse {
	return &TenantStatusResponse{
		TenantResponse: ToTenantResponse(v.Tenant),
		Progress:       v.Progress,
		Warnings:       v.Warnings,
	}
}
