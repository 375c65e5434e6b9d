package lifecycle

import (
	"context"
	"strings"

	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/repository"
	apperrors "tenant-provisioner/pkg/errors"
	"tenant-provisioner/pkg/logger"
)

// Actor 当前调用者
type Actor struct {
	CustomerID string
	Email      string
	Admin      bool
}

// CanAccess 管理员可访问任意租户，其他人只能访问自己的
func (a Actor) CanAccess(t *entity.Tenant) bool {
	return a.Admin || t.IsOwnedBy(a.CustomerID)
}

// StatusView 租户状态及开通进度
type StatusView struct {
	Tenant   *entity.Tenant
	Progress *entity.ProvisioningProgress
	Warnings []string
}

// Credentials 站点管理员凭据
type Credentials struct {
	SiteURL  string `json:"site_url"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// siteAdminUser 站点内置管理员账号
const siteAdminUser = "Administrator"

// Authorize 读取租户并校验访问权限
func (s *Service) Authorize(ctx context.Context, actor Actor, id string) (*entity.Tenant, error) {
	tenant, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(tenant) {
		return nil, apperrors.ErrForbidden.WithDetail("you do not have access to this company")
	}
	return tenant, nil
}

// GetStatus 返回租户状态；所有者查询时刷新最近访问时间
func (s *Service) GetStatus(ctx context.Context, actor Actor, id string) (*StatusView, error) {
	tenant, err := s.Authorize(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	view := &StatusView{Tenant: tenant, Warnings: Warnings(tenant.ProvisioningNotes)}
	if tenant.Status == entity.TenantStatusQueued || tenant.Status == entity.TenantStatusProvisioning {
		progress, err := s.progress.GetProvisioning(ctx, tenant.ID)
		if err != nil {
			logger.Warn(ctx, "failed to read provisioning progress", "tenant_id", tenant.ID, "error", err.Error())
		}
		view.Progress = progress
	}

	if tenant.IsOwnedBy(actor.CustomerID) {
		now := s.now()
		if err := s.tenants.TouchLastAccessed(ctx, tenant.ID, now); err != nil {
			logger.Warn(ctx, "failed to touch tenant", "tenant_id", tenant.ID, "error", err.Error())
		} else {
			tenant.LastAccessedAt = &now
		}
	}
	return view, nil
}

// GetCredentials 仅所有者可取回管理员凭据
func (s *Service) GetCredentials(ctx context.Context, actor Actor, id string) (*Credentials, error) {
	tenant, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tenant.IsOwnedBy(actor.CustomerID) {
		return nil, apperrors.ErrForbidden.WithDetail("only the owner can view credentials")
	}
	if tenant.Status == entity.TenantStatusDraft || tenant.Status == entity.TenantStatusDeleted {
		return nil, apperrors.ErrInvalidTransition.WithDetail("credentials are not available in status " + string(tenant.Status))
	}
	return &Credentials{
		SiteURL:  tenant.SiteURL,
		Username: siteAdminUser,
		Email:    tenant.AdminEmail,
		Password: tenant.AdminPassword,
	}, nil
}

// List 列出客户的租户
func (s *Service) List(ctx context.Context, customerID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Tenant], error) {
	result, err := s.tenants.ListByCustomer(ctx, customerID, pagination)
	if err != nil {
		return nil, apperrors.ErrDatabase.WithError(err)
	}
	return result, nil
}

// Warnings 从开通备注中提取非致命失败
func Warnings(notes string) []string {
	var out []string
	for _, line := range strings.Split(notes, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "migration_failed"),
			strings.HasPrefix(line, "Company setup failed"),
			strings.HasPrefix(line, "Apps:") && strings.Contains(line, "failed"):
			out = append(out, line)
		}
	}
	return out
}
