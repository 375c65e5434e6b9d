package repository

import (
	"context"
	"time"

	"tenant-provisioner/internal/domain/entity"
)

// TenantRepository 租户仓储接口
type TenantRepository interface {
	// Create 创建租户，子域名冲突时返回 ErrDuplicate
	Create(ctx context.Context, tenant *entity.Tenant) error

	// GetByID 根据 ID 获取租户，不存在返回 nil
	GetByID(ctx context.Context, id string) (*entity.Tenant, error)

	// Update 更新租户
	Update(ctx context.Context, tenant *entity.Tenant) error

	// UpdateColumns 只更新指定列（列名为数据库列名）
	UpdateColumns(ctx context.Context, tenant *entity.Tenant, columns ...string) error

	// Delete 物理删除租户
	Delete(ctx context.Context, id string) error

	// TouchLastAccessed 记录最近访问时间
	TouchLastAccessed(ctx context.Context, id string, at time.Time) error

	// ListByCustomer 获取客户的租户列表
	ListByCustomer(ctx context.Context, customerID string, pagination Pagination) (*PagedResult[*entity.Tenant], error)

	// SubdomainTaken 子域名是否被未删除/未失败的租户占用
	SubdomainTaken(ctx context.Context, subdomain, excludeID string) (bool, error)

	// CustomDomainTaken 自定义域名是否已被其他租户使用
	CustomDomainTaken(ctx context.Context, domain, excludeID string) (bool, error)

	// CountBySubscription 统计订阅下状态不在 excluded 中的租户数
	CountBySubscription(ctx context.Context, subscriptionID string, excluded []entity.TenantStatus) (int64, error)

	// ListBySubscription 按创建时间升序列出订阅下指定状态的租户
	ListBySubscription(ctx context.Context, subscriptionID string, statuses []entity.TenantStatus) ([]*entity.Tenant, error)

	// ListStale 列出处于 status 且最后进展早于 before 的租户
	ListStale(ctx context.Context, status entity.TenantStatus, before time.Time) ([]*entity.Tenant, error)
}
