// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/repository"
)

// TenantRepository 租户仓储实现
type TenantRepository struct {
	client *Client
}

// NewTenantRepository 创建租户仓储
func NewTenantRepository(client *Client) *TenantRepository {
	return &TenantRepository{client: client}
}

func statusStrings(statuses []entity.TenantStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Create 创建租户
func (r *TenantRepository) Create(ctx context.Context, tenant *entity.Tenant) error {
	ctx, span := tracer.Start(ctx, "postgres.TenantRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repository.ErrDuplicate
		}
		span.RecordError(err)
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取租户
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*entity.Tenant, error) {
	ctx, span := tracer.Start(ctx, "postgres.TenantRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var tenant entity.Tenant
	if err := db.First(&tenant, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &tenant, nil
}

// Update 更新租户
func (r *TenantRepository) Update(ctx context.Context, tenant *entity.Tenant) error {
	ctx, span := tracer.Start(ctx, "postgres.TenantRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repository.ErrDuplicate
		}
		span.RecordError(err)
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	return nil
}

// UpdateColumns 只写入指定列，其余列保持数据库中的值
func (r *TenantRepository) UpdateColumns(ctx context.Context, tenant *entity.Tenant, columns ...string) error {
	ctx, span := tracer.Start(ctx, "postgres.TenantRepository.UpdateColumns")
	defer span.End()

	if len(columns) == 0 {
		return nil
	}
	db := getDB(ctx, r.client.db)
	if err := db.Model(tenant).Select(columns).Updates(tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repository.ErrDuplicate
		}
		span.RecordError(err)
		return fmt.Errorf("failed to update tenant columns: %w", err)
	}
	return nil
}

// Delete 物理删除租户
func (r *TenantRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.TenantRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.Tenant{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	return nil
}

// TouchLastAccessed 只更新 last_accessed_at，不改动 updated_at
func (r *TenantRepository) TouchLastAccessed(ctx context.Context, id string, at time.Time) error {
	ctx, span := tracer.Start(ctx, "postgres.TenantRepository.TouchLastAccessed")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.Tenant{}).Where("id = ?", id).UpdateColumn("last_accessed_at", at).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to touch tenant: %w", err)
	}
	return nil
}

// ListByCustomer 获取客户的租户列表
func (r *TenantRepository) ListByCustomer(ctx context.Context, customerID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Tenant], error) {
	ctx, span := tracer.Start(ctx, "postgres.TenantRepository.ListByCustomer")
	defer span.End()

	db := getDB(ctx, r.client.db).Model(&entity.Tenant{}).Where("customer_id = ?", customerID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count tenants: %w", err)
	}

	var tenants []*entity.Tenant
	if err := db.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&tenants).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	return repository.NewPagedResult(tenants, total, pagination), nil
}

// SubdomainTaken 子域名是否被占用
func (r *TenantRepository) SubdomainTaken(ctx context.Context, subdomain, excludeID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.TenantRepository.SubdomainTaken")
	defer span.End()

	q := getDB(ctx, r.client.db).Model(&entity.Tenant{}).
		Where("subdomain = ? AND status NOT IN ?", subdomain, statusStrings(entity.ReleasedStatuses))
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to check subdomain: %w", err)
	}
	return count > 0, nil
}

// CustomDomainTaken 自定义域名是否已被其他租户使用
func (r *TenantRepository) CustomDomainTaken(ctx context.Context, domain, excludeID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.TenantRepository.CustomDomainTaken")
	defer span.End()

	var count int64
	if err := getDB(ctx, r.client.db).Model(&entity.Tenant{}).
		Where("custom_domain = ? AND id <> ?", domain, excludeID).
		Count(&count).Error; err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to check custom domain: %w", err)
	}
	return count > 0, nil
}

// CountBySubscription 统计订阅下的租户数
func (r *TenantRepository) CountBySubscription(ctx context.Context, subscriptionID string, excluded []entity.TenantStatus) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.TenantRepository.CountBySubscription")
	defer span.End()

	q := getDB(ctx, r.client.db).Model(&entity.Tenant{}).Where("subscription_id = ?", subscriptionID)
	if len(excluded) > 0 {
		q = q.Where("status NOT IN ?", statusStrings(excluded))
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count tenants by subscription: %w", err)
	}
	return count, nil
}

// ListBySubscription 按创建时间升序列出租户
func (r *TenantRepository) ListBySubscription(ctx context.Context, subscriptionID string, statuses []entity.TenantStatus) ([]*entity.Tenant, error) {
	ctx, span := tracer.Start(ctx, "postgres.TenantRepository.ListBySubscription")
	defer span.End()

	var tenants []*entity.Tenant
	if err := getDB(ctx, r.client.db).
		Where("subscription_id = ? AND status IN ?", subscriptionID, statusStrings(statuses)).
		Order("created_at ASC").
		Find(&tenants).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list tenants by subscription: %w", err)
	}
	return tenants, nil
}

// ListStale 列出停滞的租户
// Provisioning 按开始时间判断，其他状态按最后更新时间判断
func (r *TenantRepository) ListStale(ctx context.Context, status entity.TenantStatus, before time.Time) ([]*entity.Tenant, error) {
	ctx, span := tracer.Start(ctx, "postgres.TenantRepository.ListStale")
	defer span.End()

	column := "updated_at"
	if status == entity.TenantStatusProvisioning {
		column = "provisioning_started_at"
	}

	var tenants []*entity.Tenant
	if err := getDB(ctx, r.client.db).
		Where("status = ? AND "+column+" < ?", string(status), before).
		Order("created_at ASC").
		Limit(100).
		Find(&tenants).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list stale tenants: %w", err)
	}
	return tenants, nil
}
