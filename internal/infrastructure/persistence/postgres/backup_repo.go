// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/repository"
)

// BackupRepository 备份记录仓储实现
type BackupRepository struct {
	client *Client
}

// NewBackupRepository 创建备份仓储
func NewBackupRepository(client *Client) *BackupRepository {
	return &BackupRepository{client: client}
}

// Create 创建备份记录
func (r *BackupRepository) Create(ctx context.Context, backup *entity.Backup) error {
	ctx, span := tracer.Start(ctx, "postgres.BackupRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(backup).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create backup: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取备份
func (r *BackupRepository) GetByID(ctx context.Context, id string) (*entity.Backup, error) {
	ctx, span := tracer.Start(ctx, "postgres.BackupRepository.GetByID")
	defer span.End()

	var backup entity.Backup
	if err := getDB(ctx, r.client.db).First(&backup, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get backup: %w", err)
	}
	return &backup, nil
}

// Update 更新备份记录
func (r *BackupRepository) Update(ctx context.Context, backup *entity.Backup) error {
	ctx, span := tracer.Start(ctx, "postgres.BackupRepository.Update")
	defer span.End()

	if err := getDB(ctx, r.client.db).Save(backup).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update backup: %w", err)
	}
	return nil
}

// ListByTenant 获取租户备份列表
func (r *BackupRepository) ListByTenant(ctx context.Context, tenantID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Backup], error) {
	ctx, span := tracer.Start(ctx, "postgres.BackupRepository.ListByTenant")
	defer span.End()

	db := getDB(ctx, r.client.db).Model(&entity.Backup{}).Where("tenant_id = ?", tenantID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count backups: %w", err)
	}

	var backups []*entity.Backup
	if err := db.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&backups).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	return repository.NewPagedResult(backups, total, pagination), nil
}

// DeleteByTenant 删除租户的全部备份记录
func (r *BackupRepository) DeleteByTenant(ctx context.Context, tenantID string) error {
	ctx, span := tracer.Start(ctx, "postgres.BackupRepository.DeleteByTenant")
	defer span.End()

	if err := getDB(ctx, r.client.db).Where("tenant_id = ?", tenantID).Delete(&entity.Backup{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete backups: %w", err)
	}
	return nil
}
