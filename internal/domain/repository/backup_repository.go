package repository

import (
	"context"

	"tenant-provisioner/internal/domain/entity"
)

// BackupRepository 备份记录仓储接口
type BackupRepository interface {
	Create(ctx context.Context, backup *entity.Backup) error
	GetByID(ctx context.Context, id string) (*entity.Backup, error)
	Update(ctx context.Context, backup *entity.Backup) error
	ListByTenant(ctx context.Context, tenantID string, pagination Pagination) (*PagedResult[*entity.Backup], error)
	DeleteByTenant(ctx context.Context, tenantID string) error
}
