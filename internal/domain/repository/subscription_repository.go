package repository

import (
	"context"
	"time"

	"tenant-provisioner/internal/domain/entity"
)

// SubscriptionRepository 订阅仓储接口（只读，计费系统写入）
type SubscriptionRepository interface {
	// GetByID 根据 ID 获取订阅
	GetByID(ctx context.Context, id string) (*entity.Subscription, error)

	// LatestActiveByCustomer 获取客户最新的有效订阅
	LatestActiveByCustomer(ctx context.Context, customerID string) (*entity.Subscription, error)

	// LockForUpdate 锁定订阅行直到事务结束，须在事务内调用
	LockForUpdate(ctx context.Context, id string) error

	// ListUpdatedSince 获取 since 之后变更过的订阅
	ListUpdatedSince(ctx context.Context, since time.Time) ([]*entity.Subscription, error)
}

// PlanRepository 套餐仓储接口
type PlanRepository interface {
	// GetByID 根据 ID 获取套餐
	GetByID(ctx context.Context, id string) (*entity.Plan, error)

	// GetByCode 根据编码获取套餐
	GetByCode(ctx context.Context, code string) (*entity.Plan, error)

	// Upsert 按编码新建或更新套餐
	Upsert(ctx context.Context, plan *entity.Plan) error
}
