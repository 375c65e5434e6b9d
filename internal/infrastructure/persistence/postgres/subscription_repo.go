// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"tenant-provisioner/internal/domain/entity"
)

// SubscriptionRepository 订阅仓储实现
type SubscriptionRepository struct {
	client *Client
}

// NewSubscriptionRepository 创建订阅仓储
func NewSubscriptionRepository(client *Client) *SubscriptionRepository {
	return &SubscriptionRepository{client: client}
}

// GetByID 根据 ID 获取订阅
func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*entity.Subscription, error) {
	ctx, span := tracer.Start(ctx, "postgres.SubscriptionRepository.GetByID")
	defer span.End()

	var sub entity.Subscription
	if err := getDB(ctx, r.client.db).First(&sub, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

// LatestActiveByCustomer 获取客户最新的有效订阅
func (r *SubscriptionRepository) LatestActiveByCustomer(ctx context.Context, customerID string) (*entity.Subscription, error) {
	ctx, span := tracer.Start(ctx, "postgres.SubscriptionRepository.LatestActiveByCustomer")
	defer span.End()

	var sub entity.Subscription
	err := getDB(ctx, r.client.db).
		Where("customer_id = ? AND status = ?", customerID, string(entity.SubscriptionStatusActive)).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get active subscription: %w", err)
	}
	return &sub, nil
}

// LockForUpdate SELECT ... FOR UPDATE 锁定订阅行，同一订阅下的配额检查与创建由此串行
func (r *SubscriptionRepository) LockForUpdate(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.SubscriptionRepository.LockForUpdate")
	defer span.End()

	var sub entity.Subscription
	err := getDB(ctx, r.client.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&sub, "id = ?", id).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to lock subscription: %w", err)
	}
	return nil
}

// ListUpdatedSince 获取 since 之后变更过的订阅
func (r *SubscriptionRepository) ListUpdatedSince(ctx context.Context, since time.Time) ([]*entity.Subscription, error) {
	ctx, span := tracer.Start(ctx, "postgres.SubscriptionRepository.ListUpdatedSince")
	defer span.End()

	var subs []*entity.Subscription
	if err := getDB(ctx, r.client.db).
		Where("updated_at > ?", since).
		Order("updated_at ASC").
		Find(&subs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// Save 新建或更新订阅（bootstrap 种子数据使用）
func (r *SubscriptionRepository) Save(ctx context.Context, sub *entity.Subscription) error {
	ctx, span := tracer.Start(ctx, "postgres.SubscriptionRepository.Save")
	defer span.End()

	if err := getDB(ctx, r.client.db).Save(sub).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

// PlanRepository 套餐仓储实现
type PlanRepository struct {
	client *Client
}

// NewPlanRepository 创建套餐仓储
func NewPlanRepository(client *Client) *PlanRepository {
	return &PlanRepository{client: client}
}

// GetByID 根据 ID 获取套餐
func (r *PlanRepository) GetByID(ctx context.Context, id string) (*entity.Plan, error) {
	ctx, span := tracer.Start(ctx, "postgres.PlanRepository.GetByID")
	defer span.End()

	var plan entity.Plan
	if err := getDB(ctx, r.client.db).First(&plan, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &plan, nil
}

// GetByCode 根据编码获取套餐
func (r *PlanRepository) GetByCode(ctx context.Context, code string) (*entity.Plan, error) {
	ctx, span := tracer.Start(ctx, "postgres.PlanRepository.GetByCode")
	defer span.End()

	var plan entity.Plan
	if err := getDB(ctx, r.client.db).First(&plan, "code = ?", code).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get plan by code: %w", err)
	}
	return &plan, nil
}

// Upsert 按编码新建或更新套餐
func (r *PlanRepository) Upsert(ctx context.Context, plan *entity.Plan) error {
	ctx, span := tracer.Start(ctx, "postgres.PlanRepository.Upsert")
	defer span.End()

	err := getDB(ctx, r.client.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "max_companies", "max_users", "max_storage_mb", "price", "billing_interval", "is_active", "updated_at"}),
	}).Create(plan).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert plan: %w", err)
	}
	return nil
}
