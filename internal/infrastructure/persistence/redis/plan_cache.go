package redis

import (
	"context"
	"time"

	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/repository"
	"tenant-provisioner/pkg/logger"
)

const planCacheTTL = 10 * time.Minute

// CachedPlanRepository 套餐读缓存，套餐很少变更
type CachedPlanRepository struct {
	next  repository.PlanRepository
	cache *Cache
}

// NewCachedPlanRepository 创建带缓存的套餐仓储
func NewCachedPlanRepository(next repository.PlanRepository, cache *Cache) *CachedPlanRepository {
	return &CachedPlanRepository{next: next, cache: cache}
}

func planKey(id string) string {
	return "plan:" + id
}

// GetByID 先查缓存，缓存故障时回源
func (r *CachedPlanRepository) GetByID(ctx context.Context, id string) (*entity.Plan, error) {
	plan, err := LoadThrough(ctx, r.cache, planKey(id), planCacheTTL, func(ctx context.Context) (*entity.Plan, error) {
		return r.next.GetByID(ctx, id)
	})
	if err != nil {
		logger.Warn(ctx, "plan cache unavailable, falling back to database", "plan_id", id, "error", err.Error())
		return r.next.GetByID(ctx, id)
	}
	return plan, nil
}

// GetByCode 不走缓存
func (r *CachedPlanRepository) GetByCode(ctx context.Context, code string) (*entity.Plan, error) {
	return r.next.GetByCode(ctx, code)
}

// Upsert 写库后删除缓存
func (r *CachedPlanRepository) Upsert(ctx context.Context, plan *entity.Plan) error {
	if err := r.next.Upsert(ctx, plan); err != nil {
		return err
	}
	if plan.ID != "" {
		if err := r.cache.Delete(ctx, planKey(plan.ID)); err != nil {
			logger.Warn(ctx, "failed to invalidate plan cache", "plan_id", plan.ID, "error", err.Error())
		}
	}
	return nil
}
