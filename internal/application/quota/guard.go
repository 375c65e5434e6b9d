// Package quota 提供订阅解析与公司数量配额控制
package quota

import (
	"context"
	"fmt"
	"time"

	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/service"
	apperrors "tenant-provisioner/pkg/errors"
	"tenant-provisioner/pkg/metrics"
)

// 订阅/配额拒绝原因
const (
	ReasonSubscriptionNotFound = "subscription_not_found"
	ReasonSubscriptionMismatch = "subscription_mismatch"
	ReasonSubscriptionInactive = "subscription_inactive"
	ReasonNoActiveSubscription = "no_active_subscription"
	ReasonQuotaExceeded        = "quota_exceeded"
)

// 自动挂起原因
const (
	SuspendPlanDowngrade = "plan_downgrade"
	suspendSubPrefix     = "subscription_"
)

// SubscriptionReader 订阅查询
type SubscriptionReader interface {
	GetByID(ctx context.Context, id string) (*entity.Subscription, error)
	LatestActiveByCustomer(ctx context.Context, customerID string) (*entity.Subscription, error)
	LockForUpdate(ctx context.Context, id string) error
}

// PlanReader 套餐查询
type PlanReader interface {
	GetByID(ctx context.Context, id string) (*entity.Plan, error)
}

// TenantStore 配额统计与挂起所需的租户操作
type TenantStore interface {
	CountBySubscription(ctx context.Context, subscriptionID string, excluded []entity.TenantStatus) (int64, error)
	ListBySubscription(ctx context.Context, subscriptionID string, statuses []entity.TenantStatus) ([]*entity.Tenant, error)
	Update(ctx context.Context, tenant *entity.Tenant) error
}

// Guard 配额守卫
type Guard struct {
	subs     SubscriptionReader
	plans    PlanReader
	tenants  TenantStore
	notifier service.Notifier
	now      func() time.Time
}

// NewGuard 创建配额守卫
func NewGuard(subs SubscriptionReader, plans PlanReader, tenants TenantStore, notifier service.Notifier) *Guard {
	return &Guard{
		subs:     subs,
		plans:    plans,
		tenants:  tenants,
		notifier: notifier,
		now:      time.Now,
	}
}

func reject(base *apperrors.AppError, reason, detail string) error {
	metrics.QuotaRejections.WithLabelValues(reason).Inc()
	return base.WithReason(reason).WithDetail(detail)
}

// Resolve 解析本次开通使用的订阅
// 显式指定的订阅必须属于该客户且处于 Active；未指定时取最新的 Active 订阅
func (g *Guard) Resolve(ctx context.Context, customerID, subscriptionID string) (*entity.Subscription, error) {
	if subscriptionID != "" {
		sub, err := g.subs.GetByID(ctx, subscriptionID)
		if err != nil {
			return nil, apperrors.ErrDatabase.WithError(err)
		}
		if sub == nil {
			return nil, reject(apperrors.ErrSubscriptionNotFound, ReasonSubscriptionNotFound, "Subscription not found.")
		}
		if sub.CustomerID != customerID {
			return nil, reject(apperrors.ErrSubscriptionInvalid, ReasonSubscriptionMismatch, "Subscription does not belong to the current customer.")
		}
		if !sub.IsActive() {
			return nil, reject(apperrors.ErrSubscriptionInvalid, ReasonSubscriptionInactive,
				fmt.Sprintf("Subscription is not active (status: %s).", sub.Status))
		}
		return sub, nil
	}

	sub, err := g.subs.LatestActiveByCustomer(ctx, customerID)
	if err != nil {
		return nil, apperrors.ErrDatabase.WithError(err)
	}
	if sub == nil {
		return nil, reject(apperrors.ErrSubscriptionInvalid, ReasonNoActiveSubscription,
			"No active subscription found. Please subscribe to a plan first.")
	}
	return sub, nil
}

// Limit 订阅对应套餐的公司上限
func (g *Guard) Limit(ctx context.Context, sub *entity.Subscription) (int, error) {
	plan, err := g.plans.GetByID(ctx, sub.PlanID)
	if err != nil {
		return 0, apperrors.ErrDatabase.WithError(err)
	}
	return plan.CompanyLimit(), nil
}

// Check 检查订阅下是否还能新建公司
func (g *Guard) Check(ctx context.Context, sub *entity.Subscription) error {
	limit, err := g.Limit(ctx, sub)
	if err != nil {
		return err
	}
	count, err := g.tenants.CountBySubscription(ctx, sub.ID, entity.ReleasedStatuses)
	if err != nil {
		return apperrors.ErrDatabase.WithError(err)
	}
	if count >= int64(limit) {
		return reject(apperrors.ErrQuotaExceeded, ReasonQuotaExceeded,
			fmt.Sprintf("Company limit reached. Your plan allows %d companies and you have %d.", limit, count))
	}
	return nil
}

// Reserve 解析订阅、锁定订阅行并检查配额
// 须在事务内调用，且与租户创建处于同一事务，锁持有到提交
func (g *Guard) Reserve(ctx context.Context, customerID, subscriptionID string) (*entity.Subscription, error) {
	sub, err := g.Resolve(ctx, customerID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := g.subs.LockForUpdate(ctx, sub.ID); err != nil {
		return nil, apperrors.ErrDatabase.WithError(err)
	}
	if err := g.Check(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Usage 返回已用数量与上限
func (g *Guard) Usage(ctx context.Context, sub *entity.Subscription) (used int64, limit int, err error) {
	limit, err = g.Limit(ctx, sub)
	if err != nil {
		return 0, 0, err
	}
	used, err = g.tenants.CountBySubscription(ctx, sub.ID, entity.ReleasedStatuses)
	if err != nil {
		return 0, limit, apperrors.ErrDatabase.WithError(err)
	}
	return used, limit, nil
}
