package quota

import (
	"context"
	"fmt"
	"strings"

	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/service"
	apperrors "tenant-provisioner/pkg/errors"
	"tenant-provisioner/pkg/logger"
	"tenant-provisioner/pkg/metrics"
)

var (
	// holdingExcluded 套餐降级统计时排除的状态
	holdingExcluded = []entity.TenantStatus{entity.TenantStatusDeleted, entity.TenantStatusFailed, entity.TenantStatusSuspended}
	// holding 占用名额且可被自动挂起的状态；Draft/Queued 挂起后开通任务不再执行
	holding = []entity.TenantStatus{
		entity.TenantStatusDraft,
		entity.TenantStatusQueued,
		entity.TenantStatusProvisioning,
		entity.TenantStatusActive,
	}
)

// AutoSuspended 是否由配额规则自动挂起
func AutoSuspended(t *entity.Tenant) bool {
	return t.SuspensionReason == SuspendPlanDowngrade || strings.HasPrefix(t.SuspensionReason, suspendSubPrefix)
}

// Reconcile 按订阅当前状态调整其下租户
// 非 Active/Trial 的订阅挂起全部租户；Active 订阅先恢复自动挂起的租户，再按上限挂起多余部分
func (g *Guard) Reconcile(ctx context.Context, sub *entity.Subscription) (suspended, reactivated []string, err error) {
	switch sub.Status {
	case entity.SubscriptionStatusActive:
		reactivated, err = g.ReactivateOnRenewal(ctx, sub.ID)
		if err != nil {
			return nil, reactivated, err
		}
		suspended, err = g.EnforcePlanLimit(ctx, sub.ID)
		return suspended, reactivated, err
	case entity.SubscriptionStatusTrial:
		suspended, err = g.EnforcePlanLimit(ctx, sub.ID)
		return suspended, nil, err
	default:
		suspended, err = g.SuspendAll(ctx, sub)
		return suspended, nil, err
	}
}

// EnforcePlanLimit 套餐降级后挂起超出上限的租户，保留最早创建的
func (g *Guard) EnforcePlanLimit(ctx context.Context, subscriptionID string) ([]string, error) {
	sub, err := g.subs.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, apperrors.ErrDatabase.WithError(err)
	}
	if sub == nil {
		return nil, apperrors.ErrSubscriptionNotFound
	}
	limit, err := g.Limit(ctx, sub)
	if err != nil {
		return nil, err
	}

	tenants, err := g.tenants.ListBySubscription(ctx, sub.ID, holding)
	if err != nil {
		return nil, apperrors.ErrDatabase.WithError(err)
	}
	if len(tenants) <= limit {
		return nil, nil
	}

	var ids []string
	for idx, t := range tenants {
		if idx < limit {
			continue
		}
		if err := g.suspend(ctx, t, SuspendPlanDowngrade); err != nil {
			return ids, err
		}
		ids = append(ids, t.ID)
	}

	logger.Warn(ctx, "plan limit enforced",
		"subscription_id", sub.ID,
		"limit", limit,
		"suspended", len(ids),
	)
	return ids, nil
}

// SuspendAll 订阅失效时挂起其下全部租户
func (g *Guard) SuspendAll(ctx context.Context, sub *entity.Subscription) ([]string, error) {
	tenants, err := g.tenants.ListBySubscription(ctx, sub.ID, holding)
	if err != nil {
		return nil, apperrors.ErrDatabase.WithError(err)
	}
	reason := suspendSubPrefix + strings.ToLower(strings.ReplaceAll(string(sub.Status), " ", "_"))

	var ids []string
	for _, t := range tenants {
		if err := g.suspend(ctx, t, reason); err != nil {
			return ids, err
		}
		ids = append(ids, t.ID)
	}
	return ids, nil
}

// ReactivateOnRenewal 订阅恢复后按最早创建顺序恢复自动挂起的租户，不超过剩余名额
func (g *Guard) ReactivateOnRenewal(ctx context.Context, subscriptionID string) ([]string, error) {
	sub, err := g.subs.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, apperrors.ErrDatabase.WithError(err)
	}
	if sub == nil {
		return nil, apperrors.ErrSubscriptionNotFound
	}
	if !sub.IsActive() {
		return nil, nil
	}
	limit, err := g.Limit(ctx, sub)
	if err != nil {
		return nil, err
	}
	used, err := g.tenants.CountBySubscription(ctx, sub.ID, holdingExcluded)
	if err != nil {
		return nil, apperrors.ErrDatabase.WithError(err)
	}
	capacity := limit - int(used)
	if capacity <= 0 {
		return nil, nil
	}

	tenants, err := g.tenants.ListBySubscription(ctx, sub.ID, []entity.TenantStatus{entity.TenantStatusSuspended})
	if err != nil {
		return nil, apperrors.ErrDatabase.WithError(err)
	}

	var ids []string
	for _, t := range tenants {
		if len(ids) >= capacity {
			break
		}
		if !AutoSuspended(t) {
			continue
		}
		// 排队期间被挂起的租户没有站点，转为 Failed 由客户重试开通
		if t.SiteStatus != entity.SiteStatusActive {
			g.abandonUnprovisioned(ctx, t)
			continue
		}
		t.Status = entity.TenantStatusActive
		t.SuspensionReason = ""
		t.AppendNote("Reactivated after subscription renewal")
		if err := g.tenants.Update(ctx, t); err != nil {
			return ids, apperrors.ErrDatabase.WithError(err)
		}
		g.notify(ctx, t, service.EventTenantReactivated, nil)
		ids = append(ids, t.ID)
	}
	if len(ids) > 0 {
		logger.Info(ctx, "tenants reactivated after renewal", "subscription_id", sub.ID, "count", len(ids))
	}
	return ids, nil
}

func (g *Guard) abandonUnprovisioned(ctx context.Context, t *entity.Tenant) {
	t.Status = entity.TenantStatusFailed
	t.SuspensionReason = ""
	t.AppendNote("Error: provisioning cancelled by suspension, retry to provision")
	if err := g.tenants.Update(ctx, t); err != nil {
		logger.Warn(ctx, "failed to release unprovisioned tenant", "tenant_id", t.ID, "error", err.Error())
	}
}

func (g *Guard) suspend(ctx context.Context, t *entity.Tenant, reason string) error {
	t.Status = entity.TenantStatusSuspended
	t.SuspensionReason = reason
	t.AppendNote(fmt.Sprintf("Suspended: %s", reason))
	if err := g.tenants.Update(ctx, t); err != nil {
		return apperrors.ErrDatabase.WithError(err)
	}
	metrics.TenantsSuspended.WithLabelValues(reason).Inc()
	logger.Warn(logger.WithTenant(ctx, t.ID, t.SiteName), "tenant suspended", "reason", reason)
	g.notify(ctx, t, service.EventTenantSuspended, map[string]string{"reason": reason})
	return nil
}

func (g *Guard) notify(ctx context.Context, t *entity.Tenant, event string, data map[string]string) {
	if g.notifier == nil {
		return
	}
	if data == nil {
		data = map[string]string{}
	}
	data["company_name"] = t.Name
	data["site_url"] = t.SiteURL
	if err := g.notifier.Notify(ctx, service.Notification{
		Event:      event,
		TenantID:   t.ID,
		CustomerID: t.CustomerID,
		Data:       data,
	}); err != nil {
		logger.Warn(ctx, "notification failed", "event", event, "tenant_id", t.ID, "error", err.Error())
	}
}
