package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/repository"
	"tenant-provisioner/internal/domain/service"
	apperrors "tenant-provisioner/pkg/errors"
	"tenant-provisioner/pkg/logger"
	"tenant-provisioner/pkg/metrics"
)

// Suspend Active → Suspended，记录原因
func (s *Service) Suspend(ctx context.Context, id, reason string) (*entity.Tenant, error) {
	tenant, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenant.Status == entity.TenantStatusSuspended {
		return nil, apperrors.ErrInvalidTransition.WithDetail("company is already suspended")
	}
	if tenant.Status != entity.TenantStatusActive {
		return nil, apperrors.ErrInvalidTransition.WithDetail(fmt.Sprintf("only Active companies can be suspended, current status %s", tenant.Status))
	}
	if reason == "" {
		reason = "manual"
	}

	tenant.Status = entity.TenantStatusSuspended
	tenant.SuspensionReason = reason
	if err := s.tenants.Update(ctx, tenant); err != nil {
		return nil, apperrors.ErrDatabase.WithError(err)
	}
	metrics.TenantsSuspended.WithLabelValues(reason).Inc()

	ctx = logger.WithTenant(ctx, tenant.ID, tenant.SiteName)
	logger.Info(ctx, "tenant suspended", "reason", reason)
	s.notify(ctx, tenant, service.EventTenantSuspended, map[string]string{"reason": reason})
	return tenant, nil
}

// Reactivate Suspended → Active，订阅必须仍为 Active
func (s *Service) Reactivate(ctx context.Context, id string) (*entity.Tenant, error) {
	tenant, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenant.Status != entity.TenantStatusSuspended {
		return nil, apperrors.ErrInvalidTransition.WithDetail(fmt.Sprintf("only Suspended companies can be reactivated, current status %s", tenant.Status))
	}
	if tenant.SubscriptionID == nil {
		return nil, apperrors.ErrSubscriptionInvalid.WithReason("subscription_not_found")
	}
	sub, err := s.subs.GetByID(ctx, *tenant.SubscriptionID)
	if err != nil {
		return nil, apperrors.ErrDatabase.WithError(err)
	}
	if sub == nil {
		return nil, apperrors.ErrSubscriptionInvalid.WithReason("subscription_not_found")
	}
	if !sub.IsActive() {
		return nil, apperrors.ErrSubscriptionInvalid.WithReason("subscription_inactive").
			WithDetail(fmt.Sprintf("subscription status is %s", sub.Status))
	}

	tenant.Status = entity.TenantStatusActive
	tenant.SuspensionReason = ""
	if err := s.tenants.Update(ctx, tenant); err != nil {
		return nil, apperrors.ErrDatabase.WithError(err)
	}

	ctx = logger.WithTenant(ctx, tenant.ID, tenant.SiteName)
	logger.Info(ctx, "tenant reactivated")
	s.notify(ctx, tenant, service.EventTenantReactivated, nil)
	return tenant, nil
}

// deletable 允许删除的状态；排队/开通中需先等待结束
func deletable(status entity.TenantStatus) bool {
	switch status {
	case entity.TenantStatusActive, entity.TenantStatusFailed, entity.TenantStatusSuspended, entity.TenantStatusDraft:
		return true
	}
	return false
}

// Delete 标记删除，可选拆除站点，最后物理删除记录
// 站点拆除失败只记录日志，不影响删除
func (s *Service) Delete(ctx context.Context, id string, teardown bool) error {
	tenant, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !deletable(tenant.Status) {
		return apperrors.ErrInvalidTransition.WithDetail(fmt.Sprintf("cannot delete a company in status %s", tenant.Status))
	}
	ctx = logger.WithTenant(ctx, tenant.ID, tenant.SiteName)

	if held, err := s.queue.Held(ctx, service.DedupKey(service.DedupBackupRestore, tenant.ID)); err == nil && held {
		return apperrors.ErrJobInProgress.WithDetail("a backup or restore is running for this company")
	}

	if teardown && tenant.SiteName != "" && s.workspace.SiteExists(tenant.SiteName) {
		res := s.runner.Run(ctx, s.cmds.DropSite(tenant.SiteName, s.cfg.Database.MariaDB.RootPassword), s.cfg.Bench.LongTimeout)
		if res.OK() {
			logger.Info(ctx, "site dropped")
		} else {
			logger.Warn(ctx, "site teardown failed", "error", res.ErrorText())
		}
	}

	now := s.now()
	tenant.Status = entity.TenantStatusDeleted
	tenant.SiteStatus = entity.SiteStatusDeleted
	tenant.DeletionRequestedAt = &now
	if err := s.tenants.Update(ctx, tenant); err != nil {
		return apperrors.ErrDatabase.WithError(err)
	}

	if err := s.tenants.Delete(ctx, tenant.ID); err != nil {
		// 已标记 Deleted，子域名已释放
		logger.Warn(ctx, "failed to remove tenant record", "error", err.Error())
	} else if err := s.backups.DeleteByTenant(ctx, tenant.ID); err != nil {
		logger.Warn(ctx, "failed to remove backup records", "error", err.Error())
	}
	logger.Info(ctx, "tenant deleted", "teardown", teardown)
	return nil
}

// RenameSite 修改站点名（移动站点目录），子域名保持不变
func (s *Service) RenameSite(ctx context.Context, id, newSiteName string) (*entity.Tenant, error) {
	tenant, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenant.Status != entity.TenantStatusActive {
		return nil, apperrors.ErrInvalidTransition.WithDetail("only Active companies can be renamed")
	}
	newSiteName, err = NormalizeDomain(newSiteName)
	if err != nil {
		return nil, err
	}
	if newSiteName == tenant.SiteName {
		return nil, apperrors.ErrInvalidParam.WithDetail("new site name is the same as the current one")
	}
	if s.workspace.SiteExists(newSiteName) {
		return nil, apperrors.ErrConflict.WithReason("SITE_EXISTS").WithDetail(newSiteName)
	}

	ctx = logger.WithTenant(ctx, tenant.ID, tenant.SiteName)
	old := tenant.SiteName
	tenant.SiteStatus = entity.SiteStatusRenaming
	if err := s.tenants.Update(ctx, tenant); err != nil {
		return nil, apperrors.ErrDatabase.WithError(err)
	}

	if err := s.workspace.MoveSite(old, newSiteName); err != nil {
		tenant.SiteStatus = entity.SiteStatusActive
		if uerr := s.tenants.Update(ctx, tenant); uerr != nil {
			logger.Error(ctx, "failed to revert site status", uerr)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeCommandFailed, "failed to rename site")
	}

	tenant.SiteName = newSiteName
	tenant.SiteURL = "https://" + newSiteName
	tenant.SiteStatus = entity.SiteStatusActive
	tenant.AppendNote(fmt.Sprintf("Site renamed from %s to %s on %s", old, newSiteName, s.now().Format("2006-01-02 15:04:05")))
	if err := s.tenants.Update(ctx, tenant); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.ErrConflict.WithDetail(newSiteName)
		}
		return nil, apperrors.ErrDatabase.WithError(err)
	}
	logger.Info(ctx, "site renamed", "old_site_name", old, "new_site_name", newSiteName)
	return tenant, nil
}

func (s *Service) notify(ctx context.Context, tenant *entity.Tenant, event string, data map[string]string) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, service.Notification{
		Event:      event,
		TenantID:   tenant.ID,
		CustomerID: tenant.CustomerID,
		Recipient:  tenant.AdminEmail,
		Data:       data,
	})
	if err != nil {
		logger.Warn(ctx, "notification failed", "event", event, "error", err.Error())
	}
}
