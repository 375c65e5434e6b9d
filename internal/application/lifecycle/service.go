// Package lifecycle 实现租户生命周期：创建、查询、重试、挂起/恢复、删除
package lifecycle

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"tenant-provisioner/internal/application/namespace"
	"tenant-provisioner/internal/application/quota"
	"tenant-provisioner/internal/config"
	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/repository"
	"tenant-provisioner/internal/domain/service"
	"tenant-provisioner/internal/infrastructure/bench"
	apperrors "tenant-provisioner/pkg/errors"
	"tenant-provisioner/pkg/logger"
)

// minNameLength 公司名称最短长度
const minNameLength = 3

// Service 租户生命周期服务
type Service struct {
	tx        repository.Transactor
	tenants   repository.TenantRepository
	subs      repository.SubscriptionRepository
	backups   repository.BackupRepository
	allocator *namespace.Allocator
	guard     *quota.Guard
	queue     service.JobQueue
	progress  service.ProgressStore
	runner    service.CommandRunner
	workspace service.SiteWorkspace
	notifier  service.Notifier
	cmds      bench.Commands
	cfg       *config.Config
	now       func() time.Time
}

// NewService 创建生命周期服务
func NewService(
	tx repository.Transactor,
	tenants repository.TenantRepository,
	subs repository.SubscriptionRepository,
	backups repository.BackupRepository,
	allocator *namespace.Allocator,
	guard *quota.Guard,
	queue service.JobQueue,
	progress service.ProgressStore,
	runner service.CommandRunner,
	workspace service.SiteWorkspace,
	notifier service.Notifier,
	cfg *config.Config,
) *Service {
	return &Service{
		tx:        tx,
		tenants:   tenants,
		subs:      subs,
		backups:   backups,
		allocator: allocator,
		guard:     guard,
		queue:     queue,
		progress:  progress,
		runner:    runner,
		workspace: workspace,
		notifier:  notifier,
		cmds:      bench.NewCommands(cfg.Bench.Binary),
		cfg:       cfg,
		now:       time.Now,
	}
}

// CreateInput 创建租户参数
type CreateInput struct {
	CustomerID     string
	CustomerEmail  string
	Name           string
	Subdomain      string
	SubscriptionID string
	AdminEmail     string
	AdminPassword  string
	Modules        []string
	Currency       string
	Country        string
}

// Create 校验子域名与配额后创建租户并入队开通任务
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Tenant, error) {
	slug, err := s.allocator.Validate(ctx, in.Subdomain, "")
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if len([]rune(name)) < minNameLength {
		return nil, apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("company name must be at least %d characters", minNameLength))
	}

	tenant := entity.NewTenant(in.CustomerID, name, slug, s.allocator.BaseDomain())
	tenant.AdminEmail = firstNonEmpty(in.AdminEmail, in.CustomerEmail)
	tenant.AdminPassword = in.AdminPassword
	if tenant.AdminPassword == "" {
		if tenant.AdminPassword, err = GeneratePassword(); err != nil {
			return nil, apperrors.ErrInternalError.WithError(err)
		}
	}
	tenant.Modules = normalizeModules(in.Modules, s.cfg.Provisioning.DefaultModules)
	tenant.DefaultCurrency = firstNonEmpty(in.Currency, s.cfg.Provisioning.DefaultCurrency)
	tenant.Country = firstNonEmpty(in.Country, s.cfg.Provisioning.DefaultCountry)

	// 订阅行锁持有到提交，同一订阅下的配额检查与插入串行执行
	var sub *entity.Subscription
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		if sub, err = s.guard.Reserve(txCtx, in.CustomerID, in.SubscriptionID); err != nil {
			return err
		}
		tenant.SubscriptionID = &sub.ID
		return s.tenants.Create(txCtx, tenant)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.ErrRaceCondition.WithReason("RACE_CONDITION").WithDetail(slug)
		}
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperrors.ErrDatabase.WithError(err)
	}

	ctx = logger.WithTenant(ctx, tenant.ID, tenant.SiteName)
	logger.Info(ctx, "tenant created", "customer_id", in.CustomerID, "subscription_id", sub.ID)

	if err := s.enqueueProvision(ctx, tenant, *tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}

// Retry 仅 Failed 可重试；沿用原站点名、密码与模块
func (s *Service) Retry(ctx context.Context, id string) (*entity.Tenant, error) {
	tenant, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenant.Status != entity.TenantStatusFailed {
		return nil, apperrors.ErrInvalidTransition.WithDetail(fmt.Sprintf("only Failed companies can be retried, current status %s", tenant.Status))
	}

	// Failed 已释放子域名，期间可能被其他租户占用
	if _, err := s.allocator.Validate(ctx, tenant.Subdomain, tenant.ID); err != nil {
		return nil, err
	}

	ctx = logger.WithTenant(ctx, tenant.ID, tenant.SiteName)
	prior := *tenant
	tenant.ProvisioningNotes = ""
	tenant.ProvisioningStartedAt = nil
	tenant.ProvisioningCompletedAt = nil
	if err := s.enqueueProvision(ctx, tenant, prior); err != nil {
		return nil, err
	}
	logger.Info(ctx, "provisioning retry queued")
	return tenant, nil
}

// Resubmit 重新投递停留在 Queued 的开通任务（任务消息丢失时由定时清理调用）
func (s *Service) Resubmit(ctx context.Context, id string) error {
	tenant, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if tenant.Status != entity.TenantStatusQueued {
		return nil
	}
	logger.Info(ctx, "resubmitting queued provisioning", "tenant_id", tenant.ID)
	return s.enqueueProvision(ctx, tenant, *tenant)
}

// enqueueProvision 置为 Queued 并入队；入队失败标记 Failed
// 已有开通任务在执行时恢复 prior 中的状态与备注，请求被拒绝但租户不变
func (s *Service) enqueueProvision(ctx context.Context, tenant *entity.Tenant, prior entity.Tenant) error {
	tenant.Status = entity.TenantStatusQueued
	tenant.SiteStatus = entity.SiteStatusQueued
	if err := s.tenants.Update(ctx, tenant); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return apperrors.ErrRaceCondition.WithReason("RACE_CONDITION").WithDetail(tenant.Subdomain)
		}
		return apperrors.ErrDatabase.WithError(err)
	}

	_, err := s.queue.Enqueue(ctx, service.Job{
		Type:     service.JobProvision,
		TenantID: tenant.ID,
		DedupKey: service.DedupKey(service.DedupProvision, tenant.ID),
		Timeout:  service.ProvisionTimeout(s.cfg.Bench.LongTimeout, len(tenant.Modules)),
		Payload: service.ProvisionPayload{
			TenantID:      tenant.ID,
			SiteName:      tenant.SiteName,
			AdminPassword: tenant.AdminPassword,
			AdminEmail:    tenant.AdminEmail,
			Modules:       tenant.Modules,
		},
	})
	if errors.Is(err, service.ErrDuplicateJob) {
		s.restore(ctx, tenant, &prior)
		return apperrors.ErrJobInProgress.WithDetail("provisioning is already running for this company")
	}
	if err != nil {
		tenant.Status = entity.TenantStatusFailed
		tenant.AppendNote("Queue error: " + err.Error())
		if uerr := s.tenants.Update(ctx, tenant); uerr != nil {
			logger.Error(ctx, "failed to mark tenant failed after enqueue error", uerr)
		}
		return apperrors.ErrQueue.WithError(err)
	}
	s.report(ctx, tenant.ID)
	return nil
}

// restore 撤销 enqueueProvision 对开通字段的修改
func (s *Service) restore(ctx context.Context, tenant, prior *entity.Tenant) {
	tenant.Status = prior.Status
	tenant.SiteStatus = prior.SiteStatus
	tenant.ProvisioningNotes = prior.ProvisioningNotes
	tenant.ProvisioningStartedAt = prior.ProvisioningStartedAt
	tenant.ProvisioningCompletedAt = prior.ProvisioningCompletedAt
	if err := s.tenants.Update(ctx, tenant); err != nil {
		logger.Error(ctx, "failed to restore tenant after duplicate job", err, "status", string(prior.Status))
	}
}

// report 写入初始排队进度
func (s *Service) report(ctx context.Context, tenantID string) {
	err := s.progress.SetProvisioning(ctx, &entity.ProvisioningProgress{
		TenantID:    tenantID,
		Status:      "queued",
		Steps:       entity.ProvisioningSteps,
		CurrentStep: entity.StepCreateSite,
	})
	if err != nil {
		logger.Warn(ctx, "failed to write provisioning progress", "error", err.Error())
	}
}

// load 读取租户，不存在返回 ErrTenantNotFound
func (s *Service) load(ctx context.Context, id string) (*entity.Tenant, error) {
	tenant, err := s.tenants.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.ErrDatabase.WithError(err)
	}
	if tenant == nil {
		return nil, apperrors.ErrTenantNotFound
	}
	return tenant, nil
}

// GeneratePassword 16 字节随机数的 URL 安全编码
func GeneratePassword() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func normalizeModules(requested, defaults []string) []string {
	seen := make(map[string]struct{}, len(requested))
	out := make([]string, 0, len(requested))
	for _, m := range requested {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	if len(out) == 0 {
		if len(defaults) == 0 {
			return []string{"erpnext"}
		}
		return append([]string(nil), defaults...)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
