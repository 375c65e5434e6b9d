// Package provisioning 实现站点开通流水线：创建站点、安装应用、初始化公司、迁移
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tenant-provisioner/internal/config"
	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/service"
	"tenant-provisioner/internal/infrastructure/bench"
	"tenant-provisioner/pkg/logger"
	"tenant-provisioner/pkg/metrics"
	"tenant-provisioner/pkg/tracer"
)

// TenantStore 流水线读写租户
type TenantStore interface {
	GetByID(ctx context.Context, id string) (*entity.Tenant, error)
	UpdateColumns(ctx context.Context, tenant *entity.Tenant, columns ...string) error
}

// 流水线只写自己维护的列；进度列不含 status，开通期间被挂起不会被覆盖
var (
	progressColumns = []string{"site_status", "db_name", "provisioning_notes"}
	stateColumns    = append([]string{
		"status", "suspension_reason", "provisioning_started_at", "provisioning_completed_at",
	}, progressColumns...)
)

// Pipeline 开通流水线
type Pipeline struct {
	tenants   TenantStore
	runner    service.CommandRunner
	workspace service.SiteWorkspace
	locks     *LockManager
	progress  service.ProgressStore
	notifier  service.Notifier
	cmds      bench.Commands
	bench     config.BenchConfig
	db        config.MariaDBConfig
	settings  config.ProvisioningConfig
	now       func() time.Time
}

// NewPipeline 创建开通流水线
func NewPipeline(
	tenants TenantStore,
	runner service.CommandRunner,
	workspace service.SiteWorkspace,
	progress service.ProgressStore,
	notifier service.Notifier,
	cfg *config.Config,
) *Pipeline {
	return &Pipeline{
		tenants:   tenants,
		runner:    runner,
		workspace: workspace,
		locks:     NewLockManager(workspace, runner, cfg.Bench.ProbeTimeout),
		progress:  progress,
		notifier:  notifier,
		cmds:      bench.NewCommands(cfg.Bench.Binary),
		bench:     cfg.Bench,
		db:        cfg.Database.MariaDB,
		settings:  cfg.Provisioning,
		now:       time.Now,
	}
}

// Run 执行开通任务
// 仅处理 Queued 状态的租户；业务失败落库后返回 nil，锁冲突返回 service.ErrRetryable
func (p *Pipeline) Run(ctx context.Context, job service.ProvisionPayload) error {
	tenant, err := p.tenants.GetByID(ctx, job.TenantID)
	if err != nil {
		return fmt.Errorf("failed to load tenant: %w", err)
	}
	if tenant == nil {
		logger.Warn(ctx, "provisioning skipped, tenant not found", "tenant_id", job.TenantID)
		return nil
	}

	siteName := job.SiteName
	if siteName == "" {
		siteName = tenant.SiteName
	}
	ctx = logger.WithTenant(ctx, tenant.ID, siteName)

	if tenant.Status != entity.TenantStatusQueued {
		logger.Info(ctx, "provisioning skipped", "status", string(tenant.Status))
		return nil
	}

	start := p.now()
	tenant.Status = entity.TenantStatusProvisioning
	tenant.SiteStatus = entity.SiteStatusCreating
	tenant.ProvisioningStartedAt = &start
	tenant.ProvisioningCompletedAt = nil
	if err := p.tenants.UpdateColumns(ctx, tenant, stateColumns...); err != nil {
		return fmt.Errorf("failed to mark provisioning: %w", err)
	}
	p.report(ctx, tenant.ID, entity.StepCreateSite, ProgressRunning, "")
	logger.Info(ctx, "provisioning started", "modules", job.Modules)

	created, err := p.createSite(ctx, tenant, siteName, job.AdminPassword)
	if errors.Is(err, ErrLockConflict) {
		return p.requeue(ctx, tenant, err)
	}
	if err != nil {
		p.fail(ctx, tenant, job, err, start)
		return nil
	}
	tenant.SiteStatus = entity.SiteStatusActive
	tenant.DBName = entity.SiteDBName(siteName)
	tenant.AppendNote("Site created: " + created)
	p.save(ctx, tenant, progressColumns)

	if len(job.Modules) > 0 {
		p.report(ctx, tenant.ID, entity.StepInstallApps, ProgressRunning, "")
		tenant.AppendNote(p.installApps(ctx, tenant, siteName, job.Modules))
		p.save(ctx, tenant, progressColumns)
	}

	if p.settings.CompanySetup && p.settings.CompanySetupMethod != "" {
		p.report(ctx, tenant.ID, entity.StepSetupCompany, ProgressRunning, "")
		if note := p.setupCompany(ctx, tenant, siteName); note != "" {
			tenant.AppendNote(note)
		}
	}

	p.report(ctx, tenant.ID, entity.StepMigrate, ProgressRunning, "")
	if note := p.migrate(ctx, tenant, siteName); note != "" {
		tenant.AppendNote(note)
	}

	p.finish(ctx, tenant, job, start)
	return nil
}

// createSite 创建站点，已安装时跳过
func (p *Pipeline) createSite(ctx context.Context, tenant *entity.Tenant, siteName, adminPassword string) (string, error) {
	ctx, span := tracer.StartStep(ctx, entity.StepCreateSite, tenant.ID, siteName)
	defer span.End()

	if p.db.RootPassword == "" {
		err := errors.New("database root password is not configured")
		tracer.RecordError(span, err)
		return "", err
	}

	if res := p.runner.Run(ctx, p.cmds.ListApps(siteName), p.bench.ProbeTimeout); res.OK() {
		logger.Info(ctx, "site already installed, creation skipped")
		return fmt.Sprintf("Site %s already exists", siteName), nil
	}

	if _, err := p.locks.Clear(ctx, siteName); err != nil {
		return "", err
	}

	for _, args := range [][]string{
		p.cmds.SetGlobalConfig("db_host", p.db.Host),
		p.cmds.SetGlobalDBPort(p.db.Port),
	} {
		if res := p.runner.Run(ctx, args, p.bench.ProbeTimeout); !res.OK() {
			err := fmt.Errorf("failed to set bench db config: %s", res.ErrorText())
			tracer.RecordError(span, err)
			return "", err
		}
	}

	res := p.runner.Run(ctx, p.cmds.NewSite(siteName, adminPassword, p.db.RootUser, p.db.RootPassword), p.bench.LongTimeout)
	if !res.OK() {
		if IsLockConflictOutput(res.Output()) {
			metrics.LockConflicts.WithLabelValues("command").Inc()
			return "", ErrLockConflict
		}
		var err error
		if res.TimedOut {
			err = fmt.Errorf("site provisioning timed out after %s", p.bench.LongTimeout)
		} else {
			err = fmt.Errorf("site provisioning failed: %s", res.ErrorText())
		}
		tracer.RecordError(span, err)
		return "", err
	}
	return fmt.Sprintf("Site %s created successfully", siteName), nil
}

// installApps 逐个安装应用，失败不中断
func (p *Pipeline) installApps(ctx context.Context, tenant *entity.Tenant, siteName string, modules []string) string {
	ctx, span := tracer.StartStep(ctx, entity.StepInstallApps, tenant.ID, siteName)
	defer span.End()

	var installed, failed []string
	for _, app := range modules {
		logger.Info(ctx, "installing app", "app", app)
		res := p.runner.Run(ctx, p.cmds.InstallApp(siteName, app), p.bench.LongTimeout)
		if res.OK() {
			installed = append(installed, app)
			continue
		}
		failed = append(failed, fmt.Sprintf("%s (%s)", app, res.ErrorText()))
		logger.Warn(ctx, "app installation failed", "app", app)
	}

	note := "Apps: installed " + strings.Join(installed, ", ")
	if len(installed) == 0 {
		note = "Apps: none installed"
	}
	if len(failed) > 0 {
		note += "; failed " + strings.Join(failed, ", ")
	}
	return note
}

// setupCompany 在站点内创建公司记录，失败只记录备注
func (p *Pipeline) setupCompany(ctx context.Context, tenant *entity.Tenant, siteName string) string {
	ctx, span := tracer.StartStep(ctx, entity.StepSetupCompany, tenant.ID, siteName)
	defer span.End()

	currency := tenant.DefaultCurrency
	if currency == "" {
		currency = p.settings.DefaultCurrency
	}
	country := tenant.Country
	if country == "" {
		country = p.settings.DefaultCountry
	}

	args, err := p.cmds.Execute(siteName, p.settings.CompanySetupMethod, map[string]string{
		"company_name":     tenant.Name,
		"company_abbr":     tenant.Abbreviation,
		"default_currency": currency,
		"country":          country,
	})
	if err != nil {
		return "Company setup failed: " + err.Error()
	}
	if res := p.runner.Run(ctx, args, p.bench.LongTimeout); !res.OK() {
		logger.Warn(ctx, "company setup failed")
		return "Company setup failed: " + res.ErrorText()
	}
	return fmt.Sprintf("Company created: %s", tenant.Name)
}

// migrate 迁移失败记为 migration_failed，不影响最终状态
func (p *Pipeline) migrate(ctx context.Context, tenant *entity.Tenant, siteName string) string {
	ctx, span := tracer.StartStep(ctx, entity.StepMigrate, tenant.ID, siteName)
	defer span.End()

	res := p.runner.Run(ctx, p.cmds.Migrate(siteName), p.bench.LongTimeout)
	if !res.OK() {
		logger.Warn(ctx, "site migration failed")
		return "migration_failed: " + res.ErrorText()
	}
	return ""
}

// finish 标记 Active 并通知客户
func (p *Pipeline) finish(ctx context.Context, tenant *entity.Tenant, job service.ProvisionPayload, start time.Time) {
	p.report(ctx, tenant.ID, entity.StepFinalize, ProgressRunning, "")

	// 开通期间被配额规则挂起的保持挂起
	status := entity.TenantStatusActive
	if current, err := p.tenants.GetByID(ctx, tenant.ID); err == nil && current != nil && current.Status == entity.TenantStatusSuspended {
		status = entity.TenantStatusSuspended
		tenant.SuspensionReason = current.SuspensionReason
	}

	done := p.now()
	tenant.Status = status
	tenant.ProvisioningCompletedAt = &done
	p.save(ctx, tenant, stateColumns)
	p.report(ctx, tenant.ID, entity.StepFinalize, ProgressCompleted, "")

	metrics.ProvisioningTotal.WithLabelValues("success").Inc()
	metrics.ProvisioningDuration.Observe(done.Sub(start).Seconds())
	logger.Info(ctx, "provisioning completed", "duration_ms", done.Sub(start).Milliseconds())

	p.notify(ctx, tenant, service.EventProvisioningSucceeded, map[string]string{
		"company_name":   tenant.Name,
		"site_url":       tenant.SiteURL,
		"admin_email":    job.AdminEmail,
		"admin_password": job.AdminPassword,
	})
}

// fail 标记失败并通知，不附带凭据
func (p *Pipeline) fail(ctx context.Context, tenant *entity.Tenant, job service.ProvisionPayload, cause error, start time.Time) {
	done := p.now()
	tenant.Status = entity.TenantStatusFailed
	tenant.ProvisioningCompletedAt = &done
	tenant.AppendNote("Error: " + cause.Error())
	p.save(ctx, tenant, stateColumns)
	p.report(ctx, tenant.ID, entity.StepCreateSite, ProgressFailed, cause.Error())

	metrics.ProvisioningTotal.WithLabelValues("failed").Inc()
	metrics.ProvisioningDuration.Observe(done.Sub(start).Seconds())
	logger.Error(ctx, "provisioning failed", cause)

	p.notify(ctx, tenant, service.EventProvisioningFailed, map[string]string{
		"company_name": tenant.Name,
		"site_url":     tenant.SiteURL,
		"error":        cause.Error(),
	})
}

// requeue 锁冲突时回到 Queued，交给消费端退避重投
func (p *Pipeline) requeue(ctx context.Context, tenant *entity.Tenant, cause error) error {
	tenant.Status = entity.TenantStatusQueued
	tenant.SiteStatus = entity.SiteStatusQueued
	tenant.AppendNote("lock conflict, retrying")
	p.save(ctx, tenant, stateColumns)
	p.report(ctx, tenant.ID, entity.StepCreateSite, ProgressRetrying, cause.Error())

	metrics.ProvisioningTotal.WithLabelValues("retry").Inc()
	logger.Warn(ctx, "provisioning deferred by lock conflict")
	return fmt.Errorf("%w: %v", service.ErrRetryable, cause)
}

// Abandon 重试耗尽后标记失败（死信回调）
func (p *Pipeline) Abandon(ctx context.Context, tenantID string, cause error) error {
	tenant, err := p.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to load tenant: %w", err)
	}
	if tenant == nil {
		return nil
	}
	if tenant.Status != entity.TenantStatusQueued && tenant.Status != entity.TenantStatusProvisioning {
		return nil
	}
	ctx = logger.WithTenant(ctx, tenant.ID, tenant.SiteName)

	reason := "lock conflict (retryable)"
	if cause != nil && !errors.Is(cause, service.ErrRetryable) {
		reason = cause.Error()
	}
	done := p.now()
	tenant.Status = entity.TenantStatusFailed
	tenant.ProvisioningCompletedAt = &done
	tenant.AppendNote("Error: " + reason)
	if err := p.tenants.UpdateColumns(ctx, tenant, stateColumns...); err != nil {
		return fmt.Errorf("failed to mark tenant failed: %w", err)
	}
	p.report(ctx, tenant.ID, entity.StepCreateSite, ProgressFailed, reason)
	metrics.ProvisioningTotal.WithLabelValues("abandoned").Inc()
	logger.Warn(ctx, "provisioning abandoned", "reason", reason)

	p.notify(ctx, tenant, service.EventProvisioningFailed, map[string]string{
		"company_name": tenant.Name,
		"site_url":     tenant.SiteURL,
		"error":        reason,
	})
	return nil
}

func (p *Pipeline) save(ctx context.Context, tenant *entity.Tenant, columns []string) {
	if err := p.tenants.UpdateColumns(ctx, tenant, columns...); err != nil {
		logger.Error(ctx, "failed to persist tenant", err, "status", string(tenant.Status))
	}
}

func (p *Pipeline) notify(ctx context.Context, tenant *entity.Tenant, event string, data map[string]string) {
	if p.notifier == nil {
		return
	}
	err := p.notifier.Notify(ctx, service.Notification{
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
