// Package modules 管理站点应用的安装、卸载与更新
package modules

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/service"
	"tenant-provisioner/internal/infrastructure/bench"
	apperrors "tenant-provisioner/pkg/errors"
	"tenant-provisioner/pkg/logger"
	"tenant-provisioner/pkg/metrics"
	"tenant-provisioner/pkg/tracer"
)

// frameworkApp 框架本身，不允许卸载
const frameworkApp = "frappe"

var appNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)

// TenantStore 读写租户
type TenantStore interface {
	GetByID(ctx context.Context, id string) (*entity.Tenant, error)
	Update(ctx context.Context, tenant *entity.Tenant) error
}

// Manager 模块管理
type Manager struct {
	tenants      TenantStore
	queue        service.JobQueue
	progress     service.ProgressStore
	runner       service.CommandRunner
	cmds         bench.Commands
	timeout      time.Duration
	probeTimeout time.Duration
}

// NewManager 创建模块管理器
func NewManager(
	tenants TenantStore,
	queue service.JobQueue,
	progress service.ProgressStore,
	runner service.CommandRunner,
	binary string,
	timeout, probeTimeout time.Duration,
) *Manager {
	return &Manager{
		tenants:      tenants,
		queue:        queue,
		progress:     progress,
		runner:       runner,
		cmds:         bench.NewCommands(binary),
		timeout:      timeout,
		probeTimeout: probeTimeout,
	}
}

// RequestInstall 入队安装任务
func (m *Manager) RequestInstall(ctx context.Context, tenantID, app string) (*entity.ModuleJobProgress, error) {
	return m.request(ctx, service.JobInstallApp, tenantID, app)
}

// RequestUninstall 入队卸载任务
func (m *Manager) RequestUninstall(ctx context.Context, tenantID, app string) (*entity.ModuleJobProgress, error) {
	if app == frameworkApp {
		return nil, apperrors.ErrInvalidParam.WithDetail("cannot uninstall the frappe framework")
	}
	return m.request(ctx, service.JobUninstallApp, tenantID, app)
}

// RequestUpdate 入队更新任务
func (m *Manager) RequestUpdate(ctx context.Context, tenantID, app string) (*entity.ModuleJobProgress, error) {
	return m.request(ctx, service.JobUpdateApp, tenantID, app)
}

func (m *Manager) request(ctx context.Context, op, tenantID, app string) (*entity.ModuleJobProgress, error) {
	app = strings.TrimSpace(app)
	if !appNamePattern.MatchString(app) {
		return nil, apperrors.ErrInvalidParam.WithDetail("invalid app name")
	}
	tenant, err := m.siteTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	jobID := service.ModuleJobID(op, tenant.ID, app)
	_, err = m.queue.Enqueue(ctx, service.Job{
		ID:       jobID,
		Type:     op,
		TenantID: tenant.ID,
		DedupKey: jobID,
		Timeout:  2 * m.timeout,
		Payload:  service.ModulePayload{JobID: jobID, TenantID: tenant.ID, App: app, Op: op},
	})
	if errors.Is(err, service.ErrDuplicateJob) {
		return nil, apperrors.ErrJobInProgress.WithDetail(fmt.Sprintf("%s is already running for %s", op, app))
	}
	if err != nil {
		return nil, apperrors.ErrQueue.WithError(err)
	}

	p := &entity.ModuleJobProgress{JobID: jobID, TenantID: tenant.ID, App: app, Op: op, Status: entity.ModuleJobQueued}
	m.report(ctx, p)
	logger.Info(ctx, "module job queued", "tenant_id", tenant.ID, "job_id", jobID, "app", app)
	return p, nil
}

// siteTenant 租户必须 Active 且已有站点
func (m *Manager) siteTenant(ctx context.Context, tenantID string) (*entity.Tenant, error) {
	tenant, err := m.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, apperrors.ErrDatabase.WithError(err)
	}
	if tenant == nil {
		return nil, apperrors.ErrTenantNotFound
	}
	if tenant.Status != entity.TenantStatusActive {
		return nil, apperrors.ErrInvalidTransition.WithDetail("company must be active to manage apps")
	}
	if tenant.SiteName == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("no site configured")
	}
	return tenant, nil
}

// Run 执行模块任务：命令 → migrate，进度写入缓存
func (m *Manager) Run(ctx context.Context, job service.ModulePayload) error {
	tenant, err := m.tenants.GetByID(ctx, job.TenantID)
	if err != nil {
		return fmt.Errorf("failed to load tenant: %w", err)
	}
	p := &entity.ModuleJobProgress{JobID: job.JobID, TenantID: job.TenantID, App: job.App, Op: job.Op}
	if tenant == nil || tenant.SiteName == "" {
		m.finish(ctx, p, entity.ModuleJobFailed, "company or site not found")
		return nil
	}
	ctx = logger.WithTenant(ctx, tenant.ID, tenant.SiteName)
	ctx, span := tracer.Start(ctx, "modules.Run")
	defer span.End()

	var args []string
	switch job.Op {
	case service.JobInstallApp:
		args = m.cmds.InstallApp(tenant.SiteName, job.App)
	case service.JobUninstallApp:
		args = m.cmds.UninstallApp(tenant.SiteName, job.App)
	case service.JobUpdateApp:
		args = m.cmds.GetAppUpgrade(job.App)
	default:
		m.finish(ctx, p, entity.ModuleJobFailed, "unknown operation "+job.Op)
		return nil
	}

	p.Status = entity.ModuleJobInstalling
	m.report(ctx, p)
	if res := m.runner.Run(ctx, args, m.timeout); !res.OK() {
		tracer.RecordError(span, errors.New(res.ErrorText()))
		m.finish(ctx, p, entity.ModuleJobFailed, res.ErrorText())
		return nil
	}

	m.syncModules(ctx, tenant, job)

	p.Status = entity.ModuleJobMigrating
	m.report(ctx, p)
	if res := m.runner.Run(ctx, m.cmds.Migrate(tenant.SiteName), m.timeout); !res.OK() {
		m.finish(ctx, p, entity.ModuleJobMigrationFailed, res.ErrorText())
		return nil
	}
	m.finish(ctx, p, entity.ModuleJobCompleted, "")
	return nil
}

// syncModules 同步租户记录上的模块列表
func (m *Manager) syncModules(ctx context.Context, tenant *entity.Tenant, job service.ModulePayload) {
	var changed bool
	switch job.Op {
	case service.JobInstallApp:
		if !containsApp(tenant.Modules, job.App) {
			tenant.Modules = append(tenant.Modules, job.App)
			changed = true
		}
	case service.JobUninstallApp:
		kept := tenant.Modules[:0:0]
		for _, app := range tenant.Modules {
			if app != job.App {
				kept = append(kept, app)
			}
		}
		changed = len(kept) != len(tenant.Modules)
		tenant.Modules = kept
	}
	if !changed {
		return
	}
	if err := m.tenants.Update(ctx, tenant); err != nil {
		logger.Warn(ctx, "failed to update tenant modules", "error", err.Error())
	}
}

func (m *Manager) finish(ctx context.Context, p *entity.ModuleJobProgress, status entity.ModuleJobStatus, message string) {
	p.Status = status
	p.Message = message
	m.report(ctx, p)
	metrics.ModuleJobsTotal.WithLabelValues(p.Op, string(status)).Inc()
	if status == entity.ModuleJobCompleted {
		logger.Info(ctx, "module job completed", "job_id", p.JobID, "app", p.App)
		return
	}
	logger.Warn(ctx, "module job did not complete", "job_id", p.JobID, "app", p.App, "status", string(status), "error", message)
}

func (m *Manager) report(ctx context.Context, p *entity.ModuleJobProgress) {
	if err := m.progress.SetModuleJob(ctx, p); err != nil {
		logger.Warn(ctx, "failed to write module progress", "job_id", p.JobID, "error", err.Error())
	}
}

// JobStatus 读取模块任务进度
func (m *Manager) JobStatus(ctx context.Context, jobID string) (*entity.ModuleJobProgress, error) {
	p, err := m.progress.GetModuleJob(ctx, jobID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to read job status")
	}
	if p == nil {
		return nil, apperrors.ErrJobNotFound
	}
	return p, nil
}

// InstalledApps 查询站点已安装应用
func (m *Manager) InstalledApps(ctx context.Context, tenant *entity.Tenant) ([]entity.InstalledApp, error) {
	if tenant.SiteName == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("no site configured")
	}
	res := m.runner.Run(ctx, m.cmds.ListApps(tenant.SiteName), m.probeTimeout)
	if !res.OK() {
		return nil, apperrors.New(apperrors.CodeCommandFailed, "failed to list apps").WithDetail(res.ErrorText())
	}
	return ParseInstalledApps(res.Stdout), nil
}

// ParseInstalledApps 解析 list-apps 输出，每行 "name version branch"
// 兼容 "erpnext 15.0.0 (version-15)" 格式
func ParseInstalledApps(out string) []entity.InstalledApp {
	var apps []entity.InstalledApp
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		app := entity.InstalledApp{Name: fields[0]}
		if len(fields) > 1 {
			app.Version = fields[1]
		}
		if len(fields) > 2 {
			app.Branch = strings.Trim(fields[2], "()")
		}
		apps = append(apps, app)
	}
	return apps
}

func containsApp(apps []string, app string) bool {
	for _, a := range apps {
		if a == app {
			return true
		}
	}
	return false
}
