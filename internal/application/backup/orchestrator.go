// Package backup 编排站点备份与恢复任务
package backup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/repository"
	"tenant-provisioner/internal/domain/service"
	"tenant-provisioner/internal/infrastructure/bench"
	apperrors "tenant-provisioner/pkg/errors"
	"tenant-provisioner/pkg/logger"
	"tenant-provisioner/pkg/metrics"
	"tenant-provisioner/pkg/tracer"
)

// TenantReader 读取租户
type TenantReader interface {
	GetByID(ctx context.Context, id string) (*entity.Tenant, error)
}

// Orchestrator 备份/恢复编排
type Orchestrator struct {
	tenants   TenantReader
	backups   repository.BackupRepository
	queue     service.JobQueue
	runner    service.CommandRunner
	workspace service.SiteWorkspace
	notifier  service.Notifier
	cmds      bench.Commands
	timeout   time.Duration
	now       func() time.Time
}

// NewOrchestrator 创建备份编排器
func NewOrchestrator(
	tenants TenantReader,
	backups repository.BackupRepository,
	queue service.JobQueue,
	runner service.CommandRunner,
	workspace service.SiteWorkspace,
	notifier service.Notifier,
	binary string,
	timeout time.Duration,
) *Orchestrator {
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	return &Orchestrator{
		tenants:   tenants,
		backups:   backups,
		queue:     queue,
		runner:    runner,
		workspace: workspace,
		notifier:  notifier,
		cmds:      bench.NewCommands(binary),
		timeout:   timeout,
		now:       time.Now,
	}
}

// RequestBackup 入队备份任务，返回任务 ID
func (o *Orchestrator) RequestBackup(ctx context.Context, tenantID string) (string, error) {
	tenant, err := o.activeTenant(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return o.enqueue(ctx, service.JobBackup, service.BackupPayload{TenantID: tenant.ID}, tenant.ID)
}

// RequestRestore 校验备份可用后入队恢复任务
func (o *Orchestrator) RequestRestore(ctx context.Context, tenantID, backupID string) (string, error) {
	tenant, err := o.activeTenant(ctx, tenantID)
	if err != nil {
		return "", err
	}
	b, err := o.backups.GetByID(ctx, backupID)
	if err != nil {
		return "", apperrors.ErrDatabase.WithError(err)
	}
	if b == nil || b.TenantID != tenant.ID {
		return "", apperrors.ErrBackupNotFound
	}
	if !b.Restorable() {
		return "", apperrors.ErrInvalidTransition.WithDetail("backup is not completed or has no file")
	}
	return o.enqueue(ctx, service.JobRestore, service.BackupPayload{TenantID: tenant.ID, BackupID: b.ID}, tenant.ID)
}

// List 分页列出租户备份
func (o *Orchestrator) List(ctx context.Context, tenantID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Backup], error) {
	result, err := o.backups.ListByTenant(ctx, tenantID, pagination)
	if err != nil {
		return nil, apperrors.ErrDatabase.WithError(err)
	}
	return result, nil
}

// Get 读取租户下的单个备份
func (o *Orchestrator) Get(ctx context.Context, tenantID, backupID string) (*entity.Backup, error) {
	b, err := o.backups.GetByID(ctx, backupID)
	if err != nil {
		return nil, apperrors.ErrDatabase.WithError(err)
	}
	if b == nil || b.TenantID != tenantID {
		return nil, apperrors.ErrBackupNotFound
	}
	return b, nil
}

func (o *Orchestrator) activeTenant(ctx context.Context, tenantID string) (*entity.Tenant, error) {
	tenant, err := o.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, apperrors.ErrDatabase.WithError(err)
	}
	if tenant == nil {
		return nil, apperrors.ErrTenantNotFound
	}
	if tenant.Status != entity.TenantStatusActive {
		return nil, apperrors.ErrInvalidTransition.WithDetail("company must be active")
	}
	if tenant.SiteName == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("no site configured")
	}
	return tenant, nil
}

// enqueue 备份与恢复共用一个去重键
func (o *Orchestrator) enqueue(ctx context.Context, jobType string, payload service.BackupPayload, tenantID string) (string, error) {
	jobID, err := o.queue.Enqueue(ctx, service.Job{
		Type:     jobType,
		TenantID: tenantID,
		DedupKey: service.DedupKey(service.DedupBackupRestore, tenantID),
		Payload:  payload,
		Timeout:  2 * o.timeout,
	})
	if errors.Is(err, service.ErrDuplicateJob) {
		return "", apperrors.ErrJobInProgress.WithDetail("a backup or restore is already running for this company")
	}
	if err != nil {
		return "", apperrors.ErrQueue.WithError(err)
	}
	logger.Info(ctx, "site job queued", "tenant_id", tenantID, "job_id", jobID, "type", jobType)
	return jobID, nil
}

// RunBackup 执行备份：先建 In Progress 记录，命令成功后解析文件路径
func (o *Orchestrator) RunBackup(ctx context.Context, payload service.BackupPayload) error {
	tenant, err := o.tenants.GetByID(ctx, payload.TenantID)
	if err != nil {
		return fmt.Errorf("failed to load tenant: %w", err)
	}
	if tenant == nil || tenant.SiteName == "" {
		logger.Warn(ctx, "backup skipped, tenant or site missing", "tenant_id", payload.TenantID)
		return nil
	}
	ctx = logger.WithTenant(ctx, tenant.ID, tenant.SiteName)
	ctx, span := tracer.Start(ctx, "backup.RunBackup")
	defer span.End()

	record := entity.NewBackup(tenant.ID)
	if err := o.backups.Create(ctx, record); err != nil {
		tracer.RecordError(span, err)
		return fmt.Errorf("failed to create backup record: %w", err)
	}

	res := o.runner.Run(ctx, o.cmds.Backup(tenant.SiteName), o.timeout)
	if !res.OK() {
		reason := res.ErrorText()
		record.Fail(reason, o.now())
		o.save(ctx, record)
		metrics.BackupTotal.WithLabelValues("backup", "failed").Inc()
		logger.Warn(ctx, "backup failed", "backup_id", record.ID, "error", reason)
		o.notify(ctx, tenant, service.EventBackupFailed, map[string]string{"backup_id": record.ID, "error": reason})
		return nil
	}

	file := ParseBackupFile(res.Stdout)
	var size float64
	if file != "" {
		size = o.workspace.FileSizeMB(file)
	}
	record.Complete(file, size, o.now())
	o.save(ctx, record)
	metrics.BackupTotal.WithLabelValues("backup", "success").Inc()
	logger.Info(ctx, "backup completed", "backup_id", record.ID, "file", file, "size_mb", size)

	o.notify(ctx, tenant, service.EventBackupCompleted, map[string]string{
		"backup_id":    record.ID,
		"company_name": tenant.Name,
	})
	return nil
}

// RunRestore 从备份恢复后执行迁移
func (o *Orchestrator) RunRestore(ctx context.Context, payload service.BackupPayload) error {
	tenant, err := o.tenants.GetByID(ctx, payload.TenantID)
	if err != nil {
		return fmt.Errorf("failed to load tenant: %w", err)
	}
	b, err := o.backups.GetByID(ctx, payload.BackupID)
	if err != nil {
		return fmt.Errorf("failed to load backup: %w", err)
	}
	if tenant == nil || tenant.SiteName == "" {
		logger.Warn(ctx, "restore skipped, tenant or site missing", "tenant_id", payload.TenantID)
		return nil
	}
	ctx = logger.WithTenant(ctx, tenant.ID, tenant.SiteName)
	if b == nil || b.FileURL == "" {
		logger.Warn(ctx, "restore skipped, backup file missing", "backup_id", payload.BackupID)
		return nil
	}
	ctx, span := tracer.Start(ctx, "backup.RunRestore")
	defer span.End()

	res := o.runner.Run(ctx, o.cmds.Restore(tenant.SiteName, b.FileURL), o.timeout)
	if !res.OK() {
		reason := res.ErrorText()
		metrics.BackupTotal.WithLabelValues("restore", "failed").Inc()
		logger.Warn(ctx, "restore failed", "backup_id", b.ID, "error", reason)
		o.notify(ctx, tenant, service.EventRestoreFailed, map[string]string{"backup_id": b.ID, "error": reason})
		return nil
	}

	data := map[string]string{"backup_id": b.ID, "company_name": tenant.Name}
	if mig := o.runner.Run(ctx, o.cmds.Migrate(tenant.SiteName), o.timeout); !mig.OK() {
		data["warning"] = "migration_failed: " + mig.ErrorText()
		logger.Warn(ctx, "migration after restore failed", "error", mig.ErrorText())
	}
	metrics.BackupTotal.WithLabelValues("restore", "success").Inc()
	logger.Info(ctx, "restore completed", "backup_id", b.ID)
	o.notify(ctx, tenant, service.EventRestoreCompleted, data)
	return nil
}

// ParseBackupFile 从 bench backup 输出中取数据库备份文件路径
// 优先取以 .sql.gz 结尾的字段；含 "database backup" 的行只在末字段像路径时采用
func ParseBackupFile(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		for _, f := range fields {
			if strings.HasSuffix(f, ".sql.gz") {
				return f
			}
		}
		if strings.Contains(strings.ToLower(line), "database backup") {
			if last := fields[len(fields)-1]; strings.Contains(last, "/") {
				return last
			}
		}
	}
	return ""
}

func (o *Orchestrator) save(ctx context.Context, b *entity.Backup) {
	if err := o.backups.Update(ctx, b); err != nil {
		logger.Error(ctx, "failed to persist backup", err, "backup_id", b.ID)
	}
}

func (o *Orchestrator) notify(ctx context.Context, tenant *entity.Tenant, event string, data map[string]string) {
	if o.notifier == nil {
		return
	}
	err := o.notifier.Notify(ctx, service.Notification{
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
