package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tenant-provisioner/internal/domain/entity"
)

// ErrDuplicateJob 相同去重键的任务仍在执行
var ErrDuplicateJob = errors.New("job already queued or running")

// ErrRetryable 任务可稍后重试（如站点创建锁冲突），消费端按退避重新投递
var ErrRetryable = errors.New("retryable job failure")

// 异步任务类型
const (
	JobProvision    = "provision_site"
	JobBackup       = "backup_site"
	JobRestore      = "restore_site"
	JobInstallApp   = "install_app"
	JobUninstallApp = "uninstall_app"
	JobUpdateApp    = "update_app"
)

// 去重键作用域
const (
	DedupProvision     = "provision"
	DedupBackupRestore = "backup_restore"
)

// DedupKey 构造租户级去重键，如 provision_{tenant}
func DedupKey(scope, tenantID string) string {
	return fmt.Sprintf("%s_%s", scope, tenantID)
}

// ModuleJobID 模块任务 ID，如 install_app_{tenant}_{app}，同时作为去重键
func ModuleJobID(jobType, tenantID, app string) string {
	return fmt.Sprintf("%s_%s_%s", jobType, tenantID, app)
}

// ProvisionTimeout 开通任务时限：建站、公司初始化、迁移各占一个长命令时限，每个应用再加一个
func ProvisionTimeout(longTimeout time.Duration, modules int) time.Duration {
	return longTimeout * time.Duration(modules+3)
}

// Job 待入队的异步任务
type Job struct {
	// ID 为空时由队列生成
	ID       string
	Type     string
	TenantID string
	// DedupKey 同一键同时只允许一个任务
	DedupKey string
	Payload  any
	// Timeout 任务执行上限，同时决定去重键存活时间
	Timeout time.Duration
}

// JobQueue 异步任务队列
type JobQueue interface {
	// Enqueue 入队，去重键被占用时返回 ErrDuplicateJob
	Enqueue(ctx context.Context, job Job) (string, error)
	// Release 任务结束后释放去重键
	Release(ctx context.Context, dedupKey string) error
	// Held 去重键是否仍被占用
	Held(ctx context.Context, dedupKey string) (bool, error)
}

// ProgressStore 任务进度存储（带过期时间）
type ProgressStore interface {
	SetProvisioning(ctx context.Context, p *entity.ProvisioningProgress) error
	GetProvisioning(ctx context.Context, tenantID string) (*entity.ProvisioningProgress, error)
	SetModuleJob(ctx context.Context, p *entity.ModuleJobProgress) error
	GetModuleJob(ctx context.Context, jobID string) (*entity.ModuleJobProgress, error)
}

// ProvisionPayload 开通任务参数
type ProvisionPayload struct {
	TenantID      string   `json:"company_id"`
	SiteName      string   `json:"site_name"`
	AdminPassword string   `json:"admin_password"`
	AdminEmail    string   `json:"admin_email"`
	Modules       []string `json:"modules"`
}

// BackupPayload 备份/恢复任务参数
type BackupPayload struct {
	TenantID string `json:"company_id"`
	BackupID string `json:"backup_id,omitempty"`
}

// ModulePayload 模块任务参数
type ModulePayload struct {
	JobID    string `json:"job_id"`
	TenantID string `json:"company_id"`
	App      string `json:"app"`
	Op       string `json:"op"`
}
