// Package entity 定义领域实体
package entity

import "time"

// 开通步骤
const (
	StepCreateSite   = "create_site"
	StepInstallApps  = "install_apps"
	StepSetupCompany = "setup_company"
	StepMigrate      = "migrate"
	StepFinalize     = "finalize"
)

// ProvisioningSteps 流水线步骤顺序
var ProvisioningSteps = []string{StepCreateSite, StepInstallApps, StepSetupCompany, StepMigrate, StepFinalize}

// ProvisioningProgress 开通进度快照（存于缓存，带 TTL）
type ProvisioningProgress struct {
	TenantID        string    `json:"company_id"`
	Status          string    `json:"status"`
	Steps           []string  `json:"steps"`
	CurrentStep     string    `json:"current_step"`
	PercentComplete int       `json:"percent_complete"`
	Error           string    `json:"error,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ModuleJobStatus 模块任务状态
type ModuleJobStatus string

const (
	ModuleJobQueued          ModuleJobStatus = "queued"
	ModuleJobInstalling      ModuleJobStatus = "installing"
	ModuleJobMigrating       ModuleJobStatus = "migrating"
	ModuleJobCompleted       ModuleJobStatus = "completed"
	ModuleJobFailed          ModuleJobStatus = "failed"
	ModuleJobMigrationFailed ModuleJobStatus = "migration_failed"
)

// ModuleJobProgress 模块安装/卸载/更新任务进度
type ModuleJobProgress struct {
	JobID     string          `json:"job_id"`
	TenantID  string          `json:"company_id"`
	App       string          `json:"app"`
	Op        string          `json:"op"`
	Status    ModuleJobStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Done 任务是否结束
func (p *ModuleJobProgress) Done() bool {
	switch p.Status {
	case ModuleJobCompleted, ModuleJobFailed, ModuleJobMigrationFailed:
		return true
	}
	return false
}

// InstalledApp 站点已安装应用
type InstalledApp struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Branch  string `json:"branch,omitempty"`
}
