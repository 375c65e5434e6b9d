package provisioning

import (
	"context"

	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/pkg/logger"
)

// 进度状态
const (
	ProgressRunning   = "provisioning"
	ProgressRetrying  = "retrying"
	ProgressCompleted = "completed"
	ProgressFailed    = "failed"
)

// stepPercent 每一步开始时的完成度
var stepPercent = map[string]int{
	entity.StepCreateSite:   10,
	entity.StepInstallApps:  40,
	entity.StepSetupCompany: 70,
	entity.StepMigrate:      80,
	entity.StepFinalize:     95,
}

// report 写入进度，失败只记录日志
func (p *Pipeline) report(ctx context.Context, tenantID, step, status, errMsg string) {
	percent := stepPercent[step]
	if status == ProgressCompleted {
		percent = 100
	}
	err := p.progress.SetProvisioning(ctx, &entity.ProvisioningProgress{
		TenantID:        tenantID,
		Status:          status,
		Steps:           entity.ProvisioningSteps,
		CurrentStep:     step,
		PercentComplete: percent,
		Error:           errMsg,
	})
	if err != nil {
		logger.Warn(ctx, "failed to write provisioning progress", "step", step, "error", err.Error())
	}
}
