package dto

import "tenant-provisioner/internal/domain/entity"

// JobAcceptedResponse 任务已入队
type JobAcceptedResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ModuleJobResponse 模块任务进度
type ModuleJobResponse struct {
	*entity.ModuleJobProgress
	Done bool `json:"done"`
}

// ToModuleJobResponse 进度转换为响应
func ToModuleJobResponse(p *entity.ModuleJobProgress) *ModuleJobResponse {
	return &ModuleJobResponse{ModuleJobProgress: p, Done: p.Done()}
}

// InstalledAppsResponse 已安装应用
type InstalledAppsResponse struct {
	SiteName string                `json:"site_name"`
	Apps     []entity.InstalledApp `json:"apps"`
}
