package dto

import (
	"time"

	"tenant-provisioner/internal/domain/entity"
)

// BackupResponse 备份记录
type BackupResponse struct {
	ID          string              `json:"backup_id"`
	TenantID    string              `json:"company_id"`
	Type        string              `json:"backup_type"`
	Status      entity.BackupStatus `json:"status"`
	FileURL     string              `json:"file_url,omitempty"`
	FileSizeMB  float64             `json:"file_size_mb"`
	Error       string              `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// ToBackupResponse 实体转换为响应
func ToBackupResponse(b *entity.Backup) *BackupResponse {
	return &BackupResponse{
		ID:          b.ID,
		TenantID:    b.TenantID,
		Type:        b.Type,
		Status:      b.Status,
		FileURL:     b.FileURL,
		FileSizeMB:  b.FileSizeMB,
		Error:       b.Error,
		CreatedAt:   b.CreatedAt,
		CompletedAt: b.CompletedAt,
	}
}

// ToBackupListResponse 实体列表转换为响应
func ToBackupListResponse(backups []*entity.Backup) []*BackupResponse {
	out := make([]*BackupResponse, 0, len(backups))
	for _, b := range backups {
		out = append(out, ToBackupResponse(b))
	}
	return out
}
