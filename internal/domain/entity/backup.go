// Package entity 定义领域实体
package entity

import (
	"time"
)

// BackupStatus 备份状态
type BackupStatus string

const (
	BackupStatusInProgress BackupStatus = "In Progress"
	BackupStatusCompleted  BackupStatus = "Completed"
	BackupStatusFailed     BackupStatus = "Failed"
)

// BackupTypeFull 全量备份（数据库 + 文件）
const BackupTypeFull = "Full"

// Backup 站点备份记录
type Backup struct {
	ID          string       `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID    string       `json:"tenant_id" gorm:"type:uuid;index;not null"`
	Type        string       `json:"type" gorm:"type:varchar(20);default:'Full'"`
	Status      BackupStatus `json:"status" gorm:"type:varchar(20);not null"`
	FileURL     string       `json:"file_url,omitempty" gorm:"type:text"`
	FileSizeMB  float64      `json:"file_size_mb" gorm:"type:numeric(12,2);default:0"`
	Error       string       `json:"error,omitempty" gorm:"type:text"`
	CreatedAt   time.Time    `json:"created_at" gorm:"autoCreateTime;index"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// TableName 指定表名
func (Backup) TableName() string {
	return "backups"
}

// NewBackup 创建进行中的全量备份
func NewBackup(tenantID string) *Backup {
	return &Backup{
		TenantID: tenantID,
		Type:     BackupTypeFull,
		Status:   BackupStatusInProgress,
	}
}

// Complete 标记完成
func (b *Backup) Complete(fileURL string, sizeMB float64, at time.Time) {
	b.Status = BackupStatusCompleted
	b.FileURL = fileURL
	b.FileSizeMB = sizeMB
	b.CompletedAt = &at
}

// Fail 标记失败
func (b *Backup) Fail(reason string, at time.Time) {
	b.Status = BackupStatusFailed
	b.Error = reason
	b.CompletedAt = &at
}

// Restorable 是否可用于恢复
func (b *Backup) Restorable() bool {
	return b.Status == BackupStatusCompleted && b.FileURL != ""
}
