package service

import "context"

// 通知事件
const (
	EventProvisioningSucceeded = "provisioning_succeeded"
	EventProvisioningFailed    = "provisioning_failed"
	EventBackupCompleted       = "backup_completed"
	EventBackupFailed          = "backup_failed"
	EventRestoreCompleted      = "restore_completed"
	EventRestoreFailed         = "restore_failed"
	EventTenantSuspended       = "tenant_suspended"
	EventTenantReactivated     = "tenant_reactivated"
)

// Notification 发给客户的通知，内容格式由下游决定
type Notification struct {
	Event      string            `json:"event"`
	TenantID   string            `json:"company_id"`
	CustomerID string            `json:"customer_id"`
	Recipient  string            `json:"recipient,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
}

// Notifier 通知发送。约定 best-effort：失败只记录日志，不影响主流程
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
