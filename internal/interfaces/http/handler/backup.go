package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/repository"
	"tenant-provisioner/internal/interfaces/http/dto"
)

// BackupService 备份与恢复
type BackupService interface {
	RequestBackup(ctx context.Context, tenantID string) (string, error)
	RequestRestore(ctx context.Context, tenantID, backupID string) (string, error)
	List(ctx context.Context, tenantID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Backup], error)
}

// BackupHandler 备份处理器
type BackupHandler struct {
	tenants TenantService
	backups BackupService
}

// NewBackupHandler 创建备份处理器
func NewBackupHandler(tenants TenantService, backups BackupService) *BackupHandler {
	return &BackupHandler{tenants: tenants, backups: backups}
}

// Create 入队站点备份
// @Summary 创建备份
// @Tags Backups
// @Produce json
// @Param id path string true "公司 ID"
// @Success 202 {object} dto.Response[dto.JobAcceptedResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/tenants/{id}/backups [post]
func (h *BackupHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	id := dto.BindTenantID(c)
	if _, err := h.tenants.Authorize(ctx, actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}

	jobID, err := h.backups.RequestBackup(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Accepted(c, &dto.JobAcceptedResponse{
		JobID:   jobID,
		Status:  "queued",
		Message: "Backup started.",
	})
}

// List 备份列表
func (h *BackupHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	id := dto.BindTenantID(c)
	if _, err := h.tenants.Authorize(ctx, actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}

	result, err := h.backups.List(ctx, id, dto.BindPage(c).Pagination())
	if err != nil {
		respondError(c, err)
		return
	}
	dto.SuccessWithPage(c, dto.ToBackupListResponse(result.Items), dto.NewPageMetaFrom(result))
}

// Restore 从指定备份恢复
func (h *BackupHandler) Restore(c *gin.Context) {
	ctx := c.Request.Context()
	id := dto.BindTenantID(c)
	if _, err := h.tenants.Authorize(ctx, actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}

	jobID, err := h.backups.RequestRestore(ctx, id, dto.BindBackupID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Accepted(c, &dto.JobAcceptedResponse{
		JobID:   jobID,
		Status:  "queued",
		Message: "Restore started. The site is unavailable until it completes.",
	})
}
