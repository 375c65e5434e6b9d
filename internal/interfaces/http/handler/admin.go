package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/interfaces/http/dto"
	apperrors "tenant-provisioner/pkg/errors"
)

// SubscriptionReader 读取订阅
type SubscriptionReader interface {
	GetByID(ctx context.Context, id string) (*entity.Subscription, error)
}

// PlanEnforcer 按订阅重算配额
type PlanEnforcer interface {
	Reconcile(ctx context.Context, sub *entity.Subscription) (suspended, reactivated []string, err error)
}

// AdminHandler 运维接口
type AdminHandler struct {
	subs  SubscriptionReader
	guard PlanEnforcer
}

// NewAdminHandler 创建运维处理器
func NewAdminHandler(subs SubscriptionReader, guard PlanEnforcer) *AdminHandler {
	return &AdminHandler{subs: subs, guard: guard}
}

// EnforceSubscription 立即按订阅当前状态挂起或恢复公司
// @Summary 重算订阅配额
// @Tags Admin
// @Produce json
// @Param sid path string true "订阅 ID"
// @Success 200 {object} dto.Response[dto.EnforceResponse]
// @Router /v1/admin/subscriptions/{sid}/enforce [post]
func (h *AdminHandler) EnforceSubscription(c *gin.Context) {
	ctx := c.Request.Context()
	sid := dto.BindSubscriptionID(c)

	sub, err := h.subs.GetByID(ctx, sid)
	if err != nil {
		respondError(c, apperrors.ErrDatabase.WithError(err))
		return
	}
	if sub == nil {
		respondError(c, apperrors.ErrSubscriptionNotFound)
		return
	}

	suspended, reactivated, err := h.guard.Reconcile(ctx, sub)
	if err != nil {
		respondError(c, err)
		return
	}
	if suspended == nil {
		suspended = []string{}
	}
	if reactivated == nil {
		reactivated = []string{}
	}
	dto.Success(c, &dto.EnforceResponse{
		SubscriptionID: sub.ID,
		Suspended:      suspended,
		Reactivated:    reactivated,
	})
}
