// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tenant-provisioner/internal/application/lifecycle"
	"tenant-provisioner/internal/application/namespace"
	"tenant-provisioner/internal/interfaces/http/dto"
	"tenant-provisioner/internal/interfaces/http/middleware"
	apperrors "tenant-provisioner/pkg/errors"
	"tenant-provisioner/pkg/logger"
)

// actorFrom 从认证信息构造调用者
func actorFrom(c *gin.Context) lifecycle.Actor {
	return lifecycle.Actor{
		CustomerID: c.GetString(middleware.CtxCustomerID),
		Email:      c.GetString(middleware.CtxEmail),
		Admin:      middleware.IsAdmin(c),
	}
}

// respondError 将应用错误转换为 HTTP 响应
func respondError(c *gin.Context, err error) {
	var allocErr *namespace.AllocationError
	if errors.As(err, &allocErr) {
		dto.UnprocessableEntity(c, allocErr.Message, &dto.ErrorDetail{
			ErrorCode:   string(apperrors.CodeSubdomainUnavailable),
			Reason:      allocErr.Reason,
			Suggestions: allocErr.Suggestions,
		})
		return
	}

	var valErr *namespace.ValidationError
	if errors.As(err, &valErr) {
		dto.ErrorWithDetail(c, http.StatusBadRequest, valErr.Message, &dto.ErrorDetail{
			ErrorCode: string(apperrors.CodeInvalidParam),
		})
		return
	}

	appErr := apperrors.AsAppError(err)
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	detail := &dto.ErrorDetail{
		ErrorCode: string(appErr.Code),
		Reason:    appErr.Reason,
		Details:   appErr.Detail,
	}
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", err, "path", c.FullPath())
	}
	dto.ErrorWithDetail(c, status, appErr.Message, detail)
}

// bindJSON 绑定请求体，失败时直接响应 400
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}
