// Package errors 提供统一的错误定义
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeUnauthorized       ErrorCode = "1002"
	CodeForbidden          ErrorCode = "1003"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// 认证授权错误 (2xxx)
	CodeTokenExpired     ErrorCode = "2001"
	CodeTokenInvalid     ErrorCode = "2002"
	CodeTokenMissing     ErrorCode = "2003"
	CodePermissionDenied ErrorCode = "2004"

	// 资源错误 (3xxx)
	CodeTenantNotFound       ErrorCode = "3001"
	CodeSubscriptionNotFound ErrorCode = "3002"
	CodeBackupNotFound       ErrorCode = "3003"
	CodeJobNotFound          ErrorCode = "3004"

	// 业务错误 (4xxx)
	CodeSubdomainUnavailable ErrorCode = "4001"
	CodeQuotaExceeded        ErrorCode = "4002"
	CodeSubscriptionInvalid  ErrorCode = "4003"
	CodeInvalidTransition    ErrorCode = "4004"
	CodeRaceCondition        ErrorCode = "4005"
	CodeJobInProgress        ErrorCode = "4006"
	CodeLockConflict         ErrorCode = "4007"
	CodeDomainInvalid        ErrorCode = "4008"

	// 外部服务错误 (5xxx)
	CodeDatabaseError  ErrorCode = "5001"
	CodeCacheError     ErrorCode = "5002"
	CodeQueueError     ErrorCode = "5003"
	CodeCommandFailed  ErrorCode = "5004"
	CodeCommandTimeout ErrorCode = "5005"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，使 errors.Is(err, ErrTenantNotFound) 可用
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail 返回带详细信息的副本
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithReason 返回带机器可读原因的副本
func (e *AppError) WithReason(reason string) *AppError {
	cp := *e
	cp.Reason = reason
	return &cp
}

// WithError 返回带底层错误的副本
func (e *AppError) WithError(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeDomainInvalid:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeTokenExpired, CodeTokenInvalid, CodeTokenMissing:
		return http.StatusUnauthorized
	case CodeForbidden, CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound, CodeTenantNotFound, CodeSubscriptionNotFound, CodeBackupNotFound, CodeJobNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeRaceCondition, CodeJobInProgress, CodeInvalidTransition, CodeLockConflict:
		return http.StatusConflict
	case CodeSubdomainUnavailable, CodeQuotaExceeded, CodeSubscriptionInvalid:
		return http.StatusUnprocessableEntity
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeCommandTimeout:
		return http.StatusGatewayTimeout
	case CodeCommandFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrUnauthorized       = New(CodeUnauthorized, "unauthorized")
	ErrForbidden          = New(CodeForbidden, "forbidden")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrConflict           = New(CodeConflict, "resource conflict")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrTokenExpired = New(CodeTokenExpired, "token expired")
	ErrTokenInvalid = New(CodeTokenInvalid, "token invalid")
	ErrTokenMissing = New(CodeTokenMissing, "token missing")

	ErrTenantNotFound       = New(CodeTenantNotFound, "company not found")
	ErrSubscriptionNotFound = New(CodeSubscriptionNotFound, "subscription not found")
	ErrBackupNotFound       = New(CodeBackupNotFound, "backup not found")
	ErrJobNotFound          = New(CodeJobNotFound, "job not found")

	ErrSubdomainUnavailable = New(CodeSubdomainUnavailable, "subdomain is not available")
	ErrQuotaExceeded        = New(CodeQuotaExceeded, "company limit reached for this subscription")
	ErrSubscriptionInvalid  = New(CodeSubscriptionInvalid, "subscription is not usable")
	ErrInvalidTransition    = New(CodeInvalidTransition, "operation not allowed in current status")
	ErrRaceCondition        = New(CodeRaceCondition, "subdomain was just registered by someone else")
	ErrJobInProgress        = New(CodeJobInProgress, "a job for this company is already running")
	ErrLockConflict         = New(CodeLockConflict, "Site creation lock conflict. Please retry.")
	ErrDomainInvalid        = New(CodeDomainInvalid, "invalid domain")

	ErrDatabase = New(CodeDatabaseError, "database error")
	ErrQueue    = New(CodeQueueError, "queue error")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}
