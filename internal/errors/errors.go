package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError 应用错误类型
// 用于统一管理业务错误，Status 同时作为 HTTP 状态码和错误类别
type AppError struct {
	Status  int    // HTTP 状态码（400 参数 / 403 权限 / 404 不存在 / 409 冲突 / 500 内部）
	Message string // 用户可见的错误消息
	Err     error  // 原始错误（可选，用于调试）
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Status, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError 创建新错误
func NewError(status int, message string) *AppError {
	return &AppError{
		Status:  status,
		Message: message,
	}
}

// Wrap 包装原始错误
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Status:  e.Status,
		Message: e.Message,
		Err:     err,
	}
}

// Is 判断是否为指定错误
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status == target.Status && appErr.Message == target.Message
	}
	return false
}

// GetStatus 获取 HTTP 状态码，如果不是 AppError 返回 500
func GetStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "服务器内部错误"
}

// ============== 错误分类构造器 ==============

// Validation 参数错误（400）
func Validation(message string) *AppError {
	return NewError(http.StatusBadRequest, message)
}

// Forbidden 权限错误（403）
func Forbidden(message string) *AppError {
	return NewError(http.StatusForbidden, message)
}

// NotFound 资源不存在（404）
func NotFound(message string) *AppError {
	return NewError(http.StatusNotFound, message)
}

// Conflict 唯一性冲突（409）
func Conflict(message string) *AppError {
	return NewError(http.StatusConflict, message)
}

// Internal 内部错误（500）
func Internal(err error) *AppError {
	return &AppError{
		Status:  http.StatusInternalServerError,
		Message: "服务器内部错误",
		Err:     err,
	}
}

// ============== 预定义错误 ==============

// 会话相关
var (
	ErrConversationNotFound = NotFound("会话不存在")
	ErrNotGroupConversation = Validation("仅群聊支持该操作")
	ErrNotPrivate           = Validation("仅私聊支持该操作")
	ErrPartnerNotFound      = NotFound("会话对方不存在")
	ErrGroupTooSmall        = Validation("群聊至少需要 3 名成员")
	ErrDuplicatePrivate     = Conflict("私聊会话已存在")
)

// 成员相关
var (
	ErrNotAdmin          = Forbidden("仅管理员可执行该操作")
	ErrMemberNotFound    = NotFound("成员不存在")
	ErrAllMembersExist   = Validation("所有用户均已是群成员")
	ErrCannotRemoveAdmin = Validation("不能移除管理员")
	ErrNotMember         = Forbidden("不是会话成员")
)

// 消息相关
var (
	ErrMessageNotFound = NotFound("消息不存在")
	ErrEmptyMessage    = Validation("消息内容不能为空")
)

// 用户相关
var (
	ErrUserNotFound = NotFound("用户不存在")
)

// 通知相关
var (
	ErrNotificationNotFound = NotFound("通知不存在")
)
