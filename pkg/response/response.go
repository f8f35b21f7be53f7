package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/errors"
)

// OK 成功响应（200），data 中的字段与 success 平铺在同一层
func OK(c *gin.Context, data gin.H) {
	c.JSON(http.StatusOK, envelope(data))
}

// Created 创建成功响应（201）
func Created(c *gin.Context, data gin.H) {
	c.JSON(http.StatusCreated, envelope(data))
}

// OKWithStatus 指定状态码的成功响应
func OKWithStatus(c *gin.Context, status int, data gin.H) {
	c.JSON(status, envelope(data))
}

// Error 错误响应，状态码取自 AppError，非 AppError 一律 500
func Error(c *gin.Context, err error) {
	c.JSON(apperrors.GetStatus(err), gin.H{
		"message": apperrors.GetMessage(err),
	})
}

// ErrorWithMsg 自定义错误响应
func ErrorWithMsg(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"message": message})
}

// Unauthorized 未认证（401）
func Unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"message": "未登录或登录已过期"})
}

// envelope 构造 {success: true, ...} 信封
func envelope(data gin.H) gin.H {
	body := gin.H{"success": true}
	for k, v := range data {
		body[k] = v
	}
	return body
}
