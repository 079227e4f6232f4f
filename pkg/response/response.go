package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// REST响应格式与客户端既有约定保持一致：
// 成功的读取直接返回JSON数据本身，成功的写入返回 {"success":true}，
// 失败统一返回 {"error": "..."} 加上对应的HTTP状态码

// JSON 直接返回数据（目录、消息历史等读取接口）
func JSON(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Success 写入成功
func Success(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SuccessWithToken 写入成功并附带会话令牌
func SuccessWithToken(c *gin.Context, token string) {
	c.JSON(http.StatusOK, gin.H{"success": true, "token": token})
}

// Error 错误响应
func Error(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// BadRequest 400错误
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// Unauthorized 401错误
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

// InternalError 500错误
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}
