// response.go — 统一的 gin 响应 helper。
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/multi-agent/messaging-runtime/pkg/errors"
)

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": data})
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": gin.H{"code": code, "message": message}})
}

func notFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, gin.H{"success": false, "error": gin.H{"code": "not_found", "message": message}})
}

// errorResponse 把核心包返回的 *apperrors.AppError 映射成带稳定错误码的
// HTTP 响应；大多数业务错误归为 400，内部错误归为 500。
func errorResponse(c *gin.Context, err error) {
	code := apperrors.Code(err)
	if code == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": gin.H{"code": "internal_error", "message": "internal error"}})
		return
	}
	status := http.StatusBadRequest
	switch code {
	case apperrors.CodeAgentNotFound:
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"success": false, "error": gin.H{"code": code, "message": err.Error()}})
}
