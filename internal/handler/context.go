package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ContextUserID AuthMiddleware 写入 gin.Context 的 key
const ContextUserID = "user_id"

// getUserID 统一的 userID 读取工具
func getUserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextUserID)
	userID, _ := v.(string)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return "", false
	}
	return userID, true
}

// getDeviceID 浏览器 profile 标识，由前端生成并保存在 localStorage
func getDeviceID(c *gin.Context, fromBody string) (string, bool) {
	deviceID := fromBody
	if deviceID == "" {
		deviceID = c.Query("device_id")
	}
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device_id is required"})
		return "", false
	}
	return deviceID, true
}
