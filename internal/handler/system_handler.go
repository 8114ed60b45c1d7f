package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheck 提供监控系统使用的健康检查端点。持久化存储不可用时仍返回 200，
// 因为写入会由内存存储接管，状态标记为 degraded。
func (a *API) HealthCheck(c *gin.Context) {
	payload := gin.H{
		"status":  "ok",
		"storage": a.selection,
	}

	switch {
	case a.db == nil:
		payload["status"] = "degraded"
		payload["database"] = "disabled"
	default:
		sqlDB, err := a.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			payload["status"] = "degraded"
			payload["database"] = "unreachable"
		} else {
			payload["database"] = "up"
		}
	}

	c.JSON(http.StatusOK, payload)
}

// Ping 用于最简单的存活探测。
func (a *API) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}
