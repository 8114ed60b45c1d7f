package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sitepulse/internal/service"
)

type recordViewRequest struct {
	SessionID string `json:"sessionId"`
}

// RecordBlogView 按会话去重地记录一次文章浏览。请求体中的 sessionId 优先，
// 否则使用 cookie 会话。
func (a *API) RecordBlogView(c *gin.Context) {
	var req recordViewRequest
	if c.Request.ContentLength > 0 {
		if !bindJSON(c, &req, "invalid request body") {
			return
		}
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = ensureSessionID(c)
	}

	id := identify(c)
	now := a.clock()
	slug := c.Param("slug")
	ctx := c.Request.Context()

	counted, err := a.analytics.IncrementViewCount(ctx, slug, &service.SessionData{
		SessionID: sessionID,
		VisitorID: id.visitorID,
		UserAgent: id.headers.UserAgent,
		Referrer:  c.GetHeader("Referer"),
	}, now)
	if err != nil {
		a.respondServiceError(c, err)
		return
	}

	stats, err := a.analytics.GetBlogStats(ctx, slug, now)
	if err != nil {
		a.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"counted":   counted,
		"analytics": stats.Analytics,
	})
}

// BlogAnalytics 返回文章统计及时间窗口。
func (a *API) BlogAnalytics(c *gin.Context) {
	stats, err := a.analytics.GetBlogStats(c.Request.Context(), c.Param("slug"), a.clock())
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// TopBlogs 返回按总浏览量排序的文章。
func (a *API) TopBlogs(c *gin.Context) {
	top, err := a.analytics.TopBlogs(c.Request.Context(), parseLimit(c, 10))
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blogs": top})
}
