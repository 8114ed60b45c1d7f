package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sitepulse/internal/store"
)

type trackBlogViewRequest struct {
	BlogSlug  string `json:"blogSlug" binding:"required"`
	BlogTitle string `json:"blogTitle"`
}

// TrackVisitor 根据请求头派生访客身份并记录一次访问。
func (a *API) TrackVisitor(c *gin.Context) {
	id := identify(c)

	visitor, err := a.tracker.TrackVisitor(c.Request.Context(), id.visitorInput(c), a.clock())
	if err != nil {
		a.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"visitorId": id.visitorID,
		"visitor":   visitor,
	})
}

// TrackBlogView 记录访客维度的文章浏览，同时刷新访客记录。
func (a *API) TrackBlogView(c *gin.Context) {
	var req trackBlogViewRequest
	if !bindJSON(c, &req, "blogSlug is required") {
		return
	}

	id := identify(c)
	now := a.clock()
	ctx := c.Request.Context()

	visitor, err := a.tracker.TrackVisitor(ctx, id.visitorInput(c), now)
	if err != nil {
		a.respondServiceError(c, err)
		return
	}

	result, err := a.tracker.TrackBlogView(ctx, store.BlogViewInput{
		VisitorID: id.visitorID,
		Slug:      req.BlogSlug,
		Title:     req.BlogTitle,
	}, now)
	if err != nil {
		a.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"visitorId": id.visitorID,
		"visitor":   visitor,
		"blogView":  result.View,
		"isNewView": result.IsNewView,
	})
}

// VisitorStats 返回访客与文章浏览的汇总。
func (a *API) VisitorStats(c *gin.Context) {
	stats, err := a.tracker.GetVisitorStats(c.Request.Context(), a.clock(), parseLimit(c, store.DefaultTopN))
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetVisitor 返回单个访客。
func (a *API) GetVisitor(c *gin.Context) {
	visitor, err := a.tracker.GetVisitor(c.Request.Context(), c.Param("visitorId"))
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"visitor": visitor})
}

// BlogViewCount 返回文章的访客维度浏览统计。
func (a *API) BlogViewCount(c *gin.Context) {
	count, err := a.tracker.GetBlogViewCount(c.Request.Context(), c.Param("slug"))
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, count)
}
