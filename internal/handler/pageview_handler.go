package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sitepulse/internal/store"
)

type createPageviewRequest struct {
	URL       string     `json:"url" binding:"required"`
	Title     string     `json:"title"`
	Referrer  string     `json:"referrer"`
	UserAgent string     `json:"userAgent"`
	Timestamp *time.Time `json:"timestamp"`
}

// CreatePageview 追加一条页面浏览记录，时间戳缺省为服务器时间。
func (a *API) CreatePageview(c *gin.Context) {
	var req createPageviewRequest
	if !bindJSON(c, &req, "url is required") {
		return
	}

	id := identify(c)
	in := store.PageviewInput{
		URL:       req.URL,
		Title:     req.Title,
		Referrer:  req.Referrer,
		UserAgent: req.UserAgent,
		VisitorID: id.visitorID,
		Timestamp: a.clock(),
	}
	if in.UserAgent == "" {
		in.UserAgent = id.headers.UserAgent
	}
	if in.Referrer == "" {
		in.Referrer = c.GetHeader("Referer")
	}
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		in.Timestamp = *req.Timestamp
	}

	pageview, err := a.tracker.CreatePageview(c.Request.Context(), in)
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"pageview": pageview})
}

// ListPageviews 返回最新的页面浏览记录和总数。
func (a *API) ListPageviews(c *gin.Context) {
	ctx := c.Request.Context()

	pageviews, err := a.tracker.GetPageviews(ctx, parseLimit(c, store.DefaultPageviewLimit))
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	total, err := a.tracker.GetTotalCount(ctx)
	if err != nil {
		a.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"pageviews": pageviews, "total": total})
}

// PageviewStats 返回页面浏览的汇总、时间窗口和热门页面。
func (a *API) PageviewStats(c *gin.Context) {
	stats, err := a.tracker.GetStats(c.Request.Context(), a.clock(), parseLimit(c, store.DefaultTopN))
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
