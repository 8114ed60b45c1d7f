package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sitepulse/internal/fingerprint"
	"github.com/sitepulse/internal/service"
)

type submitFeedbackRequest struct {
	Emoji     string `json:"emoji" binding:"required"`
	Message   string `json:"message"`
	URL       string `json:"url"`
	UserAgent string `json:"userAgent"`
}

// SubmitFeedback 写入表情反馈。身份来自 X-Fingerprint 请求头，缺失时使用派生指纹；
// 限流按客户端 IP 的哈希计算。
func (a *API) SubmitFeedback(c *gin.Context) {
	var req submitFeedbackRequest
	if !bindJSON(c, &req, "emoji is required") {
		return
	}

	id := identify(c)
	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = id.headers.UserAgent
	}

	feedback, err := a.feedback.Submit(c.Request.Context(), service.FeedbackInput{
		Slug:        c.Param("slug"),
		Fingerprint: id.feedbackFingerprint(c),
		IPHash:      fingerprint.HashIP(id.headers.IP, a.salt),
		Emoji:       req.Emoji,
		Message:     req.Message,
		URL:         req.URL,
		UserAgent:   userAgent,
	}, a.clock())
	if err != nil {
		a.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"feedback": feedback})
}

// FeedbackSummary 返回文章的表情统计。
func (a *API) FeedbackSummary(c *gin.Context) {
	summary, err := a.feedback.Summary(c.Request.Context(), c.Param("slug"))
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
