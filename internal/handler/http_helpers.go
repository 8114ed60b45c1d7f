package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sitepulse/internal/service"
	"github.com/sitepulse/internal/store"
)

// Error codes returned next to the message.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeRateLimited      = "RATE_LIMITED"
	CodeThrottled        = "THROTTLED"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeInternal         = "INTERNAL"
)

// statusClientClosedRequest 客户端在响应前断开连接 (nginx 约定的 499)。
const statusClientClosedRequest = 499

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": message, "code": code})
}

// respondServiceError maps service and store errors to HTTP responses.
func (a *API) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidSlug),
		errors.Is(err, service.ErrInvalidFeedback),
		errors.Is(err, service.ErrInvalidBlog):
		respondError(c, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, store.ErrNotFound), errors.Is(err, service.ErrBlogNotFound):
		respondError(c, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, service.ErrBlogExists):
		respondError(c, http.StatusConflict, CodeConflict, err.Error())
	case errors.Is(err, service.ErrRateLimited):
		respondError(c, http.StatusTooManyRequests, CodeRateLimited, "反馈提交过于频繁，请稍后再试")
	case errors.Is(err, service.ErrStoreUnavailable):
		respondError(c, http.StatusServiceUnavailable, CodeStoreUnavailable, err.Error())
	case errors.Is(err, context.Canceled):
		a.log.WithField("path", c.FullPath()).Debug("request cancelled by client")
		c.AbortWithStatus(statusClientClosedRequest)
	default:
		c.Error(err)
		a.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		respondError(c, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, CodeValidation, message)
		return false
	}
	return true
}

// parseLimit reads ?limit=, falling back to def for missing or malformed values.
func parseLimit(c *gin.Context, def int) int {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}
