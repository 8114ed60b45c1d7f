package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sitepulse/internal/service"
)

type createBlogPostRequest struct {
	Slug    string `json:"slug" binding:"required"`
	Title   string `json:"title" binding:"required"`
	Summary string `json:"summary"`
}

// CreateBlogPost 创建文章元数据，并建立对应的统计行。
func (a *API) CreateBlogPost(c *gin.Context) {
	var req createBlogPostRequest
	if !bindJSON(c, &req, "slug and title are required") {
		return
	}

	post, err := a.blogs.Create(c.Request.Context(), service.BlogInput{
		Slug:    req.Slug,
		Title:   req.Title,
		Summary: req.Summary,
	})
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"post": post})
}

// GetBlogPost 返回文章元数据。
func (a *API) GetBlogPost(c *gin.Context) {
	post, err := a.blogs.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post})
}
