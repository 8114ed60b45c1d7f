package router

import (
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sitepulse/internal/handler"
	"github.com/sitepulse/internal/logging"
	"github.com/sitepulse/internal/metrics"
)

const sessionCookieName = "sitepulse_session"

// Options 配置中间件和 /metrics 端点。
type Options struct {
	SessionSecret      string
	Logger             *logrus.Logger
	Metrics            *metrics.Metrics
	Gatherer           prometheus.Gatherer
	WriteRatePerMinute int
	WriteBurst         int
}

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.GinMiddleware(opts.Logger))
	r.Use(requestMetrics(opts.Metrics))

	// 配置会话中间件
	secret := opts.SessionSecret
	if secret == "" {
		secret = "sitepulse-dev-secret"
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int((30 * time.Minute).Seconds()),
		HttpOnly: true,
	})
	r.Use(sessions.Sessions(sessionCookieName, store))

	r.GET("/ping", api.Ping)
	r.GET("/healthz", api.HealthCheck)
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(opts.Gatherer)))
	}

	apiGroup := r.Group("/api")
	apiGroup.Use(handler.WriteThrottle(opts.WriteRatePerMinute, opts.WriteBurst))
	{
		visitors := apiGroup.Group("/visitors")
		visitors.POST("/track-visitor", api.TrackVisitor)
		visitors.POST("/track-blog-view", api.TrackBlogView)
		visitors.GET("/stats", api.VisitorStats)
		visitors.GET("/blog/:slug/views", api.BlogViewCount)
		visitors.GET("/:visitorId", api.GetVisitor)

		apiGroup.POST("/pageviews", api.CreatePageview)
		apiGroup.GET("/pageviews", api.ListPageviews)
		apiGroup.GET("/pageviews/stats", api.PageviewStats)

		blog := apiGroup.Group("/blog")
		blog.GET("/analytics", api.TopBlogs)
		blog.POST("/analytics/:slug/view", api.RecordBlogView)
		blog.GET("/analytics/:slug", api.BlogAnalytics)
		blog.POST("/feedback/:slug", api.SubmitFeedback)
		blog.GET("/feedback/:slug", api.FeedbackSummary)
		blog.POST("/posts", api.CreateBlogPost)
		blog.GET("/posts/:slug", api.GetBlogPost)
	}

	return r
}

// requestMetrics 记录请求数和耗时，path 使用路由模板避免标签爆炸。
func requestMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
