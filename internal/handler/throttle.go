package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sitepulse/internal/fingerprint"
	"golang.org/x/time/rate"
)

const (
	throttleMaxClients = 4096
	throttleIdleTTL    = 10 * time.Minute
)

// ipThrottle keeps one token bucket per client address; idle buckets expire.
type ipThrottle struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters *expirable.LRU[string, *rate.Limiter]
}

func newIPThrottle(requestsPerMinute, burst int) *ipThrottle {
	if burst <= 0 {
		burst = requestsPerMinute
	}
	return &ipThrottle{
		limit:    rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:    burst,
		limiters: expirable.NewLRU[string, *rate.Limiter](throttleMaxClients, nil, throttleIdleTTL),
	}
}

func (t *ipThrottle) allow(ip string) bool {
	t.mu.Lock()
	limiter, ok := t.limiters.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(t.limit, t.burst)
		t.limiters.Add(ip, limiter)
	}
	t.mu.Unlock()
	return limiter.Allow()
}

// WriteThrottle 对写接口按客户端 IP 限速，requestsPerMinute <= 0 时不做限制。
func WriteThrottle(requestsPerMinute, burst int) gin.HandlerFunc {
	if requestsPerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	throttle := newIPThrottle(requestsPerMinute, burst)
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		if !throttle.allow(fingerprint.ClientIP(c.Request)) {
			respondError(c, http.StatusTooManyRequests, CodeThrottled, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}
		c.Next()
	}
}
