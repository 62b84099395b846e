package rest

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/vidaccounts/internal/common"
	"github.com/dmitrijs2005/vidaccounts/internal/logging"
	"github.com/dmitrijs2005/vidaccounts/internal/server/models"
	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const (
	currentUserKey     = "currentUser"
	rateLimitCacheSize = 10000
)

// ExtractAccessToken picks the access token from the request. The cookie
// wins unless preferHeader is set and an Authorization header is present.
func ExtractAccessToken(r *http.Request, preferHeader bool) string {
	var cookie string
	if ck, err := r.Cookie(common.AccessTokenCookieName); err == nil {
		cookie = strings.TrimSpace(ck.Value)
	}

	var header string
	if h, ok := strings.CutPrefix(r.Header.Get("Authorization"), common.AuthorizationScheme); ok {
		header = strings.TrimSpace(h)
	}

	if preferHeader && header != "" {
		return header
	}
	if cookie != "" {
		return cookie
	}
	return header
}

func (s *HTTPServer) requireAuth(c *gin.Context) {
	token := ExtractAccessToken(c.Request, s.preferHeader)

	user, err := s.accounts.Authenticate(c.Request.Context(), token)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.Set(currentUserKey, user)
	c.Next()
}

// CurrentUser returns the user attached by the auth middleware.
func CurrentUser(c *gin.Context) (*models.PublicUser, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.PublicUser)
	return u, ok && u != nil
}

// RequestLogger logs one line per request. Credentials never reach the log.
func RequestLogger(l logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if c.Request.Header.Get("Authorization") != "" {
			args = append(args, "authorization", "[REDACTED]")
		}
		if c.Request.Header.Get("Cookie") != "" {
			args = append(args, "cookie", "[REDACTED]")
		}
		if u, ok := CurrentUser(c); ok {
			args = append(args, "user_id", u.ID)
		}

		status := c.Writer.Status()
		switch {
		case status >= http.StatusInternalServerError:
			l.Error(c.Request.Context(), "http request", args...)
		case status >= http.StatusBadRequest:
			l.Warn(c.Request.Context(), "http request", args...)
		default:
			l.Info(c.Request.Context(), "http request", args...)
		}
	}
}

// NewRateLimitPerIP applies a token bucket per client IP. Buckets live in a
// bounded LRU, so idle clients are evicted instead of swept.
func NewRateLimitPerIP(rps float64, burst, cacheSize int) gin.HandlerFunc {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	if cacheSize <= 0 {
		cacheSize = rateLimitCacheSize
	}
	buckets, _ := lru.New[string, *rate.Limiter](cacheSize)

	var mu sync.Mutex
	limiterFor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if lim, ok := buckets.Get(ip); ok {
			return lim
		}
		lim := rate.NewLimiter(rate.Limit(rps), burst)
		buckets.Add(ip, lim)
		return lim
	}

	return func(c *gin.Context) {
		if !limiterFor(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apiError{
				StatusCode: http.StatusTooManyRequests,
				Code:       "RATE_LIMITED",
				Message:    "too many requests",
				Success:    false,
			})
			return
		}
		c.Next()
	}
}
