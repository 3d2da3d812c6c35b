package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/yourusername/mc-server-panel/internal/config"
	"github.com/yourusername/mc-server-panel/internal/logging"
	"github.com/yourusername/mc-server-panel/internal/metrics"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// CORS middleware adds CORS headers
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	methods := "GET, POST, PUT, DELETE, OPTIONS"
	if len(cfg.AllowedMethods) > 0 {
		methods = strings.Join(cfg.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if IsOriginAllowed(origin, cfg.AllowedOrigins) {
			if origin != "" {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			} else if containsWildcard(cfg.AllowedOrigins) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			}
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", methods)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestID tags every request with an ID, reusing the caller's if present
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

// Logger is a custom logging middleware
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status))

		if path != "/health" || gin.Mode() == gin.DebugMode {
			logging.L().Info("http_request",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency", latency.String(),
				"ip", c.ClientIP(),
				"user", c.GetString(ContextUsername),
				"request_id", c.GetString("request_id"),
			)
		}
	}
}

// RateLimit applies a per-client token bucket
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	limiter := newRateLimiter(cfg.Enabled, cfg.RequestsPerMinute, cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.enabled || c.Request.URL.Path == "/health" {
			c.Next()
			return
		}

		if !limiter.allow(c.ClientIP()) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

// IsOriginAllowed reports whether origin is in the allow list. Requests
// without an Origin header are always allowed.
func IsOriginAllowed(origin string, allowedOrigins []string) bool {
	if origin == "" {
		return true
	}

	for _, allowedOrigin := range allowedOrigins {
		normalized := strings.TrimSpace(allowedOrigin)
		if normalized == "" {
			continue
		}
		if normalized == "*" || normalized == origin {
			return true
		}
	}

	return false
}

func containsWildcard(allowedOrigins []string) bool {
	for _, allowedOrigin := range allowedOrigins {
		if strings.TrimSpace(allowedOrigin) == "*" {
			return true
		}
	}
	return false
}

type rateLimiter struct {
	enabled     bool
	limit       rate.Limit
	burst       int
	mu          sync.Mutex
	entries     map[string]*rateLimitEntry
	lastCleanup time.Time
}

type rateLimitEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(enabled bool, requestsPerMinute, burst int) *rateLimiter {
	if burst <= 0 {
		burst = requestsPerMinute
	}
	return &rateLimiter{
		enabled:     enabled && requestsPerMinute > 0,
		limit:       rate.Limit(float64(requestsPerMinute) / 60),
		burst:       burst,
		entries:     make(map[string]*rateLimitEntry),
		lastCleanup: time.Now(),
	}
}

func (rl *rateLimiter) allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastCleanup) > time.Minute {
		rl.cleanup(now)
	}

	entry, exists := rl.entries[key]
	if !exists {
		entry = &rateLimitEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (rl *rateLimiter) cleanup(now time.Time) {
	for key, entry := range rl.entries {
		if now.Sub(entry.lastSeen) >= 5*time.Minute {
			delete(rl.entries, key)
		}
	}
	rl.lastCleanup = now
}
