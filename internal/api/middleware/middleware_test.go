package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/mc-server-panel/internal/auth"
	"github.com/yourusername/mc-server-panel/internal/config"
	"github.com/yourusername/mc-server-panel/internal/server"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIsOriginAllowed(t *testing.T) {
	allowed := []string{"https://panel.example.com"}

	if !IsOriginAllowed("https://panel.example.com", allowed) {
		t.Fatalf("expected origin to be allowed")
	}
	if IsOriginAllowed("https://evil.example.com", allowed) {
		t.Fatalf("expected unknown origin to be rejected")
	}
	if !IsOriginAllowed("https://anything.local", []string{"*"}) {
		t.Fatalf("expected wildcard allowlist to permit origin")
	}
	if !IsOriginAllowed("", allowed) {
		t.Fatalf("expected empty origin to be allowed")
	}
}

func TestContainsWildcard(t *testing.T) {
	if !containsWildcard([]string{" * "}) {
		t.Fatalf("expected wildcard to be detected")
	}
	if containsWildcard([]string{"https://example.com"}) {
		t.Fatalf("did not expect wildcard to be detected")
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := newRateLimiter(true, 60, 2)
	key := "127.0.0.1"

	if !limiter.allow(key) || !limiter.allow(key) {
		t.Fatalf("expected burst to be allowed")
	}
	if limiter.allow(key) {
		t.Fatalf("expected third request to be rate limited")
	}
	if !limiter.allow("10.0.0.2") {
		t.Fatalf("expected other clients to have their own bucket")
	}

	limiter.entries["10.0.0.2"].lastSeen = time.Now().Add(-10 * time.Minute)
	limiter.cleanup(time.Now())
	if _, ok := limiter.entries["10.0.0.2"]; ok {
		t.Fatalf("expected idle client to be dropped")
	}
}

func TestRateLimitDisabled(t *testing.T) {
	if newRateLimiter(false, 60, 0).enabled || newRateLimiter(true, 0, 0).enabled {
		t.Fatalf("expected limiter to be disabled")
	}
}

func TestAuthMiddleware(t *testing.T) {
	manager := auth.NewJWTManager("test-secret", time.Minute)
	token, err := manager.Generate("admin")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	router := gin.New()
	router.GET("/whoami", Auth(manager), func(c *gin.Context) {
		c.String(http.StatusOK, Username(c)+"/"+server.ActorFromContext(c.Request.Context()))
	})

	cases := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"malformed", "Token abc", "", http.StatusUnauthorized},
		{"invalid", "Bearer abc", "", http.StatusUnauthorized},
		{"header", "Bearer " + token.AccessToken, "", http.StatusOK},
		{"query", "", "?token=" + token.AccessToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if tc.status == http.StatusOK && rec.Body.String() != "admin/admin" {
				t.Fatalf("unexpected body %q", rec.Body.String())
			}
		})
	}
}

func TestRequestIDAndCORS(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), CORS(config.CORSConfig{AllowedOrigins: []string{"https://panel.example.com"}}))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://panel.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://panel.example.com" {
		t.Fatalf("unexpected allow origin %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get(RequestIDHeader) != "abc" {
		t.Fatalf("unexpected preflight response %d %q", rec.Code, rec.Header().Get(RequestIDHeader))
	}
}
