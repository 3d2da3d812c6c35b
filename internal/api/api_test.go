package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/mc-server-panel/internal/auth"
	"github.com/yourusername/mc-server-panel/internal/config"
	"github.com/yourusername/mc-server-panel/internal/server"
	"github.com/yourusername/mc-server-panel/internal/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type idleController struct{}

func (idleController) Start(ctx context.Context) error          { return nil }
func (idleController) Stop(ctx context.Context) (string, error) { return "", server.ErrNotRunning }
func (idleController) Kill(ctx context.Context) error           { return server.ErrNotRunning }
func (idleController) Restart(ctx context.Context) error        { return nil }
func (idleController) SendCommand(ctx context.Context, channel, command string) (string, error) {
	return "", server.ErrNotRunning
}
func (idleController) Status(ctx context.Context) (*server.StatusReport, error) {
	return &server.StatusReport{State: server.StatusOffline, Message: server.OfflineMessage}, nil
}
func (idleController) ProcessAlive(ctx context.Context) (bool, error) { return false, nil }
func (idleController) Snapshot() server.Snapshot {
	return server.Snapshot{State: server.StatusOffline}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	hash, err := auth.HashPassword("hunter2", 4)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.Users = map[string]string{"admin": hash}
	cfg.Security.RateLimit.Enabled = false
	store := config.NewStore(cfg, filepath.Join(t.TempDir(), "config.yaml"))

	router, shutdown := SetupRouter(Dependencies{
		Store:      store,
		Controller: idleController{},
		Hub:        websocket.NewHub(),
		OpTimeout:  time.Second,
	})
	t.Cleanup(shutdown)
	return router
}

func login(t *testing.T, router *gin.Engine, password string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var token auth.Token
	json.Unmarshal(rec.Body.Bytes(), &token)
	return rec, token.AccessToken
}

func TestParseDurationFallback(t *testing.T) {
	if result := parseDuration("not-a-duration"); result != 15*time.Minute {
		t.Fatalf("expected 15 minute fallback, got %v", result)
	}
	if result := parseDuration("1h"); result != time.Hour {
		t.Fatalf("expected 1h, got %v", result)
	}
}

func TestLoginAndProtectedRoutes(t *testing.T) {
	router := newTestRouter(t)

	rec, _ := login(t, router, "wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rec.Code)
	}

	rec, token := login(t, router, "hunter2")
	if rec.Code != http.StatusOK || token == "" {
		t.Fatalf("expected token, got %d %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/server/status", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/server/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), server.OfflineMessage) {
		t.Fatalf("unexpected status response %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" || rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected request id and security headers")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/server/stop", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Server is not running") {
		t.Fatalf("unexpected stop response %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/health", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}
