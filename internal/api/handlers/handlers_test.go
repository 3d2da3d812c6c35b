package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/mc-server-panel/internal/config"
	"github.com/yourusername/mc-server-panel/internal/database"
	"github.com/yourusername/mc-server-panel/internal/logging"
	"github.com/yourusername/mc-server-panel/internal/models"
	"github.com/yourusername/mc-server-panel/internal/server"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeController struct {
	mu       sync.Mutex
	state    string
	alive    bool
	started  chan string
	startErr error
	stopErr  error
	killErr  error
	sendErr  error
	reply    string
	report   *server.StatusReport
	statErr  error
	commands []string
	channels []string
}

func newFakeController() *fakeController {
	return &fakeController{state: server.StatusOffline, started: make(chan string, 4)}
}

func (f *fakeController) Start(ctx context.Context) error {
	f.started <- server.ActorFromContext(ctx)
	return f.startErr
}

func (f *fakeController) Stop(ctx context.Context) (string, error) {
	return f.reply, f.stopErr
}

func (f *fakeController) Kill(ctx context.Context) error {
	return f.killErr
}

func (f *fakeController) Restart(ctx context.Context) error {
	f.started <- server.ActorFromContext(ctx)
	return nil
}

func (f *fakeController) SendCommand(ctx context.Context, channel, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	f.channels = append(f.channels, channel)
	return f.reply, f.sendErr
}

func (f *fakeController) Status(ctx context.Context) (*server.StatusReport, error) {
	return f.report, f.statErr
}

func (f *fakeController) ProcessAlive(ctx context.Context) (bool, error) {
	return f.alive, nil
}

func (f *fakeController) Snapshot() server.Snapshot {
	return server.Snapshot{State: f.state, Since: time.Now()}
}

type testEnv struct {
	ctl      *fakeController
	store    *config.Store
	activity *logging.ActivityLogger
	db       *database.DB
	router   *gin.Engine
	server   *ServerHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	db, err := database.NewDB(filepath.Join(root, "data", "panel.db"))
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	activity, err := logging.NewActivityLogger(db.DB, filepath.Join(root, "activity"))
	if err != nil {
		t.Fatalf("failed to create activity logger: %v", err)
	}
	t.Cleanup(func() { activity.Close() })

	cfg := config.Default()
	cfg.Game.Path = filepath.Join(root, "game")
	cfg.Schedules = []config.ScheduleConfig{{Name: "save", Spec: "@hourly", Command: "save-all"}}
	store := config.NewStore(cfg, filepath.Join(root, "configs", "config.yaml"))

	env := &testEnv{ctl: newFakeController(), store: store, activity: activity, db: db}
	env.server = NewServerHandler(env.ctl, store, activity, nil, func() map[string]time.Time {
		return map[string]time.Time{"save": time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	}, time.Second)
	configHandler := NewConfigHandler(store, activity)
	healthHandler := NewHealthHandler(env.ctl, db)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("username", "admin")
		c.Request = c.Request.WithContext(server.WithActor(c.Request.Context(), "admin"))
	})
	router.GET("/server/status", env.server.GetServerStatus)
	router.POST("/server/start", env.server.StartServer)
	router.POST("/server/stop", env.server.StopServer)
	router.POST("/server/kill", env.server.KillServer)
	router.POST("/server/restart", env.server.RestartServer)
	router.POST("/server/command", env.server.ExecuteCommand)
	router.GET("/server/logs", env.server.GetLogs)
	router.GET("/server/activity", env.server.GetActivity)
	router.GET("/server/schedules", env.server.GetSchedules)
	router.GET("/config", configHandler.GetConfig)
	router.PUT("/config", configHandler.UpdateConfig)
	router.GET("/health", healthHandler.Health)
	env.router = router
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
}

func TestErrorResponseMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{server.ErrBusy, http.StatusConflict, msgBusy},
		{server.ErrAlreadyRunning, http.StatusBadRequest, msgRunning},
		{fmt.Errorf("wrapped: %w", server.ErrNotRunning), http.StatusBadRequest, msgNotRunning},
		{fmt.Errorf("%w: timeout", server.ErrUnresponsive), http.StatusBadRequest, msgUnresponsive},
		{&server.SpawnError{Command: "java", Err: errors.New("not found")}, http.StatusBadRequest, "failed to spawn java: not found"},
	}
	for _, tc := range cases {
		status, body := errorResponse(tc.err)
		if status != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, status)
		}
		if body.Error != tc.msg {
			t.Fatalf("%v: expected %q, got %q", tc.err, tc.msg, body.Error)
		}
	}
}

func TestStartServerIsAsync(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/server/start", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	select {
	case actor := <-env.ctl.started:
		if actor != "admin" {
			t.Fatalf("expected admin actor, got %q", actor)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("start was not called")
	}
	env.server.WaitForCompletion()
}

func TestStartServerWhileRunning(t *testing.T) {
	env := newTestEnv(t)
	env.ctl.state = server.StatusOnline

	rec := env.do(t, http.MethodPost, "/server/start", nil)
	var body models.ErrorResponse
	decode(t, rec, &body)
	if rec.Code != http.StatusBadRequest || body.Error != msgRunning {
		t.Fatalf("unexpected response %d %+v", rec.Code, body)
	}
}

func TestStopAndKillErrors(t *testing.T) {
	env := newTestEnv(t)
	env.ctl.stopErr = server.ErrNotRunning
	env.ctl.killErr = server.ErrBusy

	rec := env.do(t, http.MethodPost, "/server/stop", nil)
	var body models.ErrorResponse
	decode(t, rec, &body)
	if rec.Code != http.StatusBadRequest || body.Error != msgNotRunning {
		t.Fatalf("unexpected stop response %d %+v", rec.Code, body)
	}

	rec = env.do(t, http.MethodPost, "/server/kill", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for busy kill, got %d", rec.Code)
	}
}

func TestStopReturnsReply(t *testing.T) {
	env := newTestEnv(t)
	env.ctl.reply = "Ok\n"

	rec := env.do(t, http.MethodPost, "/server/stop", nil)
	var body models.OperationResponse
	decode(t, rec, &body)
	if rec.Code != http.StatusOK || body.Reply != "Ok" || body.Operation != server.OpStop {
		t.Fatalf("unexpected response %d %+v", rec.Code, body)
	}
}

func TestExecuteCommand(t *testing.T) {
	env := newTestEnv(t)
	env.ctl.reply = "There are 0 of a max of 20 players online"

	rec := env.do(t, http.MethodPost, "/server/command", models.CommandRequest{Command: " list ", Channel: config.ChannelRcon})
	var body models.CommandResponse
	decode(t, rec, &body)
	if rec.Code != http.StatusOK || !body.Success || body.Output != env.ctl.reply || body.Channel != config.ChannelRcon {
		t.Fatalf("unexpected response %d %+v", rec.Code, body)
	}
	if env.ctl.commands[0] != "list" {
		t.Fatalf("expected trimmed command, got %q", env.ctl.commands[0])
	}

	activities, err := env.activity.GetActivities(logging.ActivityCommandExecute, time.Time{}, 10)
	if err != nil {
		t.Fatalf("activity query failed: %v", err)
	}
	if len(activities) != 1 || activities[0].Username != "admin" {
		t.Fatalf("expected recorded command, got %+v", activities)
	}
}

func TestExecuteCommandValidation(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodPost, "/server/command", map[string]string{"command": "list", "channel": "smoke"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown channel, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/server/command", map[string]string{"command": "  "}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank command, got %d", rec.Code)
	}
	if len(env.ctl.commands) != 0 {
		t.Fatalf("invalid requests must not reach the server")
	}
}

func TestExecuteCommandOffline(t *testing.T) {
	env := newTestEnv(t)
	env.ctl.sendErr = server.ErrNotRunning

	rec := env.do(t, http.MethodPost, "/server/command", models.CommandRequest{Command: "list"})
	var body models.CommandResponse
	decode(t, rec, &body)
	if rec.Code != http.StatusBadRequest || body.Success || body.Error != msgNotRunning {
		t.Fatalf("unexpected response %d %+v", rec.Code, body)
	}
	if body.Channel != config.ChannelStdin {
		t.Fatalf("expected default channel to be reported, got %q", body.Channel)
	}
}

func TestGetServerStatus(t *testing.T) {
	env := newTestEnv(t)
	env.ctl.report = &server.StatusReport{State: server.StatusOnline, Players: 2, Message: "The server has 2 players"}

	rec := env.do(t, http.MethodGet, "/server/status", nil)
	var report server.StatusReport
	decode(t, rec, &report)
	if rec.Code != http.StatusOK || report.Players != 2 {
		t.Fatalf("unexpected response %d %+v", rec.Code, report)
	}

	env.ctl.statErr = fmt.Errorf("%w: i/o timeout", server.ErrUnresponsive)
	rec = env.do(t, http.MethodGet, "/server/status", nil)
	var failed struct {
		Error  string               `json:"error"`
		Status *server.StatusReport `json:"status"`
	}
	decode(t, rec, &failed)
	if rec.Code != http.StatusBadRequest || failed.Error != msgUnresponsive || failed.Status == nil {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestGetLogs(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/server/logs", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 while not running, got %d", rec.Code)
	}

	env.ctl.alive = true
	rec = env.do(t, http.MethodGet, "/server/logs", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a log, got %d", rec.Code)
	}

	logPath := filepath.Join(env.store.Game().Path, "logs", "latest.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	content := "[10:00:00] [Server thread/INFO]: Starting\n" +
		"[10:00:01] [Server thread/WARN]: Can't keep up!\n" +
		"[10:00:02] [Server thread/INFO]: <Steve> hi\n" +
		"[10:00:03] [Server thread/ERROR]: Exception ticking world\n"
	if err := os.WriteFile(logPath, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	rec = env.do(t, http.MethodGet, "/server/logs?lines=2", nil)
	var logs models.LogsResponse
	decode(t, rec, &logs)
	if rec.Code != http.StatusOK || logs.Count != 2 {
		t.Fatalf("unexpected response %d %+v", rec.Code, logs)
	}

	rec = env.do(t, http.MethodGet, "/server/logs?filter=errors&lines=1", nil)
	decode(t, rec, &logs)
	if logs.Count != 1 || logs.Lines[0] != "[10:00:03] [Server thread/ERROR]: Exception ticking world" {
		t.Fatalf("unexpected filtered logs %+v", logs)
	}

	if rec := env.do(t, http.MethodGet, "/server/logs?filter=regex&pattern=(", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad pattern, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/server/logs?lines=-1", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad line count, got %d", rec.Code)
	}
}

func TestGetSchedules(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/server/schedules", nil)
	var body struct {
		Schedules []ScheduleView `json:"schedules"`
	}
	decode(t, rec, &body)
	if len(body.Schedules) != 1 || body.Schedules[0].Name != "save" || body.Schedules[0].NextRun == nil {
		t.Fatalf("unexpected schedules %+v", body.Schedules)
	}
}

func TestConfigGetAndUpdate(t *testing.T) {
	env := newTestEnv(t)
	subscribed := make(chan config.GameConfig, 1)
	env.store.Subscribe(func(g config.GameConfig) { subscribed <- g })

	rec := env.do(t, http.MethodGet, "/config", nil)
	var game config.GameConfig
	decode(t, rec, &game)
	if game.RconPassword != config.RedactedSecret {
		t.Fatalf("expected redacted password, got %q", game.RconPassword)
	}

	rec = env.do(t, http.MethodPut, "/config", map[string]interface{}{"rcon_port": 25580, "unknown": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	select {
	case g := <-subscribed:
		if g.RconPort != 25580 {
			t.Fatalf("subscriber saw %d", g.RconPort)
		}
	default:
		t.Fatalf("expected subscriber notification")
	}

	if rec := env.do(t, http.MethodPut, "/config", map[string]interface{}{"rcon_port": 0}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid port, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPut, "/config", map[string]interface{}{"unknown": true}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without known keys, got %d", rec.Code)
	}

	activities, err := env.activity.GetActivities(logging.ActivityConfigUpdate, time.Time{}, 10)
	if err != nil {
		t.Fatalf("activity query failed: %v", err)
	}
	if len(activities) != 2 {
		t.Fatalf("expected success and failure recorded, got %d", len(activities))
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	var body models.HealthResponse
	decode(t, rec, &body)
	if rec.Code != http.StatusOK || body.Status != "ok" || body.ServerState != server.StatusOffline || body.SchemaVersion == "" {
		t.Fatalf("unexpected health %d %+v", rec.Code, body)
	}
}
