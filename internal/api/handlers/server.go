package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/mc-server-panel/internal/config"
	"github.com/yourusername/mc-server-panel/internal/console"
	"github.com/yourusername/mc-server-panel/internal/logging"
	"github.com/yourusername/mc-server-panel/internal/models"
	"github.com/yourusername/mc-server-panel/internal/scheduler"
	"github.com/yourusername/mc-server-panel/internal/server"
)

const (
	defaultLogLines = 100
	maxLogLines     = 5000
)

// ServerHandler handles the lifecycle endpoints of the managed server
type ServerHandler struct {
	controller Controller
	store      *config.Store
	activity   *logging.ActivityLogger
	runs       *scheduler.RunStore
	nextRuns   func() map[string]time.Time
	timeout    time.Duration
	pendingOps sync.WaitGroup
}

// NewServerHandler creates a new server handler. timeout bounds the
// synchronous operations; activity, runs and nextRuns may be nil.
func NewServerHandler(
	controller Controller,
	store *config.Store,
	activity *logging.ActivityLogger,
	runs *scheduler.RunStore,
	nextRuns func() map[string]time.Time,
	timeout time.Duration,
) *ServerHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ServerHandler{
		controller: controller,
		store:      store,
		activity:   activity,
		runs:       runs,
		nextRuns:   nextRuns,
		timeout:    timeout,
	}
}

// WaitForCompletion waits for all pending background operations to finish
func (h *ServerHandler) WaitForCompletion() {
	h.pendingOps.Wait()
}

// StartServer starts the game server in the background
func (h *ServerHandler) StartServer(c *gin.Context) {
	if h.controller.Snapshot().State != server.StatusOffline {
		respondError(c, server.ErrAlreadyRunning)
		return
	}

	ctx := background(c)
	h.pendingOps.Add(1)
	go func() {
		defer h.pendingOps.Done()
		if err := h.controller.Start(ctx); err != nil {
			log.Printf("[API] Failed to start server: %v", err)
			return
		}
		log.Printf("[API] Server started successfully")
	}()

	c.JSON(http.StatusAccepted, models.OperationResponse{
		Operation: server.OpStart,
		Accepted:  true,
		Message:   "Server start initiated",
	})
}

// StopServer asks the game server to save and exit
func (h *ServerHandler) StopServer(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	reply, err := h.controller.Stop(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OperationResponse{
		Operation: server.OpStop,
		Accepted:  true,
		Message:   "Server is stopping",
		Reply:     strings.TrimSpace(reply),
	})
}

// KillServer forcibly terminates the game server
func (h *ServerHandler) KillServer(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.controller.Kill(ctx); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OperationResponse{
		Operation: server.OpKill,
		Accepted:  true,
		Message:   "Server killed",
	})
}

// RestartServer stops and starts the game server in the background
func (h *ServerHandler) RestartServer(c *gin.Context) {
	ctx := background(c)
	h.pendingOps.Add(1)
	go func() {
		defer h.pendingOps.Done()
		if err := h.controller.Restart(ctx); err != nil {
			log.Printf("[API] Failed to restart server: %v", err)
			return
		}
		log.Printf("[API] Server restarted successfully")
	}()

	c.JSON(http.StatusAccepted, models.OperationResponse{
		Operation: server.OpRestart,
		Accepted:  true,
		Message:   "Server restart initiated",
	})
}

// GetServerStatus reports lifecycle state plus the status query answer
func (h *ServerHandler) GetServerStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	report, err := h.controller.Status(ctx)
	if err != nil {
		status, body := errorResponse(err)
		if report != nil && errors.Is(err, server.ErrUnresponsive) {
			c.JSON(status, gin.H{"error": body.Error, "code": body.Code, "details": body.Details, "status": report})
			return
		}
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ExecuteCommand sends a console command over the requested channel
func (h *ServerHandler) ExecuteCommand(c *gin.Context) {
	var req models.CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Details: err.Error()})
		return
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Command is required"})
		return
	}
	if req.Channel != "" && req.Channel != config.ChannelStdin && req.Channel != config.ChannelRcon {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Unknown channel " + req.Channel})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	reply, err := h.controller.SendCommand(ctx, req.Channel, req.Command)
	channel := req.Channel
	if channel == "" && h.store != nil {
		channel = h.store.Game().CommandChannel
	}
	if h.activity != nil {
		if logErr := h.activity.LogCommandExecute(username(c), channel, req.Command, reply, err); logErr != nil {
			log.Printf("[API] Failed to record command: %v", logErr)
		}
	}
	if err != nil {
		status, body := errorResponse(err)
		c.JSON(status, models.CommandResponse{Success: false, Channel: channel, Error: body.Error})
		return
	}

	c.JSON(http.StatusOK, models.CommandResponse{Success: true, Output: reply, Channel: channel})
}

// GetLogs returns the tail of the server log, optionally filtered
func (h *ServerHandler) GetLogs(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	alive, err := h.controller.ProcessAlive(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	if !alive {
		respondError(c, server.ErrNotRunning)
		return
	}

	lines := defaultLogLines
	if raw := c.Query("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "lines must be a positive number"})
			return
		}
		lines = min(n, maxLogLines)
	}

	filter, err := console.NewOutputFilter(c.Query("filter"), c.Query("pattern"), c.Query("case_sensitive") == "true")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	path := console.LogPath(h.store.Game())
	read := lines
	if filter.FilterType != console.FilterNone {
		read = 0
	}
	all, err := console.ReadTail(path, read)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Log file not found", Details: path})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to read log", Details: err.Error()})
		return
	}

	out := filter.FilterLines(all)
	if len(out) > lines {
		out = out[len(out)-lines:]
	}
	c.JSON(http.StatusOK, models.LogsResponse{Path: path, Lines: out, Count: len(out)})
}

// GetActivity returns recent activity log entries
func (h *ServerHandler) GetActivity(c *gin.Context) {
	if h.activity == nil {
		c.JSON(http.StatusOK, gin.H{"activities": []*logging.Activity{}})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}
	activityType := strings.TrimSpace(c.Query("type"))

	activities, err := h.activity.GetActivities(activityType, time.Time{}, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to load activity log"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": activities})
}

// ScheduleView is a configured schedule with its last outcome
type ScheduleView struct {
	config.ScheduleConfig
	NextRun    *time.Time `json:"next_run,omitempty"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// GetSchedules lists scheduled commands
func (h *ServerHandler) GetSchedules(c *gin.Context) {
	records := map[string]*scheduler.RunRecord{}
	if h.runs != nil {
		list, err := h.runs.List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to load schedules"})
			return
		}
		for _, record := range list {
			records[record.Name] = record
		}
	}
	var next map[string]time.Time
	if h.nextRuns != nil {
		next = h.nextRuns()
	}

	views := []ScheduleView{}
	for i, schedule := range h.store.Get().Schedules {
		schedule.Name = scheduler.Name(i, schedule)
		view := ScheduleView{ScheduleConfig: schedule}
		if when, ok := next[schedule.Name]; ok {
			view.NextRun = &when
		}
		if record, ok := records[schedule.Name]; ok {
			view.LastRun = record.LastRun
			view.LastStatus = record.LastStatus
			view.LastError = record.LastError
		}
		views = append(views, view)
	}
	c.JSON(http.StatusOK, gin.H{"schedules": views})
}
