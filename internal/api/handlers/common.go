package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/mc-server-panel/internal/api/middleware"
	"github.com/yourusername/mc-server-panel/internal/backup"
	"github.com/yourusername/mc-server-panel/internal/models"
	"github.com/yourusername/mc-server-panel/internal/server"
)

// Controller is the lifecycle surface the handlers drive
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (string, error)
	Kill(ctx context.Context) error
	Restart(ctx context.Context) error
	SendCommand(ctx context.Context, channel, command string) (string, error)
	Status(ctx context.Context) (*server.StatusReport, error)
	ProcessAlive(ctx context.Context) (bool, error)
	Snapshot() server.Snapshot
}

var _ Controller = (*server.Supervisor)(nil)

// Messages shown for lifecycle errors
const (
	msgRunning      = "Server is running"
	msgNotRunning   = "Server is not running"
	msgUnresponsive = "Server did not respond"
	msgBusy         = "Another server operation is in progress"
	msgBackupBusy   = "Another backup operation is in progress"
)

// errorResponse maps a lifecycle or backup error to a status code and body.
// Busy is a conflict and unknown backups are not found. Every other failure
// is a bad request.
func errorResponse(err error) (int, models.ErrorResponse) {
	body := models.ErrorResponse{Error: err.Error()}
	var spawnErr *server.SpawnError

	switch {
	case errors.Is(err, server.ErrBusy):
		return http.StatusConflict, models.ErrorResponse{Error: msgBusy, Code: "busy"}
	case errors.Is(err, backup.ErrInProgress):
		return http.StatusConflict, models.ErrorResponse{Error: msgBackupBusy, Code: "backup_in_progress"}
	case errors.Is(err, backup.ErrNotFound):
		return http.StatusNotFound, models.ErrorResponse{Error: "Backup not found", Code: "not_found"}
	case errors.Is(err, backup.ErrNotRestorable):
		body.Code = "not_restorable"
	case errors.Is(err, server.ErrAlreadyRunning):
		body.Error, body.Code = msgRunning, "already_running"
	case errors.Is(err, server.ErrNotRunning):
		body.Error, body.Code = msgNotRunning, "not_running"
	case errors.Is(err, server.ErrUnresponsive):
		body.Error, body.Code, body.Details = msgUnresponsive, "unresponsive", err.Error()
	case errors.Is(err, server.ErrBootstrapTimeout):
		body.Code = "bootstrap_timeout"
	case errors.Is(err, server.ErrStopTimeout):
		body.Code = "stop_timeout"
	case errors.Is(err, server.ErrBootstrapFailed):
		body.Code = "bootstrap_failed"
	case errors.Is(err, server.ErrRemoteUnavailable):
		body.Code = "remote_unavailable"
	case errors.Is(err, server.ErrPropertiesIO):
		body.Code = "properties_io"
	case errors.As(err, &spawnErr):
		body.Code = "spawn_failed"
	}
	return http.StatusBadRequest, body
}

func respondError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	c.JSON(status, body)
}

// background detaches an operation from the request while keeping its actor
func background(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func username(c *gin.Context) string {
	if name := middleware.Username(c); name != "" {
		return name
	}
	return "anonymous"
}
