package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/mc-server-panel/internal/database"
	"github.com/yourusername/mc-server-panel/internal/models"
)

// HealthHandler reports liveness of the panel and the last known server state
type HealthHandler struct {
	controller Controller
	db         *database.DB
}

func NewHealthHandler(controller Controller, db *database.DB) *HealthHandler {
	return &HealthHandler{controller: controller, db: db}
}

// Health never takes the lifecycle lock
func (h *HealthHandler) Health(c *gin.Context) {
	snapshot := h.controller.Snapshot()
	resp := models.HealthResponse{
		Status:      "ok",
		ServerState: snapshot.State,
		ServerPID:   snapshot.PID,
		StateSince:  snapshot.Since,
		Time:        time.Now(),
	}

	if h.db != nil {
		if err := h.db.PingContext(c.Request.Context()); err != nil {
			resp.Status = "degraded"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		if version, err := h.db.SchemaVersion(); err == nil {
			resp.SchemaVersion = version
		}
	}

	c.JSON(http.StatusOK, resp)
}
