package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/mc-server-panel/internal/config"
	"github.com/yourusername/mc-server-panel/internal/logging"
	"github.com/yourusername/mc-server-panel/internal/models"
)

// ConfigHandler reads and updates the game section of the configuration
type ConfigHandler struct {
	store    *config.Store
	activity *logging.ActivityLogger
}

func NewConfigHandler(store *config.Store, activity *logging.ActivityLogger) *ConfigHandler {
	return &ConfigHandler{store: store, activity: activity}
}

// GetConfig returns the game configuration with secrets redacted
func (h *ConfigHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Game().Redacted())
}

// UpdateConfig merges the known keys of the body into the game configuration.
// The running server picks the change up on its next operation.
func (h *ConfigHandler) UpdateConfig(c *gin.Context) {
	var patch config.GamePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Details: err.Error()})
		return
	}
	fields := patch.Fields()
	if len(fields) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "No known configuration keys in request"})
		return
	}

	updated, err := h.store.UpdateGame(patch)
	if h.activity != nil {
		if logErr := h.activity.LogConfigUpdate(username(c), fields, err); logErr != nil {
			log.Printf("[API] Failed to record config update: %v", logErr)
		}
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, updated.Redacted())
}
