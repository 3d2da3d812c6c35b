package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/mc-server-panel/internal/backup"
	"github.com/yourusername/mc-server-panel/internal/server"
)

// BackupService is the backup surface the handlers drive
type BackupService interface {
	Busy() bool
	List() ([]*backup.BackupRecord, error)
	Get(id string) (*backup.BackupRecord, error)
	CreateBackup(ctx context.Context) (*backup.BackupRecord, error)
	RestoreBackup(ctx context.Context, id string) error
	DeleteBackup(ctx context.Context, id string) error
}

var _ BackupService = (*backup.Manager)(nil)

// BackupHandler handles world backup endpoints
type BackupHandler struct {
	backups    BackupService
	controller Controller
	pending    *ServerHandler
}

// NewBackupHandler creates a new backup handler. Background creates and
// restores are tracked by the server handler's pending operations.
func NewBackupHandler(backups BackupService, controller Controller, pending *ServerHandler) *BackupHandler {
	return &BackupHandler{
		backups:    backups,
		controller: controller,
		pending:    pending,
	}
}

// ListBackups lists recorded backups, newest first
// GET /api/v1/server/backups
func (h *BackupHandler) ListBackups(c *gin.Context) {
	backups, err := h.backups.List()
	if err != nil {
		log.Printf("[API] Failed to list backups: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list backups"})
		return
	}
	if backups == nil {
		backups = []*backup.BackupRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"backups": backups,
		"count":   len(backups),
	})
}

// GetBackup retrieves a specific backup
// GET /api/v1/server/backups/:backupId
func (h *BackupHandler) GetBackup(c *gin.Context) {
	record, err := h.backups.Get(c.Param("backupId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// CreateBackup starts a backup in the background
// POST /api/v1/server/backups
func (h *BackupHandler) CreateBackup(c *gin.Context) {
	if h.backups.Busy() {
		respondError(c, backup.ErrInProgress)
		return
	}

	ctx := background(c)
	h.pending.pendingOps.Add(1)
	go func() {
		defer h.pending.pendingOps.Done()
		if _, err := h.backups.CreateBackup(ctx); err != nil {
			log.Printf("[API] Backup failed: %v", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Backup started",
	})
}

// RestoreBackup replaces the world with a backup in the background. The
// server must be offline.
// POST /api/v1/server/backups/:backupId/restore
func (h *BackupHandler) RestoreBackup(c *gin.Context) {
	backupID := c.Param("backupId")

	if h.controller.Snapshot().State != server.StatusOffline {
		respondError(c, server.ErrAlreadyRunning)
		return
	}
	record, err := h.backups.Get(backupID)
	if err != nil {
		respondError(c, err)
		return
	}
	if record.Status != backup.StatusCompleted {
		respondError(c, backup.ErrNotRestorable)
		return
	}
	if h.backups.Busy() {
		respondError(c, backup.ErrInProgress)
		return
	}

	ctx := background(c)
	h.pending.pendingOps.Add(1)
	go func() {
		defer h.pending.pendingOps.Done()
		if err := h.backups.RestoreBackup(ctx, backupID); err != nil {
			log.Printf("[API] Restore of %s failed: %v", backupID, err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message":   "Restore started",
		"backup_id": backupID,
	})
}

// DeleteBackup deletes a backup
// DELETE /api/v1/server/backups/:backupId
func (h *BackupHandler) DeleteBackup(c *gin.Context) {
	backupID := c.Param("backupId")

	if err := h.backups.DeleteBackup(c.Request.Context(), backupID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Backup deleted successfully",
		"backup_id": backupID,
	})
}
