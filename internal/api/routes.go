package api

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yourusername/mc-server-panel/internal/api/handlers"
	"github.com/yourusername/mc-server-panel/internal/api/middleware"
	"github.com/yourusername/mc-server-panel/internal/auth"
	"github.com/yourusername/mc-server-panel/internal/config"
	"github.com/yourusername/mc-server-panel/internal/database"
	"github.com/yourusername/mc-server-panel/internal/logging"
	"github.com/yourusername/mc-server-panel/internal/scheduler"
	"github.com/yourusername/mc-server-panel/internal/websocket"
)

// Dependencies wires the router to the rest of the panel
type Dependencies struct {
	Store      *config.Store
	DB         *database.DB
	Controller handlers.Controller
	Activity   *logging.ActivityLogger
	Hub        *websocket.Hub
	Runs       *scheduler.RunStore
	NextRuns   func() map[string]time.Time
	// Backups may be nil, which leaves the backup routes unregistered
	Backups handlers.BackupService
	// OpTimeout bounds synchronous lifecycle requests
	OpTimeout time.Duration
}

// SetupRouter configures and returns the HTTP router. The returned function
// waits for background start, restart, backup and restore operations.
func SetupRouter(deps Dependencies) (*gin.Engine, func()) {
	cfg := deps.Store.Get()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.Security.CORS))
	router.Use(middleware.RateLimit(cfg.Security.RateLimit))
	router.Use(middleware.SecurityHeaders())
	if cfg.Server.TLS.Enabled {
		router.Use(middleware.StrictTransport())
	}

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, parseDuration(cfg.Auth.AccessTokenDuration))

	authHandler := handlers.NewAuthHandler(jwtManager, deps.Store)
	serverHandler := handlers.NewServerHandler(deps.Controller, deps.Store, deps.Activity, deps.Runs, deps.NextRuns, deps.OpTimeout)
	configHandler := handlers.NewConfigHandler(deps.Store, deps.Activity)
	consoleHandler := handlers.NewConsoleHandler(deps.Controller, deps.Store, deps.Hub, deps.Activity, deps.OpTimeout)
	healthHandler := handlers.NewHealthHandler(deps.Controller, deps.DB)

	public := router.Group("/api/v1")
	{
		public.POST("/auth/login", authHandler.Login)
	}

	protected := router.Group("/api/v1")
	protected.Use(middleware.Auth(jwtManager))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)

		srv := protected.Group("/server")
		{
			srv.GET("/status", serverHandler.GetServerStatus)
			srv.POST("/start", serverHandler.StartServer)
			srv.POST("/stop", serverHandler.StopServer)
			srv.POST("/kill", serverHandler.KillServer)
			srv.POST("/restart", serverHandler.RestartServer)
			srv.POST("/command", serverHandler.ExecuteCommand)
			srv.GET("/logs", serverHandler.GetLogs)
			srv.GET("/activity", serverHandler.GetActivity)
			srv.GET("/schedules", serverHandler.GetSchedules)

			if deps.Backups != nil {
				backupHandler := handlers.NewBackupHandler(deps.Backups, deps.Controller, serverHandler)
				srv.GET("/backups", backupHandler.ListBackups)
				srv.POST("/backups", backupHandler.CreateBackup)
				srv.GET("/backups/:backupId", backupHandler.GetBackup)
				srv.POST("/backups/:backupId/restore", backupHandler.RestoreBackup)
				srv.DELETE("/backups/:backupId", backupHandler.DeleteBackup)
			}
		}

		protected.GET("/config", configHandler.GetConfig)
		protected.PUT("/config", configHandler.UpdateConfig)

		// token arrives as ?token= for browser websocket clients
		protected.GET("/ws/console", consoleHandler.HandleConsoleWebSocket)
	}

	router.GET("/health", healthHandler.Health)

	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(promhttp.Handler()))
	}

	shutdown := func() {
		log.Println("Waiting for background server operations to complete...")
		serverHandler.WaitForCompletion()
		log.Println("Background operations completed")
	}

	return router, shutdown
}

// parseDuration falls back to 15 minutes for an empty or invalid value
func parseDuration(duration string) time.Duration {
	d, err := time.ParseDuration(duration)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}
