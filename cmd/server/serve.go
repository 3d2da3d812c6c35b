package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/yourusername/mc-server-panel/internal/api"
	"github.com/yourusername/mc-server-panel/internal/backup"
	"github.com/yourusername/mc-server-panel/internal/config"
	"github.com/yourusername/mc-server-panel/internal/console"
	"github.com/yourusername/mc-server-panel/internal/database"
	"github.com/yourusername/mc-server-panel/internal/logging"
	"github.com/yourusername/mc-server-panel/internal/metrics"
	"github.com/yourusername/mc-server-panel/internal/query"
	"github.com/yourusername/mc-server-panel/internal/rcon"
	"github.com/yourusername/mc-server-panel/internal/scheduler"
	"github.com/yourusername/mc-server-panel/internal/server"
	"github.com/yourusername/mc-server-panel/internal/tlscert"
	"github.com/yourusername/mc-server-panel/internal/websocket"
)

const (
	operationTimeout = 30 * time.Second
	shutdownTimeout  = 30 * time.Second
	gameStopTimeout  = 60 * time.Second
)

func runServe() error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	if err := setupLogging(cfg); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logging.Close()

	if len(cfg.Auth.Users) == 0 {
		log.Printf("[Panel] No users configured, run 'mc-panel add-user' to create one")
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	log.Println("Running database migrations...")
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Println("Migrations completed successfully")

	activityLogger, err := logging.NewActivityLogger(db.DB, filepath.Join(cfg.Storage.DataDir, "logs", "activity"))
	if err != nil {
		return fmt.Errorf("failed to initialize activity logger: %w", err)
	}
	defer activityLogger.Close()

	store := config.NewStore(cfg, path)

	consoleWriter, err := logging.NewConsoleWriter(cfg.Storage.DataDir, cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to open console log: %w", err)
	}
	defer consoleWriter.Close()

	supervisor := server.NewSupervisor(cfg.Game, server.Options{
		Spawner:   &server.ExecSpawner{Output: consoleWriter},
		NewRemote: rcon.Factory,
		NewProbe:  query.Factory,
		DB:        db.DB,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Println("Initializing WebSocket hub...")
	hub := websocket.NewHub()
	go hub.Run(ctx)

	supervisor.Observe(activityLogger.ObserveServer)
	supervisor.Observe(metrics.Observe)
	supervisor.Observe(hub.ObserveServer)

	tailer := console.NewTailer(console.LogPath(cfg.Game), func(line string) {
		hub.Publish(websocket.RoomConsole, websocket.TypeConsoleLine, console.ParseLine(line))
	})
	store.Subscribe(supervisor.Reconfigure)
	store.Subscribe(func(game config.GameConfig) {
		tailer.SetPath(console.LogPath(game))
	})

	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		tailer.Run(ctx)
	}()

	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector(supervisor, time.Duration(cfg.Metrics.Interval)*time.Second)
		collector.Start()
		defer collector.Stop()
	}

	backups := backup.NewManager(cfg.Backup, supervisor, backup.NewStore(db.DB))
	backups.Observe(func(event backup.Event) {
		var size int64
		metadata := map[string]interface{}{"duration_ms": event.Duration.Milliseconds()}
		if event.Record != nil {
			size = event.Record.SizeBytes
			metadata["filename"] = event.Record.Filename
			metadata["size_bytes"] = size
		}
		metrics.RecordBackup(event.Action, event.Duration, size, event.Err)
		if err := activityLogger.LogBackup(event.Actor, event.Action, event.ID, metadata, event.Err); err != nil {
			log.Printf("[Backup] Failed to record activity: %v", err)
		}
	})

	runStore := scheduler.NewRunStore(db.DB)
	runner, err := scheduler.NewRunner(cfg.Schedules, supervisor, runStore)
	if err != nil {
		return fmt.Errorf("invalid schedules: %w", err)
	}
	runner.SetBackup(func(ctx context.Context) (string, error) {
		record, err := backups.CreateBackup(ctx)
		if err != nil {
			return "", err
		}
		return record.Filename, nil
	})
	runner.OnRun(func(run scheduler.Run) {
		err := run.Err
		if run.Skipped {
			err = server.ErrNotRunning
		}
		metrics.RecordScheduledRun(run.Name, err)
		if err := activityLogger.LogScheduleRun(run.Name, run.Command, run.Skipped, run.Err); err != nil {
			log.Printf("[Scheduler] Failed to record activity for %s: %v", run.Name, err)
		}
	})
	runner.Start(ctx)

	log.Println("All panel components initialized successfully")

	router, shutdownOps := api.SetupRouter(api.Dependencies{
		Store:      store,
		DB:         db,
		Controller: supervisor,
		Activity:   activityLogger,
		Hub:        hub,
		Runs:       runStore,
		NextRuns:   runner.Next,
		Backups:    backups,
		OpTimeout:  operationTimeout,
	})

	if cfg.Server.TLS.Enabled && cfg.Server.TLS.SelfSigned {
		created, err := tlscert.EnsureSelfSigned(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile, []string{cfg.Server.Host})
		if err != nil {
			return fmt.Errorf("failed to prepare TLS certificate: %w", err)
		}
		if created {
			log.Printf("[Panel] Generated self-signed certificate %s", cfg.Server.TLS.CertFile)
		}
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Starting panel on %s", httpServer.Addr)

		var err error
		if cfg.Server.TLS.Enabled {
			err = httpServer.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.Printf("Received %s, shutting down panel...", sig)
	case err := <-serveErr:
		runErr = fmt.Errorf("http server failed: %w", err)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Panel forced to shutdown: %v", err)
	}

	log.Println("Waiting for background operations...")
	shutdownOps()
	runner.Wait()
	background.Wait()

	if leaveRunning {
		log.Println("Leaving game server running")
	} else {
		stopGame(supervisor, gameStopTimeout)
	}

	log.Println("Panel exited")
	return runErr
}

// stopGame asks the game server to save and exit, and kills it if it has not
// exited within timeout
func stopGame(supervisor *server.Supervisor, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(server.WithActor(context.Background(), "panel"), timeout)
	defer cancel()

	if _, err := supervisor.Stop(ctx); err != nil {
		if errors.Is(err, server.ErrNotRunning) {
			if alive, _ := supervisor.ProcessAlive(ctx); !alive {
				return
			}
		} else {
			log.Printf("[Panel] Graceful stop failed: %v", err)
		}
	} else {
		log.Println("[Panel] Waiting for game server to exit...")
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		alive, err := supervisor.ProcessAlive(ctx)
		if err == nil && !alive {
			log.Println("[Panel] Game server stopped")
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			killCtx, killCancel := context.WithTimeout(server.WithActor(context.Background(), "panel"), 10*time.Second)
			defer killCancel()
			log.Println("[Panel] Game server did not exit in time, killing it")
			if err := supervisor.Kill(killCtx); err != nil && !errors.Is(err, server.ErrNotRunning) {
				log.Printf("[Panel] Kill failed: %v", err)
			}
			return
		}
	}
}
