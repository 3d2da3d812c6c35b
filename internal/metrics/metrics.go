package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/yourusername/mc-server-panel/internal/server"
)

var states = []string{server.StatusOffline, server.StatusStarting, server.StatusOnline, server.StatusStopping}

var (
	// lifecycleOperations counts supervisor operations by outcome
	lifecycleOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpanel_lifecycle_operations_total",
			Help: "Total lifecycle operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	// lifecycleDuration tracks how long operations hold the lifecycle lock
	lifecycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcpanel_lifecycle_operation_duration_seconds",
			Help:    "Duration of lifecycle operations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"operation"},
	)

	// bootstrapRestarts counts first boots killed after writing server.properties
	bootstrapRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mcpanel_bootstrap_restarts_total",
			Help: "Total automatic restarts after the first boot created server.properties",
		},
	)

	// channelFailures counts failed console commands by channel
	channelFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpanel_command_channel_failures_total",
			Help: "Total failed console commands by channel",
		},
		[]string{"channel"},
	)

	// serverState is 1 for the current lifecycle state and 0 otherwise
	serverState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mcpanel_server_state",
			Help: "Current lifecycle state of the game server",
		},
		[]string{"state"},
	)

	serverPlayers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcpanel_server_players",
			Help: "Players online according to the last status query",
		},
	)

	serverLatency = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcpanel_server_query_latency_seconds",
			Help: "Round trip time of the last status query",
		},
	)

	// probeFailures counts status queries that got no answer from a live server
	probeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mcpanel_status_probe_failures_total",
			Help: "Total status queries a running server did not answer",
		},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpanel_http_requests_total",
			Help: "Total API requests by method, route and status code",
		},
		[]string{"method", "route", "status"},
	)

	scheduledRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpanel_scheduled_command_runs_total",
			Help: "Total scheduled command runs by schedule and result",
		},
		[]string{"schedule", "result"},
	)

	backupOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpanel_backup_operations_total",
			Help: "Total backup operations by action and result",
		},
		[]string{"action", "result"},
	)

	backupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcpanel_backup_duration_seconds",
			Help:    "Backup operation duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"action"},
	)

	lastBackupSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcpanel_last_backup_size_bytes",
			Help: "Size of the last completed backup archive",
		},
	)
)

// Observe records supervisor events
func Observe(event server.Event) {
	switch event.Kind {
	case server.EventOperation:
		lifecycleOperations.WithLabelValues(event.Op, Result(event.Err)).Inc()
		lifecycleDuration.WithLabelValues(event.Op).Observe(event.Duration.Seconds())
	case server.EventTransition:
		SetState(event.To)
	case server.EventBootstrapRestart:
		bootstrapRestarts.Inc()
	case server.EventChannelFailure:
		channelFailures.WithLabelValues(event.Channel).Inc()
	}
}

// SetState marks state as the current lifecycle state
func SetState(state string) {
	for _, s := range states {
		value := 0.0
		if s == state {
			value = 1
		}
		serverState.WithLabelValues(s).Set(value)
	}
}

// RecordHTTPRequest counts one API request
func RecordHTTPRequest(method, route, status string) {
	httpRequests.WithLabelValues(method, route, status).Inc()
}

// RecordScheduledRun counts one scheduled command run
func RecordScheduledRun(schedule string, err error) {
	scheduledRuns.WithLabelValues(schedule, Result(err)).Inc()
}

// RecordBackup counts one backup operation. sizeBytes is only used for
// successful creates.
func RecordBackup(action string, duration time.Duration, sizeBytes int64, err error) {
	backupOperations.WithLabelValues(action, Result(err)).Inc()
	if duration > 0 {
		backupDuration.WithLabelValues(action).Observe(duration.Seconds())
	}
	if action == "create" && err == nil {
		lastBackupSize.Set(float64(sizeBytes))
	}
}

// Result maps an operation error to a low cardinality label
func Result(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, server.ErrAlreadyRunning):
		return "already_running"
	case errors.Is(err, server.ErrNotRunning):
		return "not_running"
	case errors.Is(err, server.ErrBootstrapTimeout):
		return "bootstrap_timeout"
	case errors.Is(err, server.ErrBootstrapFailed):
		return "bootstrap_failed"
	case errors.Is(err, server.ErrRemoteUnavailable):
		return "remote_unavailable"
	case errors.Is(err, server.ErrUnresponsive):
		return "unresponsive"
	case errors.Is(err, server.ErrBusy):
		return "busy"
	case errors.Is(err, server.ErrPropertiesIO):
		return "properties_io"
	}
	var spawnErr *server.SpawnError
	if errors.As(err, &spawnErr) {
		return "spawn_error"
	}
	return "error"
}
