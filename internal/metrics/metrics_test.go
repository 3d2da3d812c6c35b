package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yourusername/mc-server-panel/internal/server"
)

func TestObserveOperations(t *testing.T) {
	before := testutil.ToFloat64(lifecycleOperations.WithLabelValues(server.OpKill, "not_running"))

	Observe(server.Event{Kind: server.EventOperation, Op: server.OpKill, Err: server.ErrNotRunning, Duration: time.Millisecond})

	after := testutil.ToFloat64(lifecycleOperations.WithLabelValues(server.OpKill, "not_running"))
	if after != before+1 {
		t.Fatalf("expected counter to increase by 1, got %v -> %v", before, after)
	}
}

func TestObserveBootstrapAndChannel(t *testing.T) {
	restarts := testutil.ToFloat64(bootstrapRestarts)
	failures := testutil.ToFloat64(channelFailures.WithLabelValues("rcon"))

	Observe(server.Event{Kind: server.EventBootstrapRestart})
	Observe(server.Event{Kind: server.EventChannelFailure, Channel: "rcon"})

	if testutil.ToFloat64(bootstrapRestarts) != restarts+1 {
		t.Fatalf("expected bootstrap restart counted")
	}
	if testutil.ToFloat64(channelFailures.WithLabelValues("rcon")) != failures+1 {
		t.Fatalf("expected channel failure counted")
	}
}

func TestSetStateIsExclusive(t *testing.T) {
	Observe(server.Event{Kind: server.EventTransition, From: server.StatusOffline, To: server.StatusStarting})
	Observe(server.Event{Kind: server.EventTransition, From: server.StatusStarting, To: server.StatusOnline})

	if testutil.ToFloat64(serverState.WithLabelValues(server.StatusOnline)) != 1 {
		t.Fatalf("expected online gauge set")
	}
	if testutil.ToFloat64(serverState.WithLabelValues(server.StatusStarting)) != 0 {
		t.Fatalf("expected starting gauge cleared")
	}
}

func TestRecordBackup(t *testing.T) {
	before := testutil.ToFloat64(backupOperations.WithLabelValues("create", "success"))

	RecordBackup("create", 3*time.Second, 4096, nil)
	RecordBackup("create", time.Second, 1, errors.New("disk full"))

	if testutil.ToFloat64(backupOperations.WithLabelValues("create", "success")) != before+1 {
		t.Fatalf("expected successful backup counted")
	}
	if testutil.ToFloat64(lastBackupSize) != 4096 {
		t.Fatalf("failed backups must not change the last size")
	}
}

func TestResultLabels(t *testing.T) {
	cases := map[string]error{
		"success":            nil,
		"already_running":    fmt.Errorf("wrapped: %w", server.ErrAlreadyRunning),
		"remote_unavailable": fmt.Errorf("%w: refused", server.ErrRemoteUnavailable),
		"spawn_error":        &server.SpawnError{Command: "java", Err: errors.New("not found")},
		"error":              errors.New("boom"),
	}
	for want, err := range cases {
		if got := Result(err); got != want {
			t.Fatalf("Result(%v) = %s, want %s", err, got, want)
		}
	}
}

type fakeSource struct {
	report *server.StatusReport
	err    error
}

func (f *fakeSource) Status(ctx context.Context) (*server.StatusReport, error) {
	return f.report, f.err
}

func TestCollectorPublishesStatus(t *testing.T) {
	source := &fakeSource{report: &server.StatusReport{State: server.StatusOnline, Players: 7, LatencyMS: 12}}
	c := NewCollector(source, time.Hour)
	c.collect()

	if got := testutil.ToFloat64(serverPlayers); got != 7 {
		t.Fatalf("expected 7 players, got %v", got)
	}
	if got := testutil.ToFloat64(serverLatency); got != 0.012 {
		t.Fatalf("expected 0.012s latency, got %v", got)
	}
}

func TestCollectorCountsUnresponsive(t *testing.T) {
	before := testutil.ToFloat64(probeFailures)
	source := &fakeSource{
		report: &server.StatusReport{State: server.StatusOnline},
		err:    fmt.Errorf("%w: timeout", server.ErrUnresponsive),
	}
	NewCollector(source, time.Hour).collect()

	if testutil.ToFloat64(probeFailures) != before+1 {
		t.Fatalf("expected probe failure counted")
	}
}

func TestCollectorStartStop(t *testing.T) {
	c := NewCollector(&fakeSource{report: &server.StatusReport{State: server.StatusOffline}}, 5*time.Millisecond)
	c.Start()
	time.Sleep(20 * time.Millisecond)
	c.Stop()
}
