package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/yourusername/mc-server-panel/internal/config"
	"github.com/yourusername/mc-server-panel/internal/properties"
)

// RemoteFactory builds the remote console dialer for a configuration
type RemoteFactory func(game config.GameConfig) DialFunc

// ProbeFactory builds the status probe for a configuration
type ProbeFactory func(game config.GameConfig) StatusProbe

// Options wires the supervisor's collaborators
type Options struct {
	Spawner   Spawner
	NewRemote RemoteFactory
	NewProbe  ProbeFactory
	DB        *sql.DB
}

// Supervisor owns the single game server process. Every lifecycle operation
// runs while holding slot, so at most one operation touches the process at a
// time.
type Supervisor struct {
	slot      chan struct{}
	spawner   Spawner
	newRemote RemoteFactory
	newProbe  ProbeFactory
	db        *sql.DB

	// guarded by slot
	game   config.GameConfig
	proc   Process
	state  string
	remote CommandChannel
	probe  StatusProbe

	pendingMutex sync.Mutex
	pending      *config.GameConfig

	snapshotMutex sync.RWMutex
	snapshot      Snapshot

	observerMutex sync.RWMutex
	observers     []Observer
}

// NewSupervisor creates a supervisor in the offline state
func NewSupervisor(game config.GameConfig, opts Options) *Supervisor {
	s := &Supervisor{
		slot:      make(chan struct{}, 1),
		spawner:   opts.Spawner,
		newRemote: opts.NewRemote,
		newProbe:  opts.NewProbe,
		db:        opts.DB,
		game:      game.Clone(),
		state:     StatusOffline,
	}
	if s.spawner == nil {
		s.spawner = &ExecSpawner{}
	}
	s.rebuild()
	s.snapshot = Snapshot{State: StatusOffline, Since: time.Now(), Channel: s.game.CommandChannel}

	if last, pid, err := LastKnownStatus(s.db); err != nil {
		log.Printf("[Supervisor] Warning: %v", err)
	} else if last != StatusOffline {
		log.Printf("[Supervisor] Previous panel run left the server %s (PID %d); it is no longer managed", last, pid)
		if err := updateStatus(s.db, StatusOffline, "", 0); err != nil {
			log.Printf("[Supervisor] Warning: %v", err)
		}
	}
	return s
}

// Observe registers an event observer
func (s *Supervisor) Observe(fn Observer) {
	s.observerMutex.Lock()
	defer s.observerMutex.Unlock()
	s.observers = append(s.observers, fn)
}

// Snapshot returns the last known state without waiting for the lock
func (s *Supervisor) Snapshot() Snapshot {
	s.snapshotMutex.RLock()
	defer s.snapshotMutex.RUnlock()
	return s.snapshot
}

// Reconfigure replaces the game configuration. The command channel and status
// probe are rebuilt now, or when the running lifecycle operation releases the
// slot.
func (s *Supervisor) Reconfigure(game config.GameConfig) {
	next := game.Clone()
	s.pendingMutex.Lock()
	s.pending = &next
	s.pendingMutex.Unlock()

	select {
	case s.slot <- struct{}{}:
		s.release()
	default:
		log.Printf("[Supervisor] Configuration change queued until the current operation ends")
	}
}

// Game returns the configuration the supervisor currently runs with
func (s *Supervisor) Game(ctx context.Context) (config.GameConfig, error) {
	if err := s.acquire(ctx); err != nil {
		return config.GameConfig{}, err
	}
	defer s.release()
	return s.game.Clone(), nil
}

// Start launches the server. When server.properties does not exist yet the
// first boot only serves to create it: that process is killed once the file
// appears and the server is started exactly once more.
func (s *Supervisor) Start(ctx context.Context) (err error) {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	defer s.operation(ctx, OpStart, time.Now(), &err)

	return s.start(ctx)
}

func (s *Supervisor) start(ctx context.Context) error {
	if s.state != StatusOffline {
		return ErrAlreadyRunning
	}
	err := s.launch(ctx)
	if err != nil && s.state != StatusOffline && !s.proc.Alive() {
		s.setState(StatusOffline, err.Error())
	}
	return err
}

func (s *Supervisor) launch(ctx context.Context) error {
	if err := s.awaitExit(ctx); err != nil {
		return err
	}

	game := s.game
	ctx, cancel := context.WithTimeout(ctx, config.Duration(game.StartupTimeout, 10*time.Minute))
	defer cancel()

	log.Printf("[Supervisor] Starting server in %s...", game.Path)
	if err := prepareInstall(game); err != nil {
		return err
	}

	var ready *regexp.Regexp
	if game.ReadyPattern != "" {
		pattern, err := regexp.Compile(game.ReadyPattern)
		if err != nil {
			return fmt.Errorf("invalid ready pattern: %w", err)
		}
		ready = pattern
	}
	poll := config.Duration(game.PollInterval, time.Second)
	propsPath := filepath.Join(game.Path, properties.FileName)
	logPath := filepath.Join(game.Path, game.LatestLog)
	entries := properties.Required(game.RconPort, game.RconPassword, game.QueryPort, game.Properties)

	for attempt := 0; ; attempt++ {
		result, err := properties.Reconcile(propsPath, entries)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPropertiesIO, err)
		}
		if !result.Existed && attempt > 0 {
			s.setState(StatusOffline, "server.properties missing after bootstrap restart")
			return fmt.Errorf("%w: %s still missing after restart", ErrBootstrapFailed, properties.FileName)
		}
		if result.Modified() {
			log.Printf("[Supervisor] Updated %s: %v", properties.FileName, result.Changed)
		}

		mark := markLog(logPath)
		spec := javaCommand(game)
		proc, err := s.spawner.Spawn(spec)
		if err != nil {
			s.setState(StatusOffline, err.Error())
			var spawnErr *SpawnError
			if errors.As(err, &spawnErr) {
				return err
			}
			return &SpawnError{Command: spec.CommandLine(), Err: err}
		}
		s.proc = proc
		s.setState(StatusStarting, "")
		log.Printf("[Supervisor] Spawned %s (PID %d)", spec.CommandLine(), proc.PID())

		if result.Existed {
			if ready != nil {
				if err := s.awaitReady(ctx, proc, logPath, poll, mark, ready); err != nil {
					return err
				}
			}
			break
		}

		log.Printf("[Supervisor] No %s yet, waiting for the first boot to write it", properties.FileName)
		err = waitUntil(ctx, proc, game.Path, poll, func() bool { return fileExists(propsPath) })
		if errors.Is(err, errProcessExited) {
			s.setState(StatusOffline, "server exited during first boot")
			return fmt.Errorf("%w: server exited before writing %s", ErrBootstrapFailed, properties.FileName)
		}
		if err != nil {
			return fmt.Errorf("%w: waiting for %s: %v", ErrBootstrapTimeout, properties.FileName, err)
		}

		log.Printf("[Supervisor] %s created, restarting so remote console and query take effect", properties.FileName)
		if err := proc.Kill(); err != nil {
			return fmt.Errorf("%w: kill first boot: %v", ErrBootstrapFailed, err)
		}
		select {
		case <-proc.Done():
		case <-ctx.Done():
			return fmt.Errorf("%w: waiting for first boot to exit: %v", ErrBootstrapTimeout, ctx.Err())
		}
		s.emit(Event{Kind: EventBootstrapRestart, Op: OpStart, PID: proc.PID(), Actor: ActorFromContext(ctx)})
	}

	s.setState(StatusOnline, "")
	log.Printf("[Supervisor] Server online (PID %d)", s.proc.PID())
	return nil
}

func (s *Supervisor) awaitReady(ctx context.Context, proc Process, logPath string, poll time.Duration, mark logMark, ready *regexp.Regexp) error {
	log.Printf("[Supervisor] Waiting for %s to match %q", logPath, ready.String())
	err := waitUntil(ctx, proc, filepath.Dir(logPath), poll, func() bool { return mark.matches(ready) })
	if errors.Is(err, errProcessExited) {
		s.setState(StatusOffline, "server exited before becoming ready")
		return fmt.Errorf("%w: server exited before becoming ready", ErrBootstrapFailed)
	}
	if err != nil {
		return fmt.Errorf("%w: waiting for ready log line: %v", ErrBootstrapTimeout, err)
	}
	return nil
}

// awaitExit waits for a previously killed process to be reaped so that two
// processes never overlap
func (s *Supervisor) awaitExit(ctx context.Context) error {
	if s.proc == nil || !s.proc.Alive() {
		return nil
	}
	select {
	case <-s.proc.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: previous process (PID %d) has not exited", ErrAlreadyRunning, s.proc.PID())
	}
}

// Stop asks the server to shut down through the configured command channel.
// The state moves to offline once the process exits on its own.
func (s *Supervisor) Stop(ctx context.Context) (reply string, err error) {
	if err := s.acquire(ctx); err != nil {
		return "", err
	}
	defer s.release()
	defer s.operation(ctx, OpStop, time.Now(), &err)

	return s.stop(ctx)
}

func (s *Supervisor) stop(ctx context.Context) (string, error) {
	if s.state != StatusOnline {
		return "", ErrNotRunning
	}

	reply, err := s.send(ctx, s.game.CommandChannel, "stop")
	if err != nil {
		return "", err
	}
	s.setState(StatusStopping, "")
	log.Printf("[Supervisor] Stop command sent")
	return reply, nil
}

// Kill forces the process to exit and marks the server offline immediately.
// Killing a process that already exited is a no-op.
func (s *Supervisor) Kill(ctx context.Context) (err error) {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	defer s.operation(ctx, OpKill, time.Now(), &err)

	if s.proc == nil {
		return ErrNotRunning
	}
	if !s.proc.Alive() {
		log.Printf("[Supervisor] Kill requested but process already exited")
		return nil
	}

	log.Printf("[Supervisor] Killing server (PID %d)", s.proc.PID())
	if err := s.proc.Kill(); err != nil {
		return fmt.Errorf("failed to kill server: %w", err)
	}
	s.setState(StatusOffline, "killed")
	return nil
}

// Restart stops the server, waits for it to exit, then starts it again. An
// offline server is simply started. A server that ignores stop for longer than
// the stop timeout is left stopping with ErrStopTimeout so it can be killed.
func (s *Supervisor) Restart(ctx context.Context) (err error) {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	defer s.operation(ctx, OpRestart, time.Now(), &err)

	log.Printf("[Supervisor] Restarting server...")
	if s.state == StatusOnline {
		if _, err := s.stop(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}
	if s.state == StatusStopping {
		if err := s.awaitStop(ctx); err != nil {
			return err
		}
		s.setState(StatusOffline, "")
	}

	if err := s.start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Supervisor) awaitStop(ctx context.Context) error {
	timeout := config.Duration(s.game.StopTimeout, 2*time.Minute)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.proc.Done():
		return nil
	case <-timer.C:
		log.Printf("[Supervisor] Server (PID %d) still running %s after stop", s.proc.PID(), timeout)
		return fmt.Errorf("%w: still running after %s", ErrStopTimeout, timeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrStopTimeout, ctx.Err())
	}
}

// SendCommand relays a console command. An empty channel name uses the
// configured default.
func (s *Supervisor) SendCommand(ctx context.Context, channel, command string) (reply string, err error) {
	if err := s.acquire(ctx); err != nil {
		return "", err
	}
	defer s.release()
	defer s.operation(ctx, OpCommand, time.Now(), &err)

	if s.state != StatusOnline {
		return "", ErrNotRunning
	}
	if channel == "" {
		channel = s.game.CommandChannel
	}
	return s.send(ctx, channel, command)
}

func (s *Supervisor) send(ctx context.Context, channel, command string) (string, error) {
	var ch CommandChannel
	switch channel {
	case config.ChannelRcon:
		ch = s.remote
	case config.ChannelStdin:
		ch = &StdinChannel{Process: s.proc}
	default:
		return "", fmt.Errorf("unknown command channel %q", channel)
	}

	reply, err := ch.Send(ctx, command)
	if err != nil {
		s.emit(Event{Kind: EventChannelFailure, Op: OpCommand, Channel: channel, Command: command, Err: err, Actor: ActorFromContext(ctx)})
		return "", err
	}
	return reply, nil
}

// Status reports liveness and, for a live process, the status query answer.
// A probe failure yields ErrUnresponsive together with the partial report.
func (s *Supervisor) Status(ctx context.Context) (report *StatusReport, err error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	defer s.operation(ctx, OpStatus, time.Now(), &err)

	report = &StatusReport{State: s.state, CheckedAt: time.Now(), PlayerNames: []string{}}
	if s.proc == nil || !s.proc.Alive() || s.state == StatusOffline {
		report.State = StatusOffline
		report.Message = OfflineMessage
		return report, nil
	}

	report.PID = s.proc.PID()
	if err := probeReport(ctx, s.probe, report); err != nil {
		report.Message = "Server did not respond"
		return report, err
	}
	return report, nil
}

// ProcessAlive reports whether the owned process is running
func (s *Supervisor) ProcessAlive(ctx context.Context) (bool, error) {
	if err := s.acquire(ctx); err != nil {
		return false, err
	}
	defer s.release()
	return s.proc != nil && s.proc.Alive(), nil
}

// Offline runs fn while holding the lifecycle lock, so the server cannot be
// started until fn returns. It fails with ErrAlreadyRunning unless the
// process is gone.
func (s *Supervisor) Offline(ctx context.Context, fn func(game config.GameConfig) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	if s.state != StatusOffline || (s.proc != nil && s.proc.Alive()) {
		return ErrAlreadyRunning
	}
	return fn(s.game.Clone())
}

func (s *Supervisor) acquire(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
	default:
		select {
		case s.slot <- struct{}{}:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrBusy, ctx.Err())
		}
	}
	s.refresh()
	return nil
}

// release applies a queued configuration before freeing the slot. The slot is
// freed under pendingMutex so a concurrent Reconfigure either sees it free or
// leaves its change to the next release.
func (s *Supervisor) release() {
	s.pendingMutex.Lock()
	defer s.pendingMutex.Unlock()
	s.applyPendingLocked()
	<-s.slot
}

// refresh notices a process that exited on its own
func (s *Supervisor) refresh() {
	if s.proc == nil || s.proc.Alive() || s.state == StatusOffline {
		return
	}

	message := ""
	if exited, ok := s.proc.(interface{ ExitErr() error }); ok && exited.ExitErr() != nil {
		message = exited.ExitErr().Error()
	}
	log.Printf("[Supervisor] Server process %d exited (%s)", s.proc.PID(), describeExit(message))
	s.setState(StatusOffline, message)
}

func describeExit(message string) string {
	if message == "" {
		return "clean exit"
	}
	return message
}

func (s *Supervisor) applyPendingLocked() {
	pending := s.pending
	s.pending = nil
	if pending == nil {
		return
	}
	s.game = *pending
	s.rebuild()
	s.snapshotMutex.Lock()
	s.snapshot.Channel = s.game.CommandChannel
	s.snapshotMutex.Unlock()
	log.Printf("[Supervisor] Configuration applied (channel %s, rcon %s:%d, query %s:%d)",
		s.game.CommandChannel, s.game.ServerIP, s.game.RconPort, s.game.ServerIP, s.game.QueryPort)
}

func (s *Supervisor) rebuild() {
	var dial DialFunc
	if s.newRemote != nil {
		dial = s.newRemote(s.game)
	}
	s.remote = &RemoteChannel{Dial: dial}

	s.probe = nil
	if s.newProbe != nil {
		s.probe = s.newProbe(s.game)
	}
}

func (s *Supervisor) setState(state, message string) {
	from := s.state
	if from == state {
		return
	}
	s.state = state

	pid := 0
	if s.proc != nil && state != StatusOffline {
		pid = s.proc.PID()
	}

	s.snapshotMutex.Lock()
	s.snapshot.State = state
	s.snapshot.PID = pid
	s.snapshot.Since = time.Now()
	s.snapshotMutex.Unlock()

	if err := updateStatus(s.db, state, message, pid); err != nil {
		log.Printf("[Supervisor] Warning: %v", err)
	}
	s.emit(Event{Kind: EventTransition, From: from, To: state, PID: pid})
}

func (s *Supervisor) operation(ctx context.Context, op string, started time.Time, err *error) {
	s.emit(Event{
		Kind:     EventOperation,
		Op:       op,
		Actor:    ActorFromContext(ctx),
		Err:      *err,
		Duration: time.Since(started),
	})
}

func (s *Supervisor) emit(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	s.observerMutex.RLock()
	observers := s.observers
	s.observerMutex.RUnlock()
	for _, fn := range observers {
		fn(event)
	}
}

func javaCommand(game config.GameConfig) ProcessSpec {
	args := []string{"-Xms" + game.MinRAM, "-Xmx" + game.MaxRAM}
	args = append(args, game.ExtraArgs...)
	args = append(args, "-jar", game.Jar, "nogui")
	return ProcessSpec{Executable: game.Java, Args: args, Dir: game.Path}
}

// prepareInstall checks the jar and accepts the EULA if configured
func prepareInstall(game config.GameConfig) error {
	jar := filepath.Join(game.Path, game.Jar)
	if _, err := os.Stat(jar); err != nil {
		return &SpawnError{Command: jar, Err: fmt.Errorf("server jar not found: %w", err)}
	}

	if !game.AcceptEULA {
		return nil
	}
	eula := filepath.Join(game.Path, "eula.txt")
	if fileExists(eula) {
		return nil
	}
	log.Printf("[Supervisor] No eula.txt, creating one")
	if err := os.WriteFile(eula, []byte("eula=true\n"), 0644); err != nil {
		return fmt.Errorf("failed to write eula.txt: %w", err)
	}
	return nil
}
