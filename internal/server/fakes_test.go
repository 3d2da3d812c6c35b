package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/yourusername/mc-server-panel/internal/config"
	"github.com/yourusername/mc-server-panel/internal/properties"
)

type fakeProcess struct {
	pid int

	mutex    sync.Mutex
	lines    []string
	kills    int
	done     chan struct{}
	closed   bool
	onKill   func()
	exitOnIn string
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, done: make(chan struct{})}
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Alive() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return !p.closed
}

func (p *fakeProcess) SendLine(text string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return ErrNotRunning
	}
	p.lines = append(p.lines, text)
	if p.exitOnIn != "" && text == p.exitOnIn {
		p.exitLocked()
	}
	return nil
}

func (p *fakeProcess) Terminate() error {
	p.exit()
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mutex.Lock()
	p.kills++
	onKill := p.onKill
	p.exitLocked()
	p.mutex.Unlock()
	if onKill != nil {
		onKill()
	}
	return nil
}

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) exit() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.exitLocked()
}

func (p *fakeProcess) exitLocked() {
	if !p.closed {
		p.closed = true
		close(p.done)
	}
}

func (p *fakeProcess) sentLines() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]string(nil), p.lines...)
}

func (p *fakeProcess) killCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.kills
}

// fakeSpawner hands out fake processes. onSpawn runs for every spawn with the
// 1-based spawn number and can write files the way a booting server would.
type fakeSpawner struct {
	mutex     sync.Mutex
	specs     []ProcessSpec
	processes []*fakeProcess
	err       error
	onSpawn   func(n int, proc *fakeProcess)
}

func (s *fakeSpawner) Spawn(spec ProcessSpec) (Process, error) {
	s.mutex.Lock()
	if s.err != nil {
		s.mutex.Unlock()
		return nil, s.err
	}
	s.specs = append(s.specs, spec)
	proc := newFakeProcess(1000 + len(s.specs))
	s.processes = append(s.processes, proc)
	n := len(s.specs)
	onSpawn := s.onSpawn
	s.mutex.Unlock()

	if onSpawn != nil {
		onSpawn(n, proc)
	}
	return proc, nil
}

func (s *fakeSpawner) count() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.specs)
}

func (s *fakeSpawner) last() *fakeProcess {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if len(s.processes) == 0 {
		return nil
	}
	return s.processes[len(s.processes)-1]
}

type fakeSession struct {
	dialer *fakeDialer
}

func (s *fakeSession) Execute(command string) (string, error) {
	s.dialer.mutex.Lock()
	defer s.dialer.mutex.Unlock()
	s.dialer.commands = append(s.dialer.commands, command)
	if s.dialer.execErr != nil {
		return "", s.dialer.execErr
	}
	return "reply: " + command, nil
}

func (s *fakeSession) Close() error {
	s.dialer.mutex.Lock()
	defer s.dialer.mutex.Unlock()
	s.dialer.closed++
	return nil
}

type fakeDialer struct {
	mutex    sync.Mutex
	dials    int
	closed   int
	commands []string
	dialErr  error
	execErr  error
	configs  []config.GameConfig
}

func (d *fakeDialer) factory(game config.GameConfig) DialFunc {
	d.mutex.Lock()
	d.configs = append(d.configs, game)
	d.mutex.Unlock()
	return func(ctx context.Context) (RemoteSession, error) {
		d.mutex.Lock()
		defer d.mutex.Unlock()
		d.dials++
		if d.dialErr != nil {
			return nil, d.dialErr
		}
		return &fakeSession{dialer: d}, nil
	}
}

func (d *fakeDialer) stats() (dials, closed int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.dials, d.closed
}

type fakeProbe struct {
	status  *ProbeStatus
	players []string
	err     error
	calls   int
	listed  int
}

func (p *fakeProbe) Status(ctx context.Context) (*ProbeStatus, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.status, nil
}

func (p *fakeProbe) Players(ctx context.Context) ([]string, error) {
	p.listed++
	if p.err != nil {
		return nil, p.err
	}
	return p.players, nil
}

type harness struct {
	dir     string
	game    config.GameConfig
	spawner *fakeSpawner
	dialer  *fakeDialer
	probe   *fakeProbe
	sup     *Supervisor

	mutex  sync.Mutex
	events []Event
}

// newHarness prepares an install dir with a jar. withProperties controls
// whether server.properties exists before the first start.
func newHarness(t *testing.T, withProperties bool) *harness {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "server.jar"), []byte("jar"), 0644); err != nil {
		t.Fatalf("failed to write jar: %v", err)
	}
	if withProperties {
		writeFile(t, filepath.Join(dir, properties.FileName), defaultProperties)
	}

	game := config.DefaultGame()
	game.Path = dir
	game.PollInterval = "10ms"
	game.StartupTimeout = "5s"

	h := &harness{
		dir:     dir,
		game:    game,
		spawner: &fakeSpawner{},
		dialer:  &fakeDialer{},
		probe: &fakeProbe{
			status:  &ProbeStatus{Online: 2, Max: 20, Latency: 1500 * time.Microsecond},
			players: []string{"alice", "bob"},
		},
	}
	h.build()
	return h
}

func (h *harness) build() {
	h.sup = NewSupervisor(h.game, Options{
		Spawner:   h.spawner,
		NewRemote: h.dialer.factory,
		NewProbe:  func(config.GameConfig) StatusProbe { return h.probe },
	})
	h.sup.Observe(func(e Event) {
		h.mutex.Lock()
		defer h.mutex.Unlock()
		h.events = append(h.events, e)
	})
}

func (h *harness) countEvents(kind string) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	n := 0
	for _, e := range h.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.sup.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
}

const defaultProperties = "#Minecraft server properties\n" +
	"enable-query=false\n" +
	"enable-rcon=false\n" +
	"query.port=25565\n" +
	"rcon.password=\n" +
	"rcon.port=25575\n"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

var errRefused = errors.New("connection refused")
