package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yourusername/mc-server-panel/internal/config"
	"github.com/yourusername/mc-server-panel/internal/server"
)

// CommandSender relays a console command to the game server
type CommandSender interface {
	SendCommand(ctx context.Context, channel, command string) (string, error)
}

// BackupFunc creates a world backup and returns the archive name
type BackupFunc func(ctx context.Context) (string, error)

// Run is the outcome of one scheduled command or backup
type Run struct {
	Name    string
	Action  string
	Command string
	Channel string
	Reply   string
	Err     error
	Skipped bool
	At      time.Time
}

// Runner executes console commands and backups on cron schedules. It polls
// on a fixed interval and runs every schedule whose next run time has passed.
type Runner struct {
	sender        CommandSender
	backup        BackupFunc
	store         *RunStore
	entries       []*entry
	interval      time.Duration
	timeout       time.Duration
	backupTimeout time.Duration
	onRun         []func(Run)
	wg            sync.WaitGroup

	// guards entry.next
	mutex sync.RWMutex
}

type entry struct {
	schedule config.ScheduleConfig
	parsed   cron.Schedule
	next     time.Time
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewRunner validates the schedules and computes their first run. store may
// be nil.
func NewRunner(schedules []config.ScheduleConfig, sender CommandSender, store *RunStore) (*Runner, error) {
	r := &Runner{
		sender:        sender,
		store:         store,
		interval:      time.Second,
		timeout:       30 * time.Second,
		backupTimeout: 30 * time.Minute,
	}

	now := time.Now()
	seen := map[string]bool{}
	for i, schedule := range schedules {
		schedule.Name = Name(i, schedule)
		if seen[schedule.Name] {
			return nil, fmt.Errorf("duplicate schedule name %q", schedule.Name)
		}
		seen[schedule.Name] = true
		if schedule.Action == "" {
			schedule.Action = config.ActionCommand
		}

		parsed, err := parser.Parse(schedule.Spec)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: invalid spec %q: %w", schedule.Name, schedule.Spec, err)
		}
		r.entries = append(r.entries, &entry{
			schedule: schedule,
			parsed:   parsed,
			next:     parsed.Next(now),
		})
	}

	return r, nil
}

// Name returns the schedule's name, or a positional one when it has none
func Name(index int, schedule config.ScheduleConfig) string {
	if schedule.Name != "" {
		return schedule.Name
	}
	return fmt.Sprintf("schedule-%d", index+1)
}

// SetBackup sets the function backup schedules run
func (r *Runner) SetBackup(fn BackupFunc) {
	r.backup = fn
}

// OnRun registers a callback invoked after every run
func (r *Runner) OnRun(fn func(Run)) {
	r.onRun = append(r.onRun, fn)
}

// Start polls until ctx is cancelled. Wait blocks until the loop has exited.
func (r *Runner) Start(ctx context.Context) {
	if len(r.entries) == 0 {
		return
	}
	log.Printf("[Scheduler] Starting with %d schedule(s)", len(r.entries))

	ticker := time.NewTicker(r.interval)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Printf("[Scheduler] Stopping schedule runner")
				return
			case now := <-ticker.C:
				r.runDue(ctx, now)
			}
		}
	}()
}

// Wait blocks until the polling loop started by Start has returned
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Next returns the next run time per schedule name
func (r *Runner) Next() map[string]time.Time {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make(map[string]time.Time, len(r.entries))
	for _, e := range r.entries {
		out[e.schedule.Name] = e.next
	}
	return out
}

func (r *Runner) runDue(ctx context.Context, now time.Time) {
	var due []*entry
	r.mutex.Lock()
	for _, e := range r.entries {
		if now.Before(e.next) {
			continue
		}
		e.next = e.parsed.Next(now)
		due = append(due, e)
	}
	r.mutex.Unlock()

	for _, e := range due {
		r.execute(ctx, e, now)
	}
}

func (r *Runner) execute(ctx context.Context, e *entry, now time.Time) {
	run := Run{
		Name:    e.schedule.Name,
		Action:  e.schedule.Action,
		Command: e.schedule.Command,
		Channel: e.schedule.Channel,
		At:      now,
	}

	if e.schedule.Action == config.ActionBackup {
		r.runBackup(ctx, &run)
	} else {
		r.runCommand(ctx, &run)
	}

	if r.store != nil {
		if err := r.store.Record(run, e.next); err != nil {
			log.Printf("[Scheduler] Failed to record run of %s: %v", e.schedule.Name, err)
		}
	}
	for _, fn := range r.onRun {
		fn(run)
	}
}

func (r *Runner) runCommand(ctx context.Context, run *Run) {
	ctx, cancel := context.WithTimeout(server.WithActor(ctx, "scheduler"), r.timeout)
	defer cancel()

	reply, err := r.sender.SendCommand(ctx, run.Channel, run.Command)
	switch {
	case errors.Is(err, server.ErrNotRunning):
		run.Skipped = true
		log.Printf("[Scheduler] Skipping %s: server is not running", run.Name)
	case err != nil:
		run.Err = err
		log.Printf("[Scheduler] %s failed: %v", run.Name, err)
	default:
		run.Reply = strings.TrimSpace(reply)
		log.Printf("[Scheduler] Ran %s (%s)", run.Name, run.Command)
	}
}

// runBackup runs whether or not the server is online
func (r *Runner) runBackup(ctx context.Context, run *Run) {
	run.Command = config.ActionBackup
	if r.backup == nil {
		run.Err = errors.New("backups are not available")
		log.Printf("[Scheduler] %s failed: %v", run.Name, run.Err)
		return
	}

	ctx, cancel := context.WithTimeout(server.WithActor(ctx, "scheduler"), r.backupTimeout)
	defer cancel()

	filename, err := r.backup(ctx)
	if err != nil {
		run.Err = err
		log.Printf("[Scheduler] %s failed: %v", run.Name, err)
		return
	}
	run.Reply = filename
	log.Printf("[Scheduler] Ran %s (backup %s)", run.Name, filename)
}
