package tasks

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roelfdiedericks/llamar/internal/config"
	. "github.com/roelfdiedericks/llamar/internal/logging"
)

// DefaultStepInterval is how often the daemon polls for due tasks when
// nothing else wakes it.
const DefaultStepInterval = time.Minute

// wakeDebounce coalesces bursts of database file events before a step.
const wakeDebounce = 500 * time.Millisecond

// RunTaskFunc executes one due task and reports the outcome. The
// scheduler records and notifies; it never interprets the prompt
// itself.
type RunTaskFunc func(ctx context.Context, task Task, cfg *config.Config) RunOutcome

// Scheduler queries due tasks, runs them, records the runs, and routes
// outcomes to notification sinks.
type Scheduler struct {
	store *Store
	cfg   func() *config.Config
	run   RunTaskFunc
	now   func() time.Time

	sinkMu sync.RWMutex
	sinks  map[string]Sink

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewScheduler wires a scheduler to its store and run function. cfg is
// consulted on every run so config reloads take effect.
func NewScheduler(store *Store, cfg func() *config.Config, run RunTaskFunc) *Scheduler {
	return &Scheduler{
		store: store,
		cfg:   cfg,
		run:   run,
		now:   time.Now,
		sinks: map[string]Sink{"console": ConsoleSink{}},
	}
}

// RegisterSink makes a named sink available to tasks. Registering an
// existing name replaces it.
func (s *Scheduler) RegisterSink(name string, sink Sink) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	s.sinks[name] = sink
}

func (s *Scheduler) sink(name string) Sink {
	s.sinkMu.RLock()
	defer s.sinkMu.RUnlock()
	if sink, ok := s.sinks[strings.TrimSpace(name)]; ok {
		return sink
	}
	return s.sinks["console"]
}

// Step runs every task due at this instant and returns how many ran.
func (s *Scheduler) Step(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.store.DueTasks(now)
	if err != nil {
		return 0, fmt.Errorf("query due tasks: %w", err)
	}

	ran := 0
	for _, task := range due {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}
		s.runOne(ctx, task)
		ran++
	}
	return ran, nil
}

func (s *Scheduler) runOne(ctx context.Context, task *Task) {
	L_info("tasks: running", "task", task.Name, "id", task.ID)
	started := s.now()

	var outcome RunOutcome
	if s.run == nil {
		outcome = RunOutcome{Error: "no run function configured"}
	} else {
		outcome = s.run(ctx, *task, s.cfg())
	}
	finished := s.now()

	run := Run{
		TaskID:     task.ID,
		StartedAt:  started,
		FinishedAt: finished,
		Status:     RunOK,
		Result:     outcome.Result,
		Error:      outcome.Error,
		TokensUsed: outcome.TokensUsed,
	}
	if !outcome.Success {
		run.Status = RunError
	}

	if err := s.store.RecordRun(task, run); err != nil {
		L_error("tasks: failed to record run", "task", task.Name, "error", err)
	}
	if err := s.sink(task.NotificationSink).Notify(task, outcome); err != nil {
		L_warn("tasks: notification failed", "task", task.Name, "sink", task.NotificationSink, "error", err)
	}
}

// Start launches the daemon loop: a ticker plus a file watcher on the
// task database, so externally added tasks are picked up between ticks.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	if interval <= 0 {
		interval = DefaultStepInterval
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		L_warn("tasks: failed to create file watcher, external changes won't wake the scheduler", "error", err)
		watcher = nil
	} else if err := watcher.Add(filepath.Dir(s.store.Path())); err != nil {
		L_warn("tasks: failed to watch database directory", "error", err)
		watcher.Close()
		watcher = nil
	}

	L_info("tasks: scheduler started", "interval", interval, "db", s.store.Path())
	go s.loop(ctx, interval, watcher)
	return nil
}

// Stop halts the daemon loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh
	L_info("tasks: scheduler stopped")
}

// IsRunning reports whether the daemon loop is live.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, watcher *fsnotify.Watcher) {
	defer close(s.doneCh)
	if watcher != nil {
		defer watcher.Close()
	}

	var watcherEvents <-chan fsnotify.Event
	var watcherErrors <-chan error
	if watcher != nil {
		watcherEvents = watcher.Events
		watcherErrors = watcher.Errors
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	dbBase := filepath.Base(s.store.Path())

	var wake *time.Timer
	var wakeC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return

		case <-ticker.C:
			s.step(ctx)

		case event := <-watcherEvents:
			// WAL mode means writes land in -wal/-shm siblings.
			if !strings.HasPrefix(filepath.Base(event.Name), dbBase) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if wake == nil {
				wake = time.NewTimer(wakeDebounce)
				wakeC = wake.C
			} else {
				wake.Reset(wakeDebounce)
			}

		case <-wakeC:
			L_trace("tasks: woken by database change")
			s.step(ctx)

		case err := <-watcherErrors:
			if err != nil {
				L_warn("tasks: watcher error", "error", err)
			}
		}
	}
}

func (s *Scheduler) step(ctx context.Context) {
	ran, err := s.Step(ctx)
	if err != nil && ctx.Err() == nil {
		L_error("tasks: step failed", "error", err)
	}
	if ran > 0 {
		L_debug("tasks: step complete", "ran", ran)
	}
}
