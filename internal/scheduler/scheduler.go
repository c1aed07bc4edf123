// Package scheduler runs the periodic reconciliation, balance and totals
// refreshes as cron entries that can be started and stopped on demand.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{s: logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
	}
}

// NewTask registers nothing until Start is called on the returned task.
func (s *Scheduler) NewTask(name string, interval time.Duration, fn func(ctx context.Context)) *Task {
	return &Task{
		sched:    s,
		name:     name,
		interval: interval,
		fn:       fn,
	}
}

// Task is a cancellable periodic job. Start and Stop are idempotent.
type Task struct {
	sched    *Scheduler
	name     string
	interval time.Duration
	fn       func(ctx context.Context)

	mu      sync.Mutex
	running bool
	entry   cron.EntryID
	cancel  context.CancelFunc
}

// Start schedules the task. It reports whether the task was newly started.
func (t *Task) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.entry = t.sched.cron.Schedule(cron.Every(t.interval), cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		t.fn(ctx)
	}))
	t.cancel = cancel
	t.running = true

	t.sched.logger.Debug("Task started", zap.String("task", t.name), zap.Duration("interval", t.interval))
	return true
}

// Stop unschedules the task and cancels a run in progress.
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return
	}
	t.sched.cron.Remove(t.entry)
	t.cancel()
	t.running = false
	t.entry = 0

	t.sched.logger.Debug("Task stopped", zap.String("task", t.name))
}

func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Task) Name() string { return t.name }
