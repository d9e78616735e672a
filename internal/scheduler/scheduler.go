// Package scheduler triggers task executions on periodic, cron, daily-time,
// and dependency schedules (spec.md section 4.11), generalizing the
// fire-and-forget per-trigger goroutine idiom of
// services/automation/automation_triggers.go's checkAndExecuteTriggers /
// executeTrigger to a real cron parser and a bounded worker pool.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openfinance/datahub/internal/logging"
)

// RetryStrategy names how a failed task run is retried.
type RetryStrategy string

const (
	RetryImmediate   RetryStrategy = "immediate"
	RetryLinear      RetryStrategy = "linear"
	RetryExponential RetryStrategy = "exponential"
)

// TriggerKind names what causes a Trigger to fire.
type TriggerKind string

const (
	TriggerInterval   TriggerKind = "interval"
	TriggerCron       TriggerKind = "cron"
	TriggerDailyTime  TriggerKind = "daily_time"
	TriggerDependency TriggerKind = "dependency"
)

// Trigger declares when one task should run.
type Trigger struct {
	TaskID        string
	Kind          TriggerKind
	Interval      time.Duration // TriggerInterval
	CronExpr      string        // TriggerCron
	DailyTime     string        // TriggerDailyTime, "HH:MM"
	DependsOnTask string        // TriggerDependency
	MaxRetries    int
	RetryStrategy RetryStrategy
	Params        map[string]interface{}

	schedule  cron.Schedule
	nextRun   time.Time
	lastRun   time.Time
}

// RunFunc executes one task run. The scheduler never inspects the result
// beyond its error; task-level bookkeeping belongs to internal/task.
type RunFunc func(ctx context.Context, taskID string, params map[string]interface{}) error

// Scheduler owns a registered set of Triggers and dispatches due ones onto
// a bounded worker pool, enforcing at most one in-flight execution per
// task id (spec.md section 4.11's concurrency guarantee).
type Scheduler struct {
	mu       sync.Mutex
	triggers map[string]*Trigger
	run      RunFunc
	workers  chan struct{}
	inFlight sync.Map // taskID -> struct{}
	completed sync.Map // taskID -> struct{} (succeeded at least once, for dependency triggers)
	logger   *logging.Logger
	parser   cron.Parser
}

// Config configures a Scheduler.
type Config struct {
	WorkerCount int
	Run         RunFunc
	Logger      *logging.Logger
}

// New constructs a Scheduler. WorkerCount bounds cross-task concurrency;
// within one task id, at most one execution is ever in flight regardless
// of WorkerCount.
func New(cfg Config) *Scheduler {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDefault("scheduler")
	}
	return &Scheduler{
		triggers: make(map[string]*Trigger),
		run:      cfg.Run,
		workers:  make(chan struct{}, cfg.WorkerCount),
		logger:   logger,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Register adds or replaces a trigger, pre-parsing its cron/daily-time
// schedule so Tick need not re-parse it every call.
func (s *Scheduler) Register(t *Trigger) error {
	switch t.Kind {
	case TriggerCron:
		sched, err := s.parser.Parse(t.CronExpr)
		if err != nil {
			return fmt.Errorf("scheduler: parse cron expression %q: %w", t.CronExpr, err)
		}
		t.schedule = sched
	case TriggerDailyTime:
		expr, err := dailyTimeToCron(t.DailyTime)
		if err != nil {
			return err
		}
		sched, err := s.parser.Parse(expr)
		if err != nil {
			return fmt.Errorf("scheduler: parse daily_time %q: %w", t.DailyTime, err)
		}
		t.schedule = sched
	case TriggerInterval:
		if t.Interval <= 0 {
			return fmt.Errorf("scheduler: interval trigger %s requires a positive interval", t.TaskID)
		}
	case TriggerDependency:
		if t.DependsOnTask == "" {
			return fmt.Errorf("scheduler: dependency trigger %s requires depends_on_task", t.TaskID)
		}
	default:
		return fmt.Errorf("scheduler: unknown trigger kind %q", t.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t.nextRun = s.computeNextRun(t, time.Now())
	s.triggers[t.TaskID] = t
	return nil
}

func dailyTimeToCron(hhmm string) (string, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &hour, &minute); err != nil {
		return "", fmt.Errorf("scheduler: invalid daily_time %q: %w", hhmm, err)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

func (s *Scheduler) computeNextRun(t *Trigger, from time.Time) time.Time {
	switch t.Kind {
	case TriggerInterval:
		return from.Add(t.Interval)
	case TriggerCron, TriggerDailyTime:
		return t.schedule.Next(from)
	default:
		return time.Time{}
	}
}

// Tick evaluates every registered trigger against now, dispatching each due
// one as a bounded-concurrency fire-and-forget goroutine, mirroring
// checkAndExecuteTriggers's "now.After(trigger.NextExecution) → go
// s.executeTrigger(...)" loop. Dependency triggers fire once their
// upstream task id has completed successfully at least once since the
// last Tick in which they fired.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	due := make([]*Trigger, 0)
	for _, t := range s.triggers {
		switch t.Kind {
		case TriggerDependency:
			if _, ok := s.completed.Load(t.DependsOnTask); ok {
				s.completed.Delete(t.DependsOnTask)
				due = append(due, t)
			}
		default:
			if !t.nextRun.IsZero() && now.After(t.nextRun) {
				t.nextRun = s.computeNextRun(t, now)
				due = append(due, t)
			}
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		if _, alreadyRunning := s.inFlight.LoadOrStore(t.TaskID, struct{}{}); alreadyRunning {
			s.logger.WithField("task_id", t.TaskID).Debug("scheduler: skipping tick, execution already in flight")
			continue
		}
		trigger := t
		select {
		case s.workers <- struct{}{}:
			go s.execute(ctx, trigger)
		default:
			s.logger.WithField("task_id", trigger.TaskID).Warn("scheduler: worker pool saturated, dropping this tick")
			s.inFlight.Delete(trigger.TaskID)
		}
	}
}

// execute runs one trigger's task with retry, releasing both the worker
// slot and the in-flight marker on completion.
func (s *Scheduler) execute(ctx context.Context, t *Trigger) {
	defer func() { <-s.workers }()
	defer s.inFlight.Delete(t.TaskID)

	err := s.runWithRetry(ctx, t)
	t.lastRun = time.Now()
	if err != nil {
		s.logger.WithError(err).WithField("task_id", t.TaskID).Warn("scheduler: task execution failed")
		return
	}
	s.completed.Store(t.TaskID, struct{}{})
}

func (s *Scheduler) runWithRetry(ctx context.Context, t *Trigger) error {
	if s.run == nil {
		return fmt.Errorf("scheduler: no run function configured")
	}
	maxRetries := t.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay(t.RetryStrategy, attempt)):
			}
		}
		if err := s.run(ctx, t.TaskID, t.Params); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return lastErr
}

// retryDelay computes the wait before retry attempt i (1-indexed) per the
// chosen RetryStrategy.
func retryDelay(strategy RetryStrategy, attempt int) time.Duration {
	switch strategy {
	case RetryLinear:
		return time.Duration(attempt) * time.Second
	case RetryExponential:
		d := time.Second
		for i := 0; i < attempt; i++ {
			d *= 2
		}
		return d
	default:
		return 0
	}
}

// MarkCompleted records taskID as having completed successfully, allowing
// dependency triggers keyed on it to fire on the next Tick. Exposed so a
// task executed outside the scheduler's own loop (e.g. ad-hoc, via the API)
// still satisfies downstream dependency triggers.
func (s *Scheduler) MarkCompleted(taskID string) {
	s.completed.Store(taskID, struct{}{})
}
