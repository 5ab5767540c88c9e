// Package scheduling runs the orchestrator's periodic housekeeping jobs.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"agent-orchestrator/internal/infra/logger"
)

// Job identifies a housekeeping job.
type Job string

const (
	// JobSessionReap drops expired gateway sessions.
	JobSessionReap Job = "session_reap"
	// JobBreakerReport logs roles whose circuit breaker is not closed.
	JobBreakerReport Job = "breaker_report"
)

// jobTimeout bounds a single run.
const jobTimeout = time.Minute

// Task binds a job to its schedule.
type Task struct {
	Job      Job
	Schedule string // cron expression "*/5 * * * *" or duration "10m"
}

// Scheduler runs registered jobs on cron or fixed-interval schedules.
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[Job]func(ctx context.Context) error
	entries map[Job]cron.EntryID
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler.
func NewScheduler(log *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		jobs:    make(map[Job]func(ctx context.Context) error),
		entries: make(map[Job]cron.EntryID),
		logger:  logger.OrDiscard(log).With("component", "scheduler"),
	}
}

// Register installs the handler for job, replacing any previous one.
func (s *Scheduler) Register(job Job, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job] = fn
}

// Add schedules a registered job. Each job may be scheduled once.
func (s *Scheduler) Add(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, ok := s.jobs[task.Job]
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", task.Job)
	}
	if _, dup := s.entries[task.Job]; dup {
		return fmt.Errorf("scheduler: job %q already scheduled", task.Job)
	}

	schedule, err := ParseSchedule(task.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: job %q: %w", task.Job, err)
	}

	job := task.Job
	s.entries[job] = s.cron.Schedule(schedule, cron.FuncJob(func() { s.run(job, fn) }))
	s.logger.Debug("job scheduled", "job", string(job), "schedule", task.Schedule)
	return nil
}

func (s *Scheduler) run(job Job, fn func(ctx context.Context) error) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	if err := fn(ctx); err != nil {
		s.logger.Warn("job failed", "job", string(job), "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug("job completed", "job", string(job), "duration", time.Since(start))
}

// Start begins running scheduled jobs until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
}

// Stop halts the scheduler and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
}

// ParseSchedule accepts a cron expression (five fields or a descriptor such
// as "@every 1h") and falls back to a Go duration string.
func ParseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, errors.New("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	d, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a cron expression or duration: %q", schedule)
	}
	if d <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return every(d), nil
}

// every fires at a fixed interval. Unlike cron.Every it keeps sub-second
// precision, which the tests rely on.
type every time.Duration

func (d every) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }
