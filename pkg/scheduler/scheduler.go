package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrStopped is returned when a job is added to a stopped scheduler.
var ErrStopped = errors.New("scheduler stopped")

// Task is the unit of work run by a job. The context is cancelled when the
// scheduler stops.
type Task = func(ctx context.Context) error

// Observer receives the outcome of every run.
type Observer interface {
	ObserveRun(job string, elapsed time.Duration, err error)
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name      string
	Runs      int
	Failures  int
	LastRun   time.Time
	NextRun   time.Time
	LastError error
}

// Scheduler runs named jobs, each on its own goroutine.
type Scheduler struct {
	logger   *slog.Logger
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	jobs    map[string]*job
	stopped bool
}

type job struct {
	name     string
	schedule cron.Schedule
	task     Task

	mu   sync.Mutex
	info JobInfo
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithObserver reports every run to o.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// New creates a running scheduler with no jobs.
func New(opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")
	return s
}

// ScheduleWithFixedDelay runs task first after initialDelay and then delay
// after each run completes.
func (s *Scheduler) ScheduleWithFixedDelay(name string, initialDelay, delay time.Duration, task func(context.Context) error) error {
	if delay <= 0 {
		return fmt.Errorf("job %q: delay must be positive, got %v", name, delay)
	}
	if initialDelay < 0 {
		initialDelay = 0
	}
	return s.add(name, time.Now().Add(initialDelay), DelaySchedule(delay), task)
}

// ScheduleCron runs task on a standard cron expression (five fields or a
// descriptor such as "@hourly").
func (s *Scheduler) ScheduleCron(name, spec string, task func(context.Context) error) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return s.add(name, schedule.Next(time.Now()), schedule, task)
}

func (s *Scheduler) add(name string, first time.Time, schedule cron.Schedule, task Task) error {
	if task == nil {
		return fmt.Errorf("job %q: nil task", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already scheduled", name)
	}

	j := &job{
		name:     name,
		schedule: schedule,
		task:     task,
		info:     JobInfo{Name: name, NextRun: first},
	}
	s.jobs[name] = j

	s.wg.Add(1)
	go s.loop(j, first)

	s.logger.Debug("job scheduled", "job", name, "first_run", first.Format(time.RFC3339))
	return nil
}

// loop waits for each activation, runs the task and computes the next
// activation from the time the run finished.
func (s *Scheduler) loop(j *job, next time.Time) {
	defer s.wg.Done()

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}

		s.run(j)

		finished := time.Now()
		next = j.schedule.Next(finished)
		if next.IsZero() {
			s.logger.Warn("job has no further activations", "job", j.name)
			return
		}

		j.mu.Lock()
		j.info.NextRun = next
		j.mu.Unlock()

		timer.Reset(next.Sub(finished))
	}
}

func (s *Scheduler) run(j *job) {
	start := time.Now()
	err := s.safeRun(j)
	elapsed := time.Since(start)

	j.mu.Lock()
	j.info.Runs++
	j.info.LastRun = start
	j.info.LastError = err
	if err != nil {
		j.info.Failures++
	}
	j.mu.Unlock()

	if s.observer != nil {
		s.observer.ObserveRun(j.name, elapsed, err)
	}

	if err != nil {
		s.logger.Warn("scheduled job failed", "job", j.name, "error", err)
		return
	}
	s.logger.Debug("scheduled job completed", "job", j.name, "duration_ms", elapsed.Milliseconds())
}

func (s *Scheduler) safeRun(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %q panicked: %v", j.name, r)
		}
	}()
	return j.task(s.ctx)
}

// Jobs returns a snapshot of every registered job, sorted by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		j.mu.Lock()
		infos = append(infos, j.info)
		j.mu.Unlock()
	}
	sort.Slice(infos, func(a, b int) bool { return infos[a].Name < infos[b].Name })
	return infos
}

// Stop cancels all jobs and waits for running tasks to return. It is safe
// to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}
