package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/meghashyamc/modsearch/logger"
	"golang.org/x/sync/semaphore"
)

// maxOverlappingRuns bounds how many runs of one task may be in flight.
const maxOverlappingRuns = 2

var ErrSchedulerStarted = errors.New("scheduler already started")

type Task func(ctx context.Context)

type scheduledTask struct {
	name     string
	interval time.Duration
	run      Task
	slots    *semaphore.Weighted
}

// Scheduler runs tasks at fixed intervals on its own goroutines. Each task runs
// once as soon as the scheduler starts and then on every tick. A tick that
// finds both run slots busy waits for one to free up.
type Scheduler struct {
	logger logger.Logger

	mu      sync.Mutex
	tasks   []*scheduledTask
	started bool
	cancel  context.CancelFunc

	loops    sync.WaitGroup
	runs     sync.WaitGroup
	stopOnce sync.Once
}

func NewScheduler(logger logger.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

func (s *Scheduler) Schedule(name string, interval time.Duration, task Task) error {
	if interval <= 0 {
		return fmt.Errorf("interval of task %s must be positive, got %s", name, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrSchedulerStarted
	}

	s.tasks = append(s.tasks, &scheduledTask{
		name:     name,
		interval: interval,
		run:      task,
		slots:    semaphore.NewWeighted(maxOverlappingRuns),
	})
	return nil
}

// Start begins ticking. Runs get a context that is not cancelled by Stop or
// by cancelling ctx, so an in-flight run always finishes.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	tickCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	runCtx := context.WithoutCancel(ctx)

	for _, task := range s.tasks {
		s.loops.Add(1)
		go s.loop(tickCtx, runCtx, task)
	}
	s.logger.Info("scheduler started", "tasks", len(s.tasks))
}

// Stop cancels future ticks and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		s.loops.Wait()
		s.runs.Wait()
		s.logger.Info("scheduler stopped")
	})
}

func (s *Scheduler) loop(tickCtx context.Context, runCtx context.Context, task *scheduledTask) {
	defer s.loops.Done()

	ticker := time.NewTicker(task.interval)
	defer ticker.Stop()

	for {
		if err := task.slots.Acquire(tickCtx, 1); err != nil {
			return
		}

		s.runs.Add(1)
		go func() {
			defer s.runs.Done()
			defer task.slots.Release(1)
			s.runTask(runCtx, task)
		}()

		select {
		case <-tickCtx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context, task *scheduledTask) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked", "task", task.name, "panic", fmt.Sprint(r))
		}
	}()

	start := time.Now()
	task.run(ctx)
	s.logger.Debug("scheduled task finished", "task", task.name, "took", time.Since(start).String())
}
