package service

import (
	"context"
	"sync"
	"time"

	"sensor_gateway/internal/logger"
)

// Task is one recurring job started by a Scheduler.
type Task struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// Name returns the label the task was scheduled under.
func (t *Task) Name() string { return t.name }

// Stop cancels the task and waits for a running invocation to return.
func (t *Task) Stop() {
	t.cancel()
	<-t.done
}

// Scheduler runs independent, individually cancellable recurring tasks.
type Scheduler struct {
	mu    sync.Mutex
	tasks []*Task
	log   *logger.Logger
}

func NewScheduler(log *logger.Logger) *Scheduler {
	return &Scheduler{log: log}
}

// Every runs fn after first, then every interval, until the task is stopped or ctx ends.
func (s *Scheduler) Every(ctx context.Context, name string, first, interval time.Duration, fn func(context.Context)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{name: name, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()

	if s.log != nil {
		s.log.Debugw("task_scheduled", "task", name, "first_in", first, "interval", interval)
	}

	go func() {
		defer close(t.done)
		timer := time.NewTimer(first)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				fn(ctx)
				timer.Reset(interval)
			}
		}
	}()
	return t
}

// StopAll stops every task started by s.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	for _, t := range tasks {
		t.Stop()
	}
}

// UntilMidnight returns the wait from now until the next local midnight in loc.
func UntilMidnight(now time.Time, loc *time.Location) time.Duration {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return next.Sub(local)
}
