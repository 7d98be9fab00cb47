package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/habiliai/agentmarket/errors"
	"github.com/habiliai/agentmarket/internal/metrics"
	"github.com/habiliai/agentmarket/internal/mylog"
)

type (
	// Task is a named unit of periodic work.
	Task struct {
		Name     string
		Interval time.Duration
		Run      func(ctx context.Context) error
	}

	Scheduler struct {
		logger *slog.Logger
		tasks  []Task
	}
)

func NewScheduler(logger *slog.Logger, tasks ...Task) *Scheduler {
	return &Scheduler{
		logger: logger,
		tasks:  tasks,
	}
}

func (s *Scheduler) Tasks() []Task {
	return s.tasks
}

// RunOnce runs the named task immediately.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	for _, task := range s.tasks {
		if task.Name == name {
			return s.runTask(ctx, task)
		}
	}
	return errors.Wrapf(errors.ErrNotFound, "task %s not found", name)
}

// Run starts a ticker per task and blocks until ctx is cancelled. Task
// failures are logged and the task keeps its schedule.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, task := range s.tasks {
		if task.Interval <= 0 {
			s.logger.Warn("skip task without interval", "task", task.Name)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, task)
		}()
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	s.logger.Info("start periodic task", "task", task.Name, "interval", task.Interval)
	defer s.logger.Info("stop periodic task", "task", task.Name)

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runTask(ctx, task); err != nil && ctx.Err() == nil {
				s.logger.Error("periodic task failed", "task", task.Name, mylog.Err(err))
			}
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context, task Task) error {
	if err := task.Run(ctx); err != nil {
		metrics.MaintenanceRuns.WithLabelValues(task.Name, "error").Inc()
		return err
	}
	metrics.MaintenanceRuns.WithLabelValues(task.Name, "ok").Inc()
	return nil
}
