package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// QueueDefault is the only queue the worker consumes.
const QueueDefault = "default"

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// Runner wraps the asynq server and optional scheduler.
type Runner struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// RunnerConfig collects dependencies required to bootstrap the runner.
type RunnerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Mux       *asynq.ServeMux
	Cron      []CronRegistration
}

// NewRunner constructs the task runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Runner{server: srv, mux: cfg.Mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing tasks until context cancellation.
func (r *Runner) Run(ctx context.Context) error {
	if r == nil {
		return errors.New("jobs: runner not configured")
	}
	if r.scheduler != nil {
		if err := r.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.server.Run(r.mux)
	}()
	select {
	case <-ctx.Done():
		if r.scheduler != nil {
			r.scheduler.Shutdown()
		}
		r.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if r.scheduler != nil {
			r.scheduler.Shutdown()
		}
		return err
	}
}
