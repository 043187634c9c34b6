package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
)

// WorkerConfig controls the polling loop.
type WorkerConfig struct {
	Tick      time.Duration
	BatchSize int
}

// Worker polls the queue for due jobs and executes them one by one. It is
// the scheduler; Executor itself never spawns goroutines.
type Worker struct {
	cfg      WorkerConfig
	interval time.Duration
	queue    Queue
	executor *Executor
	logger   *slog.Logger
	now      func() time.Time
}

// NewWorker creates a worker. interval must match the executor's Config so
// that Due only returns jobs whose gate is open.
func NewWorker(cfg WorkerConfig, interval time.Duration, queue Queue, executor *Executor, logger *slog.Logger, opts ...Option) *Worker {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	o := buildOptions(opts)
	return &Worker{
		cfg:      cfg,
		interval: interval,
		queue:    queue,
		executor: executor,
		logger:   logutil.NoopIfNil(logger),
		now:      o.now,
	}
}

// Run polls until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Tick)
	defer ticker.Stop()

	w.logger.Info("delivery worker started", "tick", w.cfg.Tick, "batch_size", w.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("delivery worker stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error("delivery tick failed", "error", err)
			}
		}
	}
}

// RunOnce executes every due job in one batch and returns the outcomes by
// job id.
func (w *Worker) RunOnce(ctx context.Context) (map[string]Outcome, error) {
	due, err := w.queue.Due(ctx, w.now().Add(-w.interval), w.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	outcomes := make(map[string]Outcome, len(due))
	for _, job := range due {
		if ctx.Err() != nil {
			break
		}
		outcome, err := w.executor.Execute(ctx, job)
		if err != nil {
			w.logger.Error("delivery job failed to record outcome", "job_id", job.ID, "outcome", outcome.String(), "error", err)
		}
		outcomes[job.ID] = outcome
	}
	return outcomes, nil
}
