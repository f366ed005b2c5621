package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Handler func(ctx context.Context, job Job) error

// Worker polls a queue and runs due jobs. Handler failures are logged and
// do not stop the loop; the job stays claimed either way, so a failed run
// is only retried if the handler re-armed itself.
type Worker struct {
	queue    *Queue
	handler  Handler
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewWorker(queue *Queue, handler Handler, interval time.Duration, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Worker{
		queue:    queue,
		handler:  handler,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	jobs, err := w.queue.claimDue(ctx, w.now())
	if err != nil {
		w.logger.Warn("claim due jobs failed",
			zap.String("queue", w.queue.Name()), zap.Error(err))
		return
	}

	for _, job := range jobs {
		if err := w.handler(ctx, job); err != nil {
			w.logger.Error("job handler failed",
				zap.String("queue", w.queue.Name()),
				zap.String("job_id", job.ID),
				zap.Error(err))
		}
	}
}
