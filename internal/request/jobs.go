package request

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Job is a timer-driven background task advancing requests whose transitions
// depend on wall-clock time. Most jobs do not allow concurrent runs; an
// in-memory flag guards against two overlapping sweeps double-processing the
// same requests.
type Job struct {
	name            string
	interval        time.Duration
	allowConcurrent bool
	run             func(ctx context.Context) (int, error)
	logger          *slog.Logger
	running         atomic.Bool
}

// NewExpirationJob sweeps created requests past their expiration and cancels
// them. Already-decided requests are never touched.
func NewExpirationJob(svc Service, interval time.Duration, logger *slog.Logger) *Job {
	return &Job{
		name:     "request-expiration",
		interval: interval,
		run:      svc.ExpireDueRequests,
		logger:   logger,
	}
}

// NewScheduledExecutionJob sweeps scheduled requests whose execution time has
// come and runs their executors.
func NewScheduledExecutionJob(svc Service, interval time.Duration, logger *slog.Logger) *Job {
	return &Job{
		name:     "scheduled-execution",
		interval: interval,
		run:      svc.ExecuteDueRequests,
		logger:   logger,
	}
}

// Start runs the job loop until the context is cancelled.
func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.Tick(ctx)
			}
		}
	}()
}

// Tick performs one sweep. A sweep that is still running causes the new tick
// to be skipped unless the job allows concurrent runs. Failures are logged
// and never stop subsequent ticks.
func (j *Job) Tick(ctx context.Context) {
	if !j.allowConcurrent && !j.running.CompareAndSwap(false, true) {
		j.logger.Debug("job tick skipped, previous run still active", "job", j.name)
		return
	}
	defer func() {
		if !j.allowConcurrent {
			j.running.Store(false)
		}
	}()

	processed, err := j.run(ctx)
	if err != nil {
		j.logger.Error("job sweep failed", "job", j.name, "error", err)
		return
	}
	if processed > 0 {
		j.logger.Info("job sweep processed requests", "job", j.name, "count", processed)
	}
}
