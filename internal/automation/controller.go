// CLAUDE:SUMMARY Automation controller — polls the job queue, dispatches to the worker, classifies failures
package automation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hazyhaar/stratforge/internal/db"
)

// Controller claims jobs from the queue and hands them to the worker. Retry
// policy lives here: the store only records states, the controller decides
// when a job is out of attempts.
type Controller struct {
	Store        *db.DB
	Worker       *Worker
	Logger       *slog.Logger
	PollInterval time.Duration
}

// NewController wires a controller. pollInterval <= 0 defaults to 5s.
func NewController(store *db.DB, worker *Worker, logger *slog.Logger, pollInterval time.Duration) *Controller {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{Store: store, Worker: worker, Logger: logger, PollInterval: pollInterval}
}

// RunOnce claims and processes a single job. Returns db.ErrNoJob when the
// queue has nothing eligible.
func (c *Controller) RunOnce(ctx context.Context) ([]RunOutcome, error) {
	job, err := c.Store.FetchNextJob()
	if err != nil {
		return nil, err
	}
	return c.processJob(ctx, job)
}

// RunForever polls until the context is cancelled, sleeping between empty
// polls. Job execution errors are logged and absorbed; only queue access
// errors and cancellation end the loop.
func (c *Controller) RunForever(ctx context.Context) error {
	c.Logger.Info("automation controller started", "poll_interval", c.PollInterval)
	for {
		job, err := c.Store.FetchNextJob()
		if errors.Is(err, db.ErrNoJob) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.PollInterval):
			}
			continue
		}
		if err != nil {
			return err
		}
		if _, err := c.processJob(ctx, job); err != nil {
			c.Logger.Error("job processing", "job", job.JobID, "error", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// processJob executes a claimed job and records its terminal state. The
// claimed row always transitions out of running: completed on success, retry
// while attempts remain, failed once they run out.
func (c *Controller) processJob(ctx context.Context, job *db.Job) ([]RunOutcome, error) {
	log := c.Logger.With("job", job.JobID, "type", job.JobType)
	log.Info("processing job")

	outcomes, err := c.Worker.Execute(ctx, job)
	if err == nil {
		if markErr := c.Store.MarkJobCompleted(job.JobID); markErr != nil {
			return outcomes, markErr
		}
		log.Info("job completed", "runs", len(outcomes))
		return outcomes, nil
	}

	if job.RetryCount+1 <= job.MaxRetries {
		log.Warn("job failed, scheduling retry",
			"attempt", job.RetryCount+1, "max_retries", job.MaxRetries, "error", err)
		if markErr := c.Store.MarkJobRetry(job.JobID, err.Error()); markErr != nil {
			return outcomes, markErr
		}
	} else {
		log.Error("job failed permanently", "error", err)
		if markErr := c.Store.MarkJobFailed(job.JobID, err.Error()); markErr != nil {
			return outcomes, markErr
		}
	}
	return outcomes, err
}
