package pipeline

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/ticketfight/appeal-service/internal/pkg/logger"
	"github.com/ticketfight/appeal-service/internal/queue"
	"github.com/ticketfight/appeal-service/internal/service/intake"
)

// Publisher hands a job to whatever runs the orchestrator: the in-process
// Dispatcher or an SQS queue.Publisher.
type Publisher interface {
	Publish(ctx context.Context, job queue.Job) error
}

// Handle runs the orchestrator for one job. A run already in progress for
// the same intake counts as handled. A job naming an intake that does not
// exist can never succeed, so it is logged and dropped instead of being
// redelivered.
func (o *Orchestrator) Handle(ctx context.Context, job queue.Job) error {
	err := o.Run(ctx, job.IntakeID)
	switch {
	case errors.Is(err, ErrRunInProgress):
		return nil
	case errors.Is(err, intake.ErrNotFound):
		o.log.Warn("dropping job for unknown intake", "intake_id", job.IntakeID, "reason", job.Reason)
		o.Observer.Stage("job", "unknown_intake")
		return nil
	}
	return err
}

// Dispatcher is a bounded in-process worker pool. Jobs run under the
// pool's context, never the publisher's, so a finished HTTP request does
// not cancel the work it admitted.
type Dispatcher struct {
	jobs    chan queue.Job
	handler queue.Handler
	workers int
	log     *logger.Logger
}

func NewDispatcher(handler queue.Handler, workers, buffer int, log *logger.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if buffer <= 0 {
		buffer = workers * 16
	}
	if log == nil {
		log = logger.Default()
	}
	return &Dispatcher{
		jobs:    make(chan queue.Job, buffer),
		handler: handler,
		workers: workers,
		log:     log.With("component", "dispatcher"),
	}
}

// Publish enqueues job without blocking.
func (d *Dispatcher) Publish(ctx context.Context, job queue.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case d.jobs <- job:
		return nil
	default:
		d.log.Warn("dispatch queue full", "intake_id", job.IntakeID)
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case job := <-d.jobs:
					if err := d.handler(ctx, job); err != nil {
						d.log.Warn("job failed", "intake_id", job.IntakeID, "reason", job.Reason, "error", err)
					}
				}
			}
		})
	}
	return g.Wait()
}
