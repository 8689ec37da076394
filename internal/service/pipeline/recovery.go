package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/ticketfight/appeal-service/internal/pkg/distlock"
	"github.com/ticketfight/appeal-service/internal/pkg/logger"
	"github.com/ticketfight/appeal-service/internal/queue"
)

const recoveryBatch = 100

// Recovery re-publishes intakes that stopped moving: a crash between
// stages, a dropped job, or a transient failure waiting for its retry.
// Only the replica holding the lock sweeps.
type Recovery struct {
	intakes    IntakeRepository
	pub        Publisher
	lock       distlock.DistLock
	staleAfter time.Duration
	interval   time.Duration
	log        *logger.Logger
	now        func() time.Time
}

func NewRecovery(intakes IntakeRepository, pub Publisher, lock distlock.DistLock, staleAfter, interval time.Duration, log *logger.Logger) *Recovery {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = logger.Default()
	}
	return &Recovery{
		intakes:    intakes,
		pub:        pub,
		lock:       lock,
		staleAfter: staleAfter,
		interval:   interval,
		log:        log.With("component", "recovery"),
		now:        time.Now,
	}
}

// Sweep publishes one batch of stale intakes and returns how many were
// published. It returns 0 and no error when another replica holds the lock.
func (r *Recovery) Sweep(ctx context.Context) (int, error) {
	var published int
	err := distlock.Do(ctx, r.lock, func(ctx context.Context) error {
		ids, err := r.intakes.ListStale(ctx, r.now().Add(-r.staleAfter), recoveryBatch)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := r.pub.Publish(ctx, queue.Job{IntakeID: id, Reason: queue.ReasonRecovery}); err != nil {
				if errors.Is(err, ErrQueueFull) {
					break
				}
				return err
			}
			published++
		}
		return nil
	})
	if errors.Is(err, distlock.ErrNotAcquired) {
		return 0, nil
	}
	if published > 0 {
		r.log.Info("resumed stale intakes", "count", published)
	}
	return published, err
}

// Run sweeps every interval until ctx is cancelled.
func (r *Recovery) Run(ctx context.Context) error {
	r.log.Info("recovery started", "interval", r.interval.String(), "stale_after", r.staleAfter.String())
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, r.interval)
			if _, err := r.Sweep(sweepCtx); err != nil {
				r.log.Warn("recovery sweep failed", "error", err)
			}
			cancel()
		}
	}
}
