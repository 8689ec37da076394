package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/pkg/logger"
)

const trackerBatch = 200

// Tracker polls the carrier for letters still in flight. It backs up the
// carrier webhook, which can be lost.
type Tracker struct {
	mail     MailResultRepository
	mailer   Mailer
	orch     *Orchestrator
	interval time.Duration
	retry    func() backoff.BackOff
	log      *logger.Logger
}

func NewTracker(mail MailResultRepository, mailer Mailer, orch *Orchestrator, interval time.Duration, log *logger.Logger) *Tracker {
	if interval <= 0 {
		interval = time.Hour
	}
	if log == nil {
		log = logger.Default()
	}
	return &Tracker{
		mail:     mail,
		mailer:   mailer,
		orch:     orch,
		interval: interval,
		retry: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 2 * time.Second
			b.MaxElapsedTime = 30 * time.Second
			return backoff.WithMaxRetries(b, 2)
		},
		log: log.With("component", "tracker"),
	}
}

// Poll checks every in-flight letter once and returns how many changed.
func (t *Tracker) Poll(ctx context.Context) (int, error) {
	results, err := t.mail.ListInFlight(ctx, trackerBatch)
	if err != nil {
		return 0, err
	}
	var changed int
	for _, mr := range results {
		mr := mr
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		var (
			status domain.MailStatus
			reason string
		)
		op := func() error {
			var terr error
			status, reason, terr = t.mailer.Track(ctx, mr.TrackingID)
			if terr != nil && !domain.IsTransient(terr) {
				return backoff.Permanent(terr)
			}
			return terr
		}
		if err := backoff.Retry(op, backoff.WithContext(t.retry(), ctx)); err != nil {
			t.log.Warn("track letter failed", "intake_id", mr.IntakeID, "tracking_id", mr.TrackingID, "error", err)
			continue
		}
		if status == mr.Status {
			continue
		}
		if err := t.orch.RecordDelivery(ctx, mr.TrackingID, status, reason); err != nil && !errors.Is(err, ErrNoMailResult) {
			t.log.Warn("record delivery failed", "tracking_id", mr.TrackingID, "error", err)
			continue
		}
		changed++
	}
	return changed, nil
}

// Run polls every interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	t.log.Info("tracking poller started", "interval", t.interval.String())
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n, err := t.Poll(ctx); err != nil {
				t.log.Warn("tracking poll failed", "error", err)
			} else if n > 0 {
				t.log.Info("tracking updates applied", "count", n)
			}
		}
	}
}
