package dedupe

import (
	"context"
	"fmt"

	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/pkg/logger"
)

// Deduplicator decides whether an event is seen for the first time.
// It is safe for concurrent use; the Store provides the atomicity.
type Deduplicator struct {
	store Store
	log   *logger.Logger
}

// New creates a deduplicator backed by store.
func New(store Store, log *logger.Logger) *Deduplicator {
	if log == nil {
		log = logger.Default()
	}
	return &Deduplicator{store: store, log: log}
}

// Admit records ev and reports Accepted for the first delivery of its id,
// Duplicate otherwise. A store error admits nothing.
func (d *Deduplicator) Admit(ctx context.Context, ev *domain.PaymentEvent) (domain.Admission, error) {
	if ev == nil || ev.EventID == "" {
		return domain.Duplicate, ErrEmptyEventID
	}
	inserted, err := d.store.InsertIfAbsent(ctx, ev)
	if err != nil {
		return domain.Duplicate, fmt.Errorf("admit event %s: %w", ev.EventID, err)
	}
	if !inserted {
		d.log.Info("duplicate payment event", "event_id", ev.EventID, "intake_id", ev.IntakeID)
		return domain.Duplicate, nil
	}
	d.log.Info("payment event admitted", "event_id", ev.EventID, "intake_id", ev.IntakeID, "type", ev.Type)
	return domain.Accepted, nil
}
