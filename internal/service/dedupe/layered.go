package dedupe

import (
	"context"
	"fmt"

	"github.com/ticketfight/appeal-service/internal/domain"
)

// Forgetter can drop an admission it granted.
type Forgetter interface {
	Forget(ctx context.Context, eventID string) error
}

// Layered admits through Gate and then writes the event to Record, the
// durable store the pipeline reads payments from. Both must admit: Gate
// settles concurrent deliveries cheaply, and Record still reports a
// duplicate when Gate has lost its key. If the Record write fails the Gate
// admission is forgotten so the processor's redelivery is admitted again.
type Layered struct {
	Gate   Store
	Record Store
}

func (l Layered) InsertIfAbsent(ctx context.Context, ev *domain.PaymentEvent) (bool, error) {
	won, err := l.Gate.InsertIfAbsent(ctx, ev)
	if err != nil || !won {
		return false, err
	}
	recorded, err := l.Record.InsertIfAbsent(ctx, ev)
	if err != nil {
		if f, ok := l.Gate.(Forgetter); ok {
			if ferr := f.Forget(ctx, ev.EventID); ferr != nil {
				return false, fmt.Errorf("record event %s: %w (forget: %v)", ev.EventID, err, ferr)
			}
		}
		return false, fmt.Errorf("record event %s: %w", ev.EventID, err)
	}
	return recorded, nil
}
