package dedupe

import (
	"context"

	"github.com/ticketfight/appeal-service/internal/domain"
)

// Store is the idempotency store. InsertIfAbsent must be atomic: it returns
// true for exactly one caller per event id.
type Store interface {
	InsertIfAbsent(ctx context.Context, ev *domain.PaymentEvent) (bool, error)
}
