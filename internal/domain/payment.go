package domain

import "time"

// Payment event types the pipeline reacts to. Anything else is acknowledged
// and ignored.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

// Checkout payment statuses that mean the money has settled.
const (
	PaymentPaid              = "paid"
	PaymentNoPaymentRequired = "no_payment_required"
)

// IsPaymentEventType reports whether events of this type can start a run.
func IsPaymentEventType(t string) bool {
	return t == EventCheckoutCompleted || t == EventAsyncPaymentSucceeded
}

// IsSettled reports whether a checkout payment status means funds arrived.
func IsSettled(paymentStatus string) bool {
	return paymentStatus == PaymentPaid || paymentStatus == PaymentNoPaymentRequired
}

// PaymentEvent is a verified inbound notification from the payment processor.
// EventID is the provider's id and doubles as the idempotency key.
type PaymentEvent struct {
	EventID    string    `json:"event_id" db:"event_id"`
	Type       string    `json:"type" db:"event_type"`
	IntakeID   string    `json:"intake_id" db:"intake_id"`
	Payload    []byte    `json:"-" db:"payload"`
	Signature  string    `json:"-" db:"signature"`
	ReceivedAt time.Time `json:"received_at" db:"received_at"`
}

// Admission is the outcome of offering an event to the deduplicator.
type Admission int

const (
	Accepted Admission = iota
	Duplicate
)

func (a Admission) String() string {
	if a == Accepted {
		return "accepted"
	}
	return "duplicate"
}
