package domain

import "time"

// MailStatus is the carrier-side delivery state of a letter.
type MailStatus string

const (
	MailSubmitted MailStatus = "submitted"
	MailInTransit MailStatus = "in_transit"
	MailDelivered MailStatus = "delivered"
	MailFailed    MailStatus = "failed"
)

// Succeeded reports whether the carrier confirmed terminal success.
// Acceptance of the request (submitted) and in_transit are not enough.
func (s MailStatus) Succeeded() bool { return s == MailDelivered }

// Terminal reports whether the carrier will not report further progress.
func (s MailStatus) Terminal() bool { return s == MailDelivered || s == MailFailed }

// MailResult records the single physical mailing of an intake.
type MailResult struct {
	IntakeID       string     `json:"intake_id" db:"intake_id"`
	TrackingID     string     `json:"tracking_id" db:"tracking_id"`
	Status         MailStatus `json:"status" db:"status"`
	To             Address    `json:"to" db:"to_address"`
	From           Address    `json:"from" db:"from_address"`
	IdempotencyKey string     `json:"idempotency_key" db:"idempotency_key"`
	FailureReason  string     `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}
