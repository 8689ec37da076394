// Package queue moves pipeline jobs between processes over SQS. Postgres
// stays the source of truth: a lost job is picked up by the recovery sweep.
package queue

import (
	"context"
	"time"
)

// Job asks a worker to advance one intake.
type Job struct {
	IntakeID   string    `json:"intake_id"`
	Reason     string    `json:"reason"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Job reasons.
const (
	ReasonPayment  = "payment"
	ReasonRecovery = "recovery"
	ReasonOperator = "operator"
	ReasonDelivery = "delivery"
)

// Handler processes one job. A nil error acknowledges it.
type Handler func(ctx context.Context, job Job) error
