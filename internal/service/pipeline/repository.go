package pipeline

import (
	"context"
	"time"

	"github.com/ticketfight/appeal-service/internal/domain"
)

// IntakeRepository is the persistence contract the orchestrator drives.
// Every write is conditional on the current status so that concurrent or
// replayed runs cannot move an intake twice.
type IntakeRepository interface {
	Get(ctx context.Context, id string) (*domain.Intake, error)

	// Transition moves id from -> to and resets the stage attempt counter.
	// paymentEventID is recorded when non-empty. Returns false when the
	// intake was no longer in from.
	Transition(ctx context.Context, id string, from, to domain.IntakeStatus, paymentEventID string) (bool, error)

	// Fail moves id from -> failed with a kind and human reason.
	Fail(ctx context.Context, id string, from domain.IntakeStatus, kind domain.ErrorKind, reason string) (bool, error)

	// IncrementAttempts bumps the stage counter if id is still in status and
	// returns the new value.
	IncrementAttempts(ctx context.Context, id string, status domain.IntakeStatus) (int, error)

	// ListStale returns ids of non-terminal intakes not updated since before.
	ListStale(ctx context.Context, before time.Time, limit int) ([]string, error)
}

// PaymentRepository looks up admitted payment events.
type PaymentRepository interface {
	// AcceptedForIntake returns the earliest admitted checkout event for the
	// intake, or ErrNoPayment.
	AcceptedForIntake(ctx context.Context, intakeID string) (*domain.PaymentEvent, error)
}

// RefinementRepository stores one refined statement per intake.
type RefinementRepository interface {
	Save(ctx context.Context, rs *domain.RefinedStatement) error
	Get(ctx context.Context, intakeID string) (*domain.RefinedStatement, error)
}

// MailResultRepository stores at most one MailResult per intake.
type MailResultRepository interface {
	// Insert stores res unless one already exists for the intake. Returns
	// false when a record was already present.
	Insert(ctx context.Context, res *domain.MailResult) (bool, error)
	Get(ctx context.Context, intakeID string) (*domain.MailResult, error)
	GetByTracking(ctx context.Context, trackingID string) (*domain.MailResult, error)
	UpdateStatus(ctx context.Context, trackingID string, status domain.MailStatus, reason string) error
	// ListInFlight returns results that are not yet terminal.
	ListInFlight(ctx context.Context, limit int) ([]domain.MailResult, error)
}
