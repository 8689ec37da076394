package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/service/pipeline"
)

// PaymentEventRepo implements dedupe.Store and pipeline.PaymentRepository.
type PaymentEventRepo struct{ db *sql.DB }

// NewPaymentEventRepo creates a Postgres-backed payment event repository.
func NewPaymentEventRepo(db *sql.DB) *PaymentEventRepo { return &PaymentEventRepo{db: db} }

// InsertIfAbsent relies on the primary key: exactly one concurrent insert of
// an event id affects a row.
func (r *PaymentEventRepo) InsertIfAbsent(ctx context.Context, ev *domain.PaymentEvent) (bool, error) {
	var intakeID interface{}
	if ev.IntakeID != "" {
		intakeID = ev.IntakeID
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_events (event_id, event_type, intake_id, payload, signature, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING
	`, ev.EventID, ev.Type, intakeID, ev.Payload, ev.Signature, ev.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("insert payment event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert payment event: %w", err)
	}
	return n == 1, nil
}

func (r *PaymentEventRepo) AcceptedForIntake(ctx context.Context, intakeID string) (*domain.PaymentEvent, error) {
	ev := &domain.PaymentEvent{}
	err := r.db.QueryRowContext(ctx, `
		SELECT event_id, event_type, intake_id, received_at
		FROM payment_events
		WHERE intake_id = $1 AND event_type IN ($2, $3)
		ORDER BY received_at
		LIMIT 1
	`, intakeID, domain.EventCheckoutCompleted, domain.EventAsyncPaymentSucceeded).Scan(&ev.EventID, &ev.Type, &ev.IntakeID, &ev.ReceivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pipeline.ErrNoPayment
	}
	if err != nil {
		return nil, fmt.Errorf("accepted payment for intake: %w", err)
	}
	return ev, nil
}

// CountAdmitted returns the number of admitted payment events.
func (r *PaymentEventRepo) CountAdmitted(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payment_events`).Scan(&n)
	return n, err
}
