package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/service/intake"
)

// IntakeRepo implements intake.Repository and pipeline.IntakeRepository
// against PostgreSQL.
type IntakeRepo struct{ db *sql.DB }

// NewIntakeRepo creates a Postgres-backed intake repository.
func NewIntakeRepo(db *sql.DB) *IntakeRepo { return &IntakeRepo{db: db} }

func (r *IntakeRepo) Create(ctx context.Context, in *domain.Intake) error {
	issuer, err := json.Marshal(in.IssuingAuthority)
	if err != nil {
		return fmt.Errorf("encode issuing authority: %w", err)
	}
	ret, err := json.Marshal(in.ReturnAddress)
	if err != nil {
		return fmt.Errorf("encode return address: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO intakes (id, city_id, email, email_verified, ticket_number, statement,
		                     photo_keys, issuing_authority, return_address, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, in.ID, in.CityID, in.Email, in.EmailVerified, in.TicketNumber, in.Statement,
		pq.Array(in.PhotoKeys), issuer, ret, in.Status, in.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert intake: %w", err)
	}
	return nil
}

func (r *IntakeRepo) MarkEmailVerified(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return intake.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE intakes SET email_verified = TRUE, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("verify intake email: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify intake email: %w", err)
	}
	if n == 0 {
		return intake.ErrNotFound
	}
	return nil
}

// Get returns intake.ErrNotFound for ids that are not UUIDs, since the
// column type would reject them with a syntax error.
func (r *IntakeRepo) Get(ctx context.Context, id string) (*domain.Intake, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, intake.ErrNotFound
	}
	var (
		in                    domain.Intake
		issuer, ret           []byte
		eventID, kind, reason sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, city_id, email, email_verified, ticket_number, statement, photo_keys,
		       issuing_authority, return_address, status, payment_event_id,
		       failure_kind, failure_reason, stage_attempts, created_at, updated_at
		FROM intakes
		WHERE id = $1
	`, id).Scan(
		&in.ID, &in.CityID, &in.Email, &in.EmailVerified, &in.TicketNumber, &in.Statement,
		pq.Array(&in.PhotoKeys), &issuer, &ret, &in.Status, &eventID,
		&kind, &reason, &in.StageAttempts, &in.CreatedAt, &in.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, intake.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get intake: %w", err)
	}
	if err := json.Unmarshal(issuer, &in.IssuingAuthority); err != nil {
		return nil, fmt.Errorf("decode issuing authority: %w", err)
	}
	if err := json.Unmarshal(ret, &in.ReturnAddress); err != nil {
		return nil, fmt.Errorf("decode return address: %w", err)
	}
	in.PaymentEventID = eventID.String
	in.FailureKind = domain.ErrorKind(kind.String)
	in.FailureReason = reason.String
	return &in, nil
}

func (r *IntakeRepo) Transition(ctx context.Context, id string, from, to domain.IntakeStatus, paymentEventID string) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE intakes
		SET status = $3,
		    payment_event_id = COALESCE(NULLIF($4, ''), payment_event_id),
		    stage_attempts = 0,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, to, paymentEventID)
	if err != nil {
		return false, fmt.Errorf("transition intake %s -> %s: %w", from, to, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *IntakeRepo) Fail(ctx context.Context, id string, from domain.IntakeStatus, kind domain.ErrorKind, reason string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE intakes
		SET status = 'failed', failure_kind = $3, failure_reason = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, kind, reason)
	if err != nil {
		return false, fmt.Errorf("fail intake: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *IntakeRepo) IncrementAttempts(ctx context.Context, id string, status domain.IntakeStatus) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		UPDATE intakes
		SET stage_attempts = stage_attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING stage_attempts
	`, id, status).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, intake.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	return n, nil
}

// ListStale skips created intakes nobody paid for and refined intakes whose
// letter is already with the carrier; the tracking poller owns those.
func (r *IntakeRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT i.id FROM intakes i
		WHERE i.status IN ('created','paid','refined') AND i.updated_at < $1
		  AND (i.status <> 'created'
		       OR EXISTS (SELECT 1 FROM payment_events p WHERE p.intake_id = i.id::text))
		  AND NOT EXISTS (SELECT 1 FROM mail_results m WHERE m.intake_id = i.id)
		ORDER BY i.updated_at
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale intakes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale intake: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CountByStatus returns the number of intakes in each status.
func (r *IntakeRepo) CountByStatus(ctx context.Context) (map[domain.IntakeStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM intakes GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count intakes: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.IntakeStatus]int)
	for rows.Next() {
		var (
			s domain.IntakeStatus
			n int
		)
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("scan intake count: %w", err)
		}
		out[s] = n
	}
	return out, rows.Err()
}
