package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/service/pipeline"
)

// MailResultRepo implements pipeline.MailResultRepository. The intake_id
// primary key is what guarantees one physical mailing per intake.
type MailResultRepo struct{ db *sql.DB }

// NewMailResultRepo creates a Postgres-backed mail result repository.
func NewMailResultRepo(db *sql.DB) *MailResultRepo { return &MailResultRepo{db: db} }

const mailResultColumns = `intake_id, tracking_id, status, to_address, from_address,
		       idempotency_key, failure_reason, created_at, updated_at`

func (r *MailResultRepo) Insert(ctx context.Context, res *domain.MailResult) (bool, error) {
	to, err := json.Marshal(res.To)
	if err != nil {
		return false, fmt.Errorf("encode to address: %w", err)
	}
	from, err := json.Marshal(res.From)
	if err != nil {
		return false, fmt.Errorf("encode from address: %w", err)
	}
	out, err := r.db.ExecContext(ctx, `
		INSERT INTO mail_results (intake_id, tracking_id, status, to_address, from_address,
		                          idempotency_key, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $8)
		ON CONFLICT (intake_id) DO NOTHING
	`, res.IntakeID, res.TrackingID, res.Status, to, from, res.IdempotencyKey, res.FailureReason, res.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert mail result: %w", err)
	}
	n, _ := out.RowsAffected()
	return n == 1, nil
}

func (r *MailResultRepo) Get(ctx context.Context, intakeID string) (*domain.MailResult, error) {
	return r.getOne(ctx, `SELECT `+mailResultColumns+` FROM mail_results WHERE intake_id = $1`, intakeID)
}

func (r *MailResultRepo) GetByTracking(ctx context.Context, trackingID string) (*domain.MailResult, error) {
	return r.getOne(ctx, `SELECT `+mailResultColumns+` FROM mail_results WHERE tracking_id = $1`, trackingID)
}

func (r *MailResultRepo) getOne(ctx context.Context, q string, arg string) (*domain.MailResult, error) {
	res, err := scanMailResult(r.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pipeline.ErrNoMailResult
	}
	if err != nil {
		return nil, fmt.Errorf("get mail result: %w", err)
	}
	return res, nil
}

// UpdateStatus never moves a terminal result.
func (r *MailResultRepo) UpdateStatus(ctx context.Context, trackingID string, status domain.MailStatus, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE mail_results
		SET status = $2, failure_reason = COALESCE(NULLIF($3, ''), failure_reason), updated_at = NOW()
		WHERE tracking_id = $1 AND status NOT IN ('delivered','failed')
	`, trackingID, status, reason)
	if err != nil {
		return fmt.Errorf("update mail status: %w", err)
	}
	return nil
}

func (r *MailResultRepo) ListInFlight(ctx context.Context, limit int) ([]domain.MailResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+mailResultColumns+`
		FROM mail_results
		WHERE status NOT IN ('delivered','failed')
		ORDER BY updated_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list in-flight mail: %w", err)
	}
	defer rows.Close()

	var out []domain.MailResult
	for rows.Next() {
		res, err := scanMailResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mail result: %w", err)
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMailResult(row rowScanner) (*domain.MailResult, error) {
	var (
		res      domain.MailResult
		to, from []byte
		reason   sql.NullString
	)
	if err := row.Scan(&res.IntakeID, &res.TrackingID, &res.Status, &to, &from,
		&res.IdempotencyKey, &reason, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(to, &res.To); err != nil {
		return nil, fmt.Errorf("decode to address: %w", err)
	}
	if err := json.Unmarshal(from, &res.From); err != nil {
		return nil, fmt.Errorf("decode from address: %w", err)
	}
	res.FailureReason = reason.String
	return &res, nil
}
