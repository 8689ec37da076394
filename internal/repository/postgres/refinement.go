package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/service/pipeline"
)

// RefinementRepo implements pipeline.RefinementRepository.
type RefinementRepo struct{ db *sql.DB }

// NewRefinementRepo creates a Postgres-backed refined statement repository.
func NewRefinementRepo(db *sql.DB) *RefinementRepo { return &RefinementRepo{db: db} }

// Save keeps the first stored statement; a resumed run never replaces the
// text that was already approved.
func (r *RefinementRepo) Save(ctx context.Context, rs *domain.RefinedStatement) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refined_statements (intake_id, text, policy_compliant, provider, model, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (intake_id) DO NOTHING
	`, rs.IntakeID, rs.Text, rs.PolicyCompliant, rs.Provider, rs.Model, rs.Attempts, rs.CreatedAt)
	if err != nil {
		return fmt.Errorf("save refined statement: %w", err)
	}
	return nil
}

func (r *RefinementRepo) Get(ctx context.Context, intakeID string) (*domain.RefinedStatement, error) {
	rs := &domain.RefinedStatement{}
	err := r.db.QueryRowContext(ctx, `
		SELECT intake_id, text, policy_compliant, provider, model, attempts, created_at
		FROM refined_statements
		WHERE intake_id = $1
	`, intakeID).Scan(&rs.IntakeID, &rs.Text, &rs.PolicyCompliant, &rs.Provider, &rs.Model, &rs.Attempts, &rs.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pipeline.ErrNoRefinement
	}
	if err != nil {
		return nil, fmt.Errorf("get refined statement: %w", err)
	}
	return rs, nil
}
