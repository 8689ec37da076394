package postgres

import (
	"context"
	"database/sql"

	"github.com/ticketfight/appeal-service/internal/domain"
)

// StatsRepo answers the counters served on /metrics.
type StatsRepo struct {
	intakes *IntakeRepo
	events  *PaymentEventRepo
}

// NewStatsRepo creates a stats reader over db.
func NewStatsRepo(db *sql.DB) *StatsRepo {
	return &StatsRepo{intakes: NewIntakeRepo(db), events: NewPaymentEventRepo(db)}
}

// Counts returns intakes by status and the number of admitted events.
func (r *StatsRepo) Counts(ctx context.Context) (map[domain.IntakeStatus]int, int, error) {
	byStatus, err := r.intakes.CountByStatus(ctx)
	if err != nil {
		return nil, 0, err
	}
	events, err := r.events.CountAdmitted(ctx)
	if err != nil {
		return nil, 0, err
	}
	return byStatus, events, nil
}
