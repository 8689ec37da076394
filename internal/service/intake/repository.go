package intake

import (
	"context"

	"github.com/ticketfight/appeal-service/internal/domain"
)

// Repository defines the data access contract for intakes.
type Repository interface {
	// Create inserts a new intake in the created state.
	Create(ctx context.Context, in *domain.Intake) error

	// Get returns the intake or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Intake, error)

	// MarkEmailVerified sets email_verified, or returns ErrNotFound.
	MarkEmailVerified(ctx context.Context, id string) error
}

// Eligibility answers whether a city accepts disputes.
type Eligibility interface {
	IsEligible(ctx context.Context, cityID string) bool
}
