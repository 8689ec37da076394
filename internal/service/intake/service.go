package intake

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ticketfight/appeal-service/internal/domain"
)

// CreateRequest is the user-submitted form.
type CreateRequest struct {
	CityID           string         `json:"city_id"`
	Email            string         `json:"email"`
	TicketNumber     string         `json:"ticket_number"`
	Statement        string         `json:"statement"`
	PhotoKeys        []string       `json:"photo_keys"`
	IssuingAuthority domain.Address `json:"issuing_authority"`
	ReturnAddress    domain.Address `json:"return_address"`
}

// Status is the public view of an intake. It never includes the statement.
type Status struct {
	ID            string              `json:"id"`
	Status        domain.IntakeStatus `json:"status"`
	FailureKind   domain.ErrorKind    `json:"failure_kind,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Service implements intake creation and lookup.
type Service struct {
	repo      Repository
	cities    Eligibility
	maxPhotos int
}

// NewService creates an intake service.
func NewService(repo Repository, cities Eligibility) *Service {
	return &Service{repo: repo, cities: cities, maxPhotos: 10}
}

// Create validates req, checks eligibility and stores a new intake. The
// address starts unverified; only VerifyEmail marks it, so notifications
// never go to an address the submitter merely claimed.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Intake, error) {
	if err := validate(req, s.maxPhotos); err != nil {
		return nil, err
	}
	if !s.cities.IsEligible(ctx, req.CityID) {
		return nil, ErrIneligible
	}

	now := time.Now().UTC()
	in := &domain.Intake{
		ID:               uuid.New().String(),
		CityID:           req.CityID,
		Email:            strings.ToLower(strings.TrimSpace(req.Email)),
		TicketNumber:     strings.TrimSpace(req.TicketNumber),
		Statement:        req.Statement,
		PhotoKeys:        req.PhotoKeys,
		IssuingAuthority: req.IssuingAuthority,
		ReturnAddress:    req.ReturnAddress,
		Status:           domain.IntakeCreated,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Create(ctx, in); err != nil {
		return nil, fmt.Errorf("create intake: %w", err)
	}
	return in, nil
}

// VerifyEmail records that the intake's address was confirmed.
func (s *Service) VerifyEmail(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return s.repo.MarkEmailVerified(ctx, id)
}

// Status returns the public status of an intake.
func (s *Service) Status(ctx context.Context, id string) (*Status, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	in, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Status{
		ID:            in.ID,
		Status:        in.Status,
		FailureKind:   in.FailureKind,
		FailureReason: in.FailureReason,
		UpdatedAt:     in.UpdatedAt,
	}, nil
}

func validate(req CreateRequest, maxPhotos int) error {
	var problems []string
	if strings.TrimSpace(req.CityID) == "" {
		problems = append(problems, "city_id")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		problems = append(problems, "email")
	}
	if strings.TrimSpace(req.TicketNumber) == "" {
		problems = append(problems, "ticket_number")
	}
	if strings.TrimSpace(req.Statement) == "" {
		problems = append(problems, "statement")
	}
	if len(req.PhotoKeys) > maxPhotos {
		problems = append(problems, "photo_keys")
	}
	if missing := req.IssuingAuthority.Validate(); len(missing) > 0 {
		problems = append(problems, "issuing_authority."+strings.Join(missing, ","))
	}
	if missing := req.ReturnAddress.Validate(); len(missing) > 0 {
		problems = append(problems, "return_address."+strings.Join(missing, ","))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
