package domain

import "time"

// IntakeStatus is the lifecycle state of a dispute case.
type IntakeStatus string

const (
	IntakeCreated IntakeStatus = "created"
	IntakePaid    IntakeStatus = "paid"
	IntakeRefined IntakeStatus = "refined"
	IntakeMailed  IntakeStatus = "mailed"
	IntakeFailed  IntakeStatus = "failed"
)

// AllIntakeStatuses lists every status in lifecycle order.
func AllIntakeStatuses() []IntakeStatus {
	return []IntakeStatus{IntakeCreated, IntakePaid, IntakeRefined, IntakeMailed, IntakeFailed}
}

// Terminal reports whether no further transition can leave this status.
func (s IntakeStatus) Terminal() bool {
	return s == IntakeMailed || s == IntakeFailed
}

// Next returns the status that follows s on the happy path, or "" when s is
// terminal.
func (s IntakeStatus) Next() IntakeStatus {
	switch s {
	case IntakeCreated:
		return IntakePaid
	case IntakePaid:
		return IntakeRefined
	case IntakeRefined:
		return IntakeMailed
	default:
		return ""
	}
}

// CanTransition reports whether moving from s to to is a legal edge of the
// intake state machine. failed is reachable from every non-terminal status.
func (s IntakeStatus) CanTransition(to IntakeStatus) bool {
	if s.Terminal() {
		return false
	}
	if to == IntakeFailed {
		return true
	}
	return s.Next() == to
}

// Intake is one user's ticket dispute case.
type Intake struct {
	ID               string       `json:"id" db:"id"`
	CityID           string       `json:"city_id" db:"city_id"`
	Email            string       `json:"email" db:"email"`
	EmailVerified    bool         `json:"email_verified" db:"email_verified"`
	TicketNumber     string       `json:"ticket_number" db:"ticket_number"`
	Statement        string       `json:"statement" db:"statement"`
	PhotoKeys        []string     `json:"photo_keys" db:"photo_keys"`
	IssuingAuthority Address      `json:"issuing_authority" db:"issuing_authority"`
	ReturnAddress    Address      `json:"return_address" db:"return_address"`
	Status           IntakeStatus `json:"status" db:"status"`
	PaymentEventID   string       `json:"payment_event_id,omitempty" db:"payment_event_id"`
	FailureKind      ErrorKind    `json:"failure_kind,omitempty" db:"failure_kind"`
	FailureReason    string       `json:"failure_reason,omitempty" db:"failure_reason"`
	StageAttempts    int          `json:"stage_attempts" db:"stage_attempts"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at" db:"updated_at"`
}

// CaseFacts are the verified details of a case that the refined statement
// may rely on. Anything not listed here is treated as the user's account.
type CaseFacts struct {
	TicketNumber     string `json:"ticket_number"`
	CityName         string `json:"city_name"`
	IssuingAuthority string `json:"issuing_authority"`
	PhotoCount       int    `json:"photo_count"`
}

// Facts derives the CaseFacts for an intake.
func (i *Intake) Facts(cityName string) CaseFacts {
	return CaseFacts{
		TicketNumber:     i.TicketNumber,
		CityName:         cityName,
		IssuingAuthority: i.IssuingAuthority.Name,
		PhotoCount:       len(i.PhotoKeys),
	}
}

// MailIdempotencyKey is the stable key sent to the mail carrier for this
// intake. Every retry for the same intake yields the same key.
func MailIdempotencyKey(intakeID string) string {
	return "intake-" + intakeID
}
