package domain

import "time"

// RefinedStatement is the model-produced appeal narrative for an intake.
type RefinedStatement struct {
	IntakeID        string    `json:"intake_id" db:"intake_id"`
	Text            string    `json:"text" db:"text"`
	PolicyCompliant bool      `json:"policy_compliant" db:"policy_compliant"`
	Provider        string    `json:"provider" db:"provider"`
	Model           string    `json:"model" db:"model"`
	Attempts        int       `json:"attempts" db:"attempts"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
