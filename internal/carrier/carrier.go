// Package carrier talks to the physical mail provider. The only
// implementation is a client for a Lob-compatible letters API.
package carrier

import (
	"context"
	"strings"
	"time"

	"github.com/ticketfight/appeal-service/internal/domain"
)

// LetterRequest is one letter to print and mail.
type LetterRequest struct {
	IdempotencyKey string
	Description    string
	To             domain.Address
	From           domain.Address
	HTML           string
	Metadata       map[string]string
}

// Letter is the carrier's view of a submitted letter.
type Letter struct {
	ID               string
	Status           domain.MailStatus
	LastEvent        string
	ExpectedDelivery time.Time
}

// Client is the carrier API. Errors are *domain.MailDispatchError.
type Client interface {
	CreateLetter(ctx context.Context, req LetterRequest) (*Letter, error)
	GetLetter(ctx context.Context, id string) (*Letter, error)
}

// StatusOf maps a carrier tracking event name or webhook type ("In Local
// Area", "letter.delivered") to a MailStatus.
func StatusOf(event string) (domain.MailStatus, bool) {
	t := strings.ToLower(strings.TrimSpace(event))
	t = strings.TrimPrefix(t, "letter.")
	t = strings.ReplaceAll(t, " ", "_")
	switch t {
	case "created", "rendered_pdf", "rendered_thumbnails", "mailed":
		return domain.MailSubmitted, true
	case "in_transit", "in_local_area", "processed_for_delivery", "re-routed":
		return domain.MailInTransit, true
	case "delivered":
		return domain.MailDelivered, true
	case "returned_to_sender", "failed", "deleted", "cancelled":
		return domain.MailFailed, true
	}
	return "", false
}
