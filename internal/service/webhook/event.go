package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ticketfight/appeal-service/internal/carrier"
	"github.com/ticketfight/appeal-service/internal/domain"
)

// paymentEnvelope is the subset of a payment processor event we read.
type paymentEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ClientReferenceID string            `json:"client_reference_id"`
			PaymentStatus     string            `json:"payment_status"`
			Metadata          map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ParsePaymentEvent decodes an already verified body. Events of a type the
// pipeline does not act on, and checkouts whose payment has not settled
// (async methods report "unpaid" until async_payment_succeeded), are
// returned with an empty IntakeID and ok=false.
func ParsePaymentEvent(body []byte, signature string, receivedAt time.Time) (ev *domain.PaymentEvent, ok bool, err error) {
	var env paymentEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if strings.TrimSpace(env.ID) == "" {
		return nil, false, ErrMissingEventID
	}

	ev = &domain.PaymentEvent{
		EventID:    env.ID,
		Type:       env.Type,
		Payload:    body,
		Signature:  signature,
		ReceivedAt: receivedAt.UTC(),
	}
	obj := env.Data.Object
	if !domain.IsPaymentEventType(env.Type) || !domain.IsSettled(obj.PaymentStatus) {
		return ev, false, nil
	}

	intakeID := obj.ClientReferenceID
	if intakeID == "" {
		intakeID = obj.Metadata["intake_id"]
	}
	if intakeID == "" {
		return nil, false, ErrMissingIntakeID
	}
	ev.IntakeID = intakeID
	return ev, true, nil
}

// CarrierEvent is a tracking update pushed by the mail carrier.
type CarrierEvent struct {
	EventID    string
	TrackingID string
	Status     domain.MailStatus
	Raw        string
}

type carrierEnvelope struct {
	ID        string `json:"id"`
	EventType struct {
		ID string `json:"id"`
	} `json:"event_type"`
	Body struct {
		ID string `json:"id"`
	} `json:"body"`
}

// ParseCarrierEvent decodes a verified tracking webhook. Event types that do
// not map to a delivery status return ok=false.
func ParseCarrierEvent(body []byte) (*CarrierEvent, bool, error) {
	var env carrierEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.ID == "" || env.Body.ID == "" {
		return nil, false, ErrMissingEventID
	}
	status, known := CarrierStatus(env.EventType.ID)
	ev := &CarrierEvent{EventID: env.ID, TrackingID: env.Body.ID, Status: status, Raw: env.EventType.ID}
	return ev, known, nil
}

// CarrierStatus maps a carrier event or tracking type to a MailStatus.
func CarrierStatus(eventType string) (domain.MailStatus, bool) {
	return carrier.StatusOf(eventType)
}
