package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/pkg/httputil"
	"github.com/ticketfight/appeal-service/internal/queue"
	"github.com/ticketfight/appeal-service/internal/service/pipeline"
	"github.com/ticketfight/appeal-service/internal/service/webhook"
)

const (
	paymentSignatureHeader = "Stripe-Signature"
	carrierSignatureHeader = "Carrier-Signature"
)

type webhookAck struct {
	Status string `json:"status"`
}

// readBody reads at most the configured number of bytes. The signature is
// checked over exactly these bytes before anything parses them.
func (h *Handlers) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody()))
	if err != nil {
		httputil.BadRequest(w, "unreadable body")
		return nil, false
	}
	return body, true
}

// PaymentWebhook admits a signed payment event. It answers as soon as the
// event is durably recorded; the pipeline runs afterwards.
//
//	POST /webhooks/payments
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		h.Metrics.WebhooksTotal.WithLabelValues("payment", "unreadable").Inc()
		return
	}
	sig := r.Header.Get(paymentSignatureHeader)
	if h.PaymentVerifier.Verify(body, sig) != webhook.Valid {
		h.Metrics.WebhooksTotal.WithLabelValues("payment", "unauthenticated").Inc()
		h.log().Warn("payment webhook rejected", "reason", domain.AuthenticationError{}.Error(), "remote", r.RemoteAddr)
		httputil.BadRequest(w, "invalid signature")
		return
	}

	ev, actionable, err := webhook.ParsePaymentEvent(body, sig, h.clock())
	if err != nil {
		h.Metrics.WebhooksTotal.WithLabelValues("payment", "malformed").Inc()
		httputil.BadRequest(w, "malformed event")
		return
	}
	if !actionable {
		h.Metrics.WebhooksTotal.WithLabelValues("payment", "ignored").Inc()
		h.log().Info("payment event ignored", "event_id", ev.EventID, "type", ev.Type)
		httputil.OK(w, webhookAck{Status: "ignored"})
		return
	}

	admission, err := h.Dedupe.Admit(r.Context(), ev)
	if err != nil {
		// Not recorded: a 5xx makes the processor redeliver.
		h.Metrics.WebhooksTotal.WithLabelValues("payment", "error").Inc()
		httputil.InternalError(w, err)
		return
	}
	h.Metrics.EventsAdmitted.WithLabelValues(admission.String()).Inc()
	h.Metrics.WebhooksTotal.WithLabelValues("payment", admission.String()).Inc()

	if admission == domain.Accepted {
		// The job outlives this request; a failed hand-off is left to the
		// recovery sweep.
		ctx := context.WithoutCancel(r.Context())
		if err := h.Publisher.Publish(ctx, queue.Job{IntakeID: ev.IntakeID, Reason: queue.ReasonPayment}); err != nil {
			h.log().Warn("publish job failed", "intake_id", ev.IntakeID, "error", err)
		}
	}
	httputil.OK(w, webhookAck{Status: admission.String()})
}

// CarrierWebhook applies a signed tracking update from the mail carrier.
//
//	POST /webhooks/carrier
func (h *Handlers) CarrierWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		h.Metrics.WebhooksTotal.WithLabelValues("carrier", "unreadable").Inc()
		return
	}
	if h.CarrierVerifier.Verify(body, r.Header.Get(carrierSignatureHeader)) != webhook.Valid {
		h.Metrics.WebhooksTotal.WithLabelValues("carrier", "unauthenticated").Inc()
		httputil.BadRequest(w, "invalid signature")
		return
	}

	ev, known, err := webhook.ParseCarrierEvent(body)
	if err != nil {
		h.Metrics.WebhooksTotal.WithLabelValues("carrier", "malformed").Inc()
		httputil.BadRequest(w, "malformed event")
		return
	}
	if !known {
		h.Metrics.WebhooksTotal.WithLabelValues("carrier", "ignored").Inc()
		httputil.OK(w, webhookAck{Status: "ignored"})
		return
	}

	reason := ""
	if ev.Status == domain.MailFailed {
		reason = "carrier reported " + ev.Raw
	}
	err = h.Deliveries.RecordDelivery(r.Context(), ev.TrackingID, ev.Status, reason)
	switch {
	case errors.Is(err, pipeline.ErrNoMailResult):
		h.Metrics.WebhooksTotal.WithLabelValues("carrier", "unknown").Inc()
		h.log().Warn("carrier event for unknown letter", "tracking_id", ev.TrackingID, "event_id", ev.EventID)
		httputil.OK(w, webhookAck{Status: "unknown"})
	case err != nil:
		h.Metrics.WebhooksTotal.WithLabelValues("carrier", "error").Inc()
		httputil.InternalError(w, err)
	default:
		h.Metrics.WebhooksTotal.WithLabelValues("carrier", "applied").Inc()
		httputil.OK(w, webhookAck{Status: "applied"})
	}
}
