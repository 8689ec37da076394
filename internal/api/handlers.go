package api

import (
	"context"
	"io"
	"time"

	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/metrics"
	"github.com/ticketfight/appeal-service/internal/pkg/logger"
	"github.com/ticketfight/appeal-service/internal/pkg/ratelimit"
	"github.com/ticketfight/appeal-service/internal/service/intake"
	"github.com/ticketfight/appeal-service/internal/service/pipeline"
	"github.com/ticketfight/appeal-service/internal/service/upload"
	"github.com/ticketfight/appeal-service/internal/service/webhook"
	"github.com/ticketfight/appeal-service/internal/storage"
)

// Admitter is the event deduplicator.
type Admitter interface {
	Admit(ctx context.Context, ev *domain.PaymentEvent) (domain.Admission, error)
}

// DeliveryRecorder applies carrier status updates.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, trackingID string, status domain.MailStatus, reason string) error
}

// Intakes creates and reports on intakes.
type Intakes interface {
	Create(ctx context.Context, req intake.CreateRequest) (*domain.Intake, error)
	Status(ctx context.Context, id string) (*intake.Status, error)
}

// CityLister lists the eligibility registry.
type CityLister interface {
	List(ctx context.Context, includeAll bool) []domain.City
}

// Uploads validates and stores photos.
type Uploads interface {
	Check(req upload.Request) (string, error)
	Presign(ctx context.Context, req upload.Request) (*storage.PresignedUpload, error)
	Upload(ctx context.Context, req upload.Request, body io.Reader) (*upload.Result, error)
}

// StatsSource reports counters for /metrics. An error zeroes the response.
type StatsSource interface {
	Counts(ctx context.Context) (map[domain.IntakeStatus]int, int, error)
}

// Handlers holds the HTTP handlers' collaborators.
type Handlers struct {
	PaymentVerifier *webhook.Verifier
	CarrierVerifier *webhook.Verifier
	Dedupe          Admitter
	Publisher       pipeline.Publisher
	Deliveries      DeliveryRecorder
	Intakes         Intakes
	Cities          CityLister
	Uploads         Uploads
	UploadLimiter   ratelimit.Limiter
	Stats           StatsSource
	Metrics         *metrics.Metrics
	MaxBodyBytes    int64
	Log             *logger.Logger

	now func() time.Time
}

func (h *Handlers) log() *logger.Logger {
	if h.Log == nil {
		return logger.Default()
	}
	return h.Log
}

func (h *Handlers) clock() time.Time {
	if h.now == nil {
		return time.Now()
	}
	return h.now()
}

func (h *Handlers) maxBody() int64 {
	if h.MaxBodyBytes <= 0 {
		return 1 << 20
	}
	return h.MaxBodyBytes
}
