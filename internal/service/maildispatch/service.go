package maildispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ticketfight/appeal-service/internal/carrier"
	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/pkg/logger"
	"github.com/ticketfight/appeal-service/internal/storage"
)

// PhotoStore is the part of storage.PhotoStore dispatch needs. Only
// metadata is read; photo bytes are never loaded here.
type PhotoStore interface {
	Stat(ctx context.Context, key string) (*storage.ObjectInfo, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Config bounds the photos embedded in a letter.
type Config struct {
	MaxPhotoBytes int64
	AllowedTypes  []string
	PhotoURLTTL   time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxPhotoBytes <= 0 {
		c.MaxPhotoBytes = 10 << 20
	}
	if len(c.AllowedTypes) == 0 {
		c.AllowedTypes = []string{"image/jpeg", "image/png", "image/webp"}
	}
	if c.PhotoURLTTL <= 0 {
		// Printing can lag submission by days.
		c.PhotoURLTTL = 7 * 24 * time.Hour
	}
}

// SendRequest is one letter to mail.
type SendRequest struct {
	IntakeID       string
	TicketNumber   string
	CityName       string
	Statement      string
	To             domain.Address
	From           domain.Address
	IdempotencyKey string
	PhotoKeys      []string
}

// Service mails appeal letters.
type Service struct {
	carrier carrier.Client
	photos  PhotoStore
	letter  *letterRenderer
	cfg     Config
	log     *logger.Logger
	now     func() time.Time
}

// NewService creates a dispatch service. photos may be nil when no
// intake carries evidence.
func NewService(c carrier.Client, photos PhotoStore, cfg Config, log *logger.Logger) (*Service, error) {
	cfg.applyDefaults()
	r, err := newLetterRenderer()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		carrier: c,
		photos:  photos,
		letter:  r,
		cfg:     cfg,
		log:     log.With("component", "maildispatch"),
		now:     time.Now,
	}, nil
}

// Send renders and submits the letter. A returned MailResult is never in
// terminal success; delivery is reported later through Track or the
// carrier webhook. Errors are *domain.MailDispatchError.
func (s *Service) Send(ctx context.Context, req SendRequest) (*domain.MailResult, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = domain.MailIdempotencyKey(req.IntakeID)
	}
	if missing := req.To.Validate(); len(missing) > 0 {
		return nil, &domain.MailDispatchError{Permanent: true, Reason: "recipient address missing " + strings.Join(missing, ", ")}
	}
	if missing := req.From.Validate(); len(missing) > 0 {
		return nil, &domain.MailDispatchError{Permanent: true, Reason: "return address missing " + strings.Join(missing, ", ")}
	}
	if strings.TrimSpace(req.Statement) == "" {
		return nil, &domain.MailDispatchError{Permanent: true, Reason: "empty statement"}
	}

	urls, err := s.photoURLs(ctx, req.IntakeID, req.PhotoKeys)
	if err != nil {
		return nil, err
	}

	body, err := s.letter.render(letterData{
		Date:         s.now(),
		TicketNumber: req.TicketNumber,
		CityName:     req.CityName,
		Statement:    req.Statement,
		To:           addressBinding(req.To),
		From:         addressBinding(req.From),
		PhotoURLs:    urls,
	})
	if err != nil {
		return nil, &domain.MailDispatchError{Permanent: true, Reason: "render letter", Err: err}
	}

	letter, err := s.carrier.CreateLetter(ctx, carrier.LetterRequest{
		IdempotencyKey: req.IdempotencyKey,
		Description:    "appeal " + req.IntakeID,
		To:             req.To,
		From:           req.From,
		HTML:           body,
		Metadata:       map[string]string{"intake_id": req.IntakeID},
	})
	if err != nil {
		s.log.Warn("carrier rejected letter", "intake_id", req.IntakeID, "transient", domain.IsTransient(err), "error", err)
		return nil, err
	}

	s.log.Info("letter submitted", "intake_id", req.IntakeID, "tracking_id", letter.ID, "photos", len(urls))
	now := s.now().UTC()
	status := letter.Status
	if status == "" || status == domain.MailDelivered {
		// A freshly created letter cannot be delivered yet.
		status = domain.MailSubmitted
	}
	return &domain.MailResult{
		IntakeID:       req.IntakeID,
		TrackingID:     letter.ID,
		Status:         status,
		To:             req.To,
		From:           req.From,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Track returns the carrier's current status for a letter.
func (s *Service) Track(ctx context.Context, trackingID string) (domain.MailStatus, string, error) {
	letter, err := s.carrier.GetLetter(ctx, trackingID)
	if err != nil {
		return "", "", err
	}
	reason := ""
	if letter.Status == domain.MailFailed {
		reason = "carrier reported " + letter.LastEvent
	}
	return letter.Status, reason, nil
}

// photoURLs checks each photo's metadata and returns presigned GET URLs.
// A missing, oversized or wrongly typed photo is left out of the letter;
// the rest of the appeal still goes out. An unreachable store is a
// transient dispatch failure.
func (s *Service) photoURLs(ctx context.Context, intakeID string, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if s.photos == nil {
		s.log.Warn("photos dropped, no photo store configured", "intake_id", intakeID, "photos", len(keys))
		return nil, nil
	}
	urls := make([]string, 0, len(keys))
	for _, key := range keys {
		info, err := s.photos.Stat(ctx, key)
		if err != nil {
			if !storage.IsNotFound(err) {
				return nil, &domain.MailDispatchError{Reason: "photo store unavailable", Err: err}
			}
			s.skip(intakeID, &domain.StorageError{Key: key, Reason: "not found", Err: err})
			continue
		}
		if info.Size > s.cfg.MaxPhotoBytes {
			s.skip(intakeID, &domain.StorageError{Key: key, Reason: fmt.Sprintf("photo is %d bytes, limit %d", info.Size, s.cfg.MaxPhotoBytes)})
			continue
		}
		if !s.allowedType(info.ContentType) {
			s.skip(intakeID, &domain.StorageError{Key: key, Reason: fmt.Sprintf("content type %q not allowed", info.ContentType)})
			continue
		}
		u, err := s.photos.PresignGet(ctx, key, s.cfg.PhotoURLTTL)
		if err != nil {
			return nil, &domain.MailDispatchError{Reason: "presign photo", Err: err}
		}
		urls = append(urls, u)
	}
	return urls, nil
}

func (s *Service) skip(intakeID string, err *domain.StorageError) {
	s.log.Warn("photo left out of letter", "intake_id", intakeID, "key", err.Key, "reason", err.Reason)
}

func (s *Service) allowedType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	for _, t := range s.cfg.AllowedTypes {
		if ct == t {
			return true
		}
	}
	return false
}

func addressBinding(a domain.Address) map[string]any {
	return map[string]any{
		"name":  a.Name,
		"line1": a.Line1,
		"line2": a.Line2,
		"city":  a.City,
		"state": a.State,
		"zip":   a.Zip,
	}
}
