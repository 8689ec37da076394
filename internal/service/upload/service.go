package upload

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"github.com/ticketfight/appeal-service/internal/pkg/logger"
	"github.com/ticketfight/appeal-service/internal/storage"
)

// ObjectStore is the part of storage.PhotoStore uploads need.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, size int64, body io.Reader) error
	PresignPut(ctx context.Context, key, contentType string, size int64, ttl time.Duration) (*storage.PresignedUpload, error)
}

// Config limits accepted photos.
type Config struct {
	MaxBytes     int64
	AllowedTypes []string
	PresignTTL   time.Duration
}

// Request describes a photo before its bytes are read.
type Request struct {
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Result is a stored photo.
type Result struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Service validates and stores photos.
type Service struct {
	store ObjectStore
	cfg   Config
	log   *logger.Logger
}

func NewService(store ObjectStore, cfg Config, log *logger.Logger) *Service {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if len(cfg.AllowedTypes) == 0 {
		cfg.AllowedTypes = []string{"image/jpeg", "image/png", "image/webp"}
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}
	if log == nil {
		log = logger.Default()
	}
	return &Service{store: store, cfg: cfg, log: log.With("component", "upload")}
}

// MaxBytes is the per-photo limit.
func (s *Service) MaxBytes() int64 { return s.cfg.MaxBytes }

// Check validates declared metadata. It never sees the body.
func (s *Service) Check(req Request) (string, error) {
	if req.Size <= 0 {
		return "", ErrEmpty
	}
	if req.Size > s.cfg.MaxBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, req.Size, s.cfg.MaxBytes)
	}
	ct := normalizeType(req.ContentType)
	for _, t := range s.cfg.AllowedTypes {
		if ct == t {
			return ct, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedType, req.ContentType)
}

// Presign issues a direct-to-bucket upload URL for a checked photo.
func (s *Service) Presign(ctx context.Context, req Request) (*storage.PresignedUpload, error) {
	ct, err := s.Check(req)
	if err != nil {
		return nil, err
	}
	return s.store.PresignPut(ctx, newKey(ct), ct, req.Size, s.cfg.PresignTTL)
}

// Upload stores a photo streamed through the API. body is not read unless
// the declared size and type pass Check.
func (s *Service) Upload(ctx context.Context, req Request, body io.Reader) (*Result, error) {
	ct, err := s.Check(req)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(body, req.Size+1))
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	if int64(len(data)) != req.Size {
		return nil, fmt.Errorf("%w: declared %d, got %d", ErrSizeMismatch, req.Size, len(data))
	}

	if sniffed := http.DetectContentType(data); sniffed != ct {
		return nil, fmt.Errorf("%w: declared %s, content is %s", ErrCorrupt, ct, sniffed)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if "image/"+format != ct {
		return nil, fmt.Errorf("%w: decoded as %s", ErrCorrupt, format)
	}

	key := newKey(ct)
	if err := s.store.Put(ctx, key, ct, req.Size, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	s.log.Info("photo stored", "key", key, "content_type", ct, "size", req.Size)
	return &Result{Key: key, ContentType: ct, Size: req.Size, Width: cfg.Width, Height: cfg.Height}, nil
}

func newKey(contentType string) string {
	return "photos/" + uuid.NewString() + extensions[contentType]
}

func normalizeType(ct string) string {
	return strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
}
