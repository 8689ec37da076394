package api

import (
	"errors"
	"net"
	"net/http"

	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/pkg/httputil"
	"github.com/ticketfight/appeal-service/internal/service/upload"
)

// allowUpload applies the per-client upload rate limit. A limiter outage
// lets the request through.
func (h *Handlers) allowUpload(w http.ResponseWriter, r *http.Request) bool {
	if h.UploadLimiter == nil {
		return true
	}
	ok, err := h.UploadLimiter.Allow(r.Context(), clientHost(r))
	if err != nil {
		h.log().Warn("upload rate limiter unavailable", "error", err)
		return true
	}
	if !ok {
		httputil.TooManyRequests(w, "too many uploads, try again later")
		return false
	}
	return true
}

// clientHost is the limiter key. RealIP rewrites RemoteAddr to a bare IP
// behind a proxy; a direct connection still carries its ephemeral port.
func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// PresignUpload issues a direct-to-storage upload URL for a photo whose
// declared size and type are acceptable.
//
//	POST /uploads/presign
func (h *Handlers) PresignUpload(w http.ResponseWriter, r *http.Request) {
	if !h.allowUpload(w, r) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 4<<10)
	var req upload.Request
	if !httputil.Decode(w, r, &req) {
		return
	}
	p, err := h.Uploads.Presign(r.Context(), req)
	if err != nil {
		h.uploadError(w, err)
		return
	}
	httputil.OK(w, p)
}

// Upload stores a photo sent as the raw request body. The declared length
// and type are checked before any of the body is read.
//
//	POST /uploads
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	if !h.allowUpload(w, r) {
		return
	}
	if r.ContentLength < 0 {
		httputil.Error(w, http.StatusLengthRequired, "Content-Length is required")
		return
	}
	req := upload.Request{ContentType: r.Header.Get("Content-Type"), Size: r.ContentLength}
	if _, err := h.Uploads.Check(req); err != nil {
		h.uploadError(w, err)
		return
	}

	res, err := h.Uploads.Upload(r.Context(), req, r.Body)
	if err != nil {
		h.uploadError(w, err)
		return
	}
	httputil.Created(w, res)
}

func (h *Handlers) uploadError(w http.ResponseWriter, err error) {
	var se *domain.StorageError
	switch {
	case errors.Is(err, upload.ErrTooLarge):
		httputil.Error(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, upload.ErrUnsupportedType):
		httputil.Error(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, upload.ErrEmpty),
		errors.Is(err, upload.ErrSizeMismatch),
		errors.Is(err, upload.ErrCorrupt):
		httputil.BadRequest(w, err.Error())
	case errors.As(err, &se):
		h.log().Error("photo storage failed", "key", se.Key, "reason", se.Reason)
		httputil.InternalError(w, err)
	default:
		httputil.InternalError(w, err)
	}
}
