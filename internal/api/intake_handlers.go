package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ticketfight/appeal-service/internal/pkg/httputil"
	"github.com/ticketfight/appeal-service/internal/service/intake"
)

type intakeCreated struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateIntake stores a new dispute case for an eligible city.
//
//	POST /intakes
func (h *Handlers) CreateIntake(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody())
	var req intake.CreateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	in, err := h.Intakes.Create(r.Context(), req)
	switch {
	case errors.Is(err, intake.ErrInvalid):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, intake.ErrIneligible):
		httputil.Error(w, http.StatusUnprocessableEntity, "city is not eligible for disputes")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.Created(w, intakeCreated{ID: in.ID, Status: string(in.Status)})
	}
}

// GetIntake reports an intake's status, including why it failed.
//
//	GET /intakes/{id}
func (h *Handlers) GetIntake(w http.ResponseWriter, r *http.Request) {
	st, err := h.Intakes.Status(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, intake.ErrNotFound):
		httputil.NotFound(w, "intake not found")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, st)
	}
}
