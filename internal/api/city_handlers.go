package api

import (
	"net/http"
	"strconv"

	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/pkg/httputil"
)

type cityList struct {
	Cities []domain.City `json:"cities"`
	Count  int           `json:"count"`
}

// ListCities lists supported cities. Blocked cities are left out unless
// eligible=false asks for the full registry.
//
//	GET /cities?eligible=true|false
func (h *Handlers) ListCities(w http.ResponseWriter, r *http.Request) {
	eligibleOnly := true
	if v := r.URL.Query().Get("eligible"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httputil.BadRequest(w, "eligible must be true or false")
			return
		}
		eligibleOnly = b
	}
	cities := h.Cities.List(r.Context(), !eligibleOnly)
	if cities == nil {
		cities = []domain.City{}
	}
	httputil.OK(w, cityList{Cities: cities, Count: len(cities)})
}
