package api

import (
	"net/http"

	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/pkg/httputil"
)

type metricsResponse struct {
	Intakes        map[domain.IntakeStatus]int `json:"intakes"`
	EventsAdmitted int                         `json:"events_admitted"`
	RequestsServed int64                       `json:"requests_served"`
}

// ServeMetrics serves pipeline counters as JSON. A database error yields zeroed
// counters with a 200 so dashboards keep polling.
//
//	GET /metrics
func (h *Handlers) ServeMetrics(w http.ResponseWriter, r *http.Request) {
	resp := metricsResponse{Intakes: map[domain.IntakeStatus]int{}}
	for _, s := range domain.AllIntakeStatuses() {
		resp.Intakes[s] = 0
	}
	if h.Metrics != nil {
		resp.RequestsServed = h.Metrics.RequestsServed()
	}

	if h.Stats != nil {
		byStatus, events, err := h.Stats.Counts(r.Context())
		if err != nil {
			h.log().Warn("metrics counts unavailable", "error", err)
		} else {
			for s, n := range byStatus {
				resp.Intakes[s] = n
			}
			resp.EventsAdmitted = events
		}
	}
	httputil.OK(w, resp)
}
