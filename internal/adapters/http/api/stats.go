package api

import (
	"net/http"
)

// StatsHandler handles stats requests.
type StatsHandler struct {
	deps Dependencies
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(deps Dependencies) *StatsHandler {
	return &StatsHandler{deps: deps}
}

type statsResponse struct {
	Records int      `json:"records"`
	Dates   []string `json:"dates"`
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	dates := h.deps.Dates(r.Context())
	if dates == nil {
		dates = []string{}
	}
	writeJSON(w, http.StatusOK, statsResponse{Records: h.deps.Count(r.Context()), Dates: dates})
}
