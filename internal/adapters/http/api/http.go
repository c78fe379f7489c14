// Package api serves the read-only HTTP view of the entity store.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/keiba/internal/domain/race"
)

// Dependencies required by HTTP handlers. The entity store satisfies it.
type Dependencies interface {
	Get(ctx context.Context, key race.Key) (race.Record, error)
	All(ctx context.Context) []race.Record
	ByDate(ctx context.Context, date string) []race.Record
	Dates(ctx context.Context) []string
	Count(ctx context.Context) int
}

// Server wires HTTP routes for the read API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	racesHandler  *RacesHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(deps),
		racesHandler:  NewRacesHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /races", MetricsMiddleware(s.racesHandler.HandleList, "races"))
	mux.HandleFunc("GET /races/{date}/{track}/{race}", MetricsMiddleware(s.racesHandler.HandleGet, "race"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
