package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/keiba/internal/adapters/repository"
	"github.com/okian/keiba/internal/domain/race"
)

// RacesHandler serves merged race records.
type RacesHandler struct {
	deps Dependencies
}

// NewRacesHandler creates a new races handler.
func NewRacesHandler(deps Dependencies) *RacesHandler {
	return &RacesHandler{deps: deps}
}

// HandleList handles GET /races and GET /races?date=YYYYMMDD requests.
func (h *RacesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeJSON(w, http.StatusOK, h.deps.All(r.Context()))
		return
	}
	if err := race.ValidateDate(date); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	recs := h.deps.ByDate(r.Context(), date)
	if recs == nil {
		recs = []race.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// HandleGet handles GET /races/{date}/{track}/{race} requests. The track may
// be a venue code or name.
func (h *RacesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	rec, err := h.deps.Get(r.Context(), key)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("%w: %s", ErrNotFound, key))
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func keyFromPath(r *http.Request) (race.Key, error) {
	track, err := race.LookupVenue(r.PathValue("track"))
	if err != nil {
		return race.Key{}, err
	}
	n, err := strconv.Atoi(r.PathValue("race"))
	if err != nil {
		return race.Key{}, fmt.Errorf("race number %q", r.PathValue("race"))
	}
	return race.NewKey(r.PathValue("date"), track, n)
}
