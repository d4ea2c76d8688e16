package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/star/norad/internal/httputil"
	"github.com/star/norad/internal/passes"
	"github.com/star/norad/internal/tle"
)

type passesResponse struct {
	passes.SatellitePasses
	Site  string    `json:"site"`
	Start time.Time `json:"start"`
	Hours int       `json:"hours"`
}

// GET /api/v1/passes/{norad_id}?lat=..&lon=..&hours=24&min_elevation=10&max_passes=10
func passesHandler(logger *slog.Logger, store *tle.Store) http.HandlerFunc {
	defMinEl := 10.0
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := noradID(r)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		s, err := querySite(r)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		start, err := queryTime(r, "start")
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		hours, err := queryInt(r, "hours", 24, 1, 168)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		minEl, err := queryFloat(r, "min_elevation", &defMinEl, 0, 90)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		maxPasses, err := queryInt(r, "max_passes", 10, 1, 50)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		if store.Get() == nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, "no TLE data loaded")
			return
		}
		entry, ok := store.Lookup(id)
		if !ok {
			writePropagationError(w, logger, id, tle.ErrNotFound)
			return
		}

		res := passes.Predict(r.Context(), passes.Request{
			Site:         s,
			Entries:      []tle.TLEEntry{entry},
			Start:        start,
			Horizon:      time.Duration(hours) * time.Hour,
			MinElevation: minEl,
			MaxPasses:    maxPasses,
			Logger:       logger,
		})[0]

		if res.Error != "" && len(res.Passes) == 0 {
			httputil.WriteError(w, http.StatusUnprocessableEntity, res.Error)
			return
		}
		if res.Passes == nil {
			res.Passes = []passes.PassEvent{}
		}
		httputil.WriteJSON(w, http.StatusOK, passesResponse{
			SatellitePasses: res,
			Site:            s.String(),
			Start:           start,
			Hours:           hours,
		})
	}
}
