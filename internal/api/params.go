package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/norad/internal/httputil"
	"github.com/star/norad/internal/norad"
	"github.com/star/norad/internal/propagation"
	"github.com/star/norad/internal/site"
	"github.com/star/norad/internal/tle"
)

// Catalog numbers fit the five-digit TLE field.
const maxNORADID = 99999

func noradID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("norad_id"))
	if err != nil || id < 1 || id > maxNORADID {
		return 0, fmt.Errorf("invalid norad_id, must be 1-%d", maxNORADID)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s parameter, must be %d-%d", name, lo, hi)
	}
	return n, nil
}

// queryFloat reads an optional float. A nil def makes it required.
func queryFloat(r *http.Request, name string, def *float64, lo, hi float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		if def == nil {
			return 0, fmt.Errorf("missing %s parameter", name)
		}
		return *def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < lo || f > hi {
		return 0, fmt.Errorf("invalid %s parameter, must be %g to %g", name, lo, hi)
	}
	return f, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s parameter, must be a boolean", name)
	}
	return b, nil
}

// queryTime reads an RFC 3339 instant, defaulting to now.
func queryTime(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s parameter, must be RFC 3339", name)
	}
	return t.UTC(), nil
}

var defaultAltKm = 0.0

// querySite reads lat, lon (degrees, required), alt_km and refraction.
func querySite(r *http.Request) (site.Site, error) {
	lat, err := queryFloat(r, "lat", nil, -90, 90)
	if err != nil {
		return site.Site{}, err
	}
	lon, err := queryFloat(r, "lon", nil, -180, 180)
	if err != nil {
		return site.Site{}, err
	}
	alt, err := queryFloat(r, "alt_km", &defaultAltKm, -0.5, 10)
	if err != nil {
		return site.Site{}, err
	}
	refraction, err := queryBool(r, "refraction")
	if err != nil {
		return site.Site{}, err
	}
	var opts []site.Option
	if refraction {
		opts = append(opts, site.WithRefraction())
	}
	return site.New(lat, lon, alt, opts...), nil
}

// writePropagationError maps propagation failures to status codes.
func writePropagationError(w http.ResponseWriter, logger *slog.Logger, id int, err error) {
	var decay *norad.DecayError
	switch {
	case errors.Is(err, propagation.ErrNoDataset):
		httputil.WriteError(w, http.StatusServiceUnavailable, "no TLE data loaded")
	case errors.Is(err, propagation.ErrUnknownSatellite), errors.Is(err, tle.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, fmt.Sprintf("satellite %d not found", id))
	case errors.As(err, &decay), errors.Is(err, norad.ErrInvalidOrbit):
		httputil.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httputil.WriteError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		logger.Error("propagation failed", "norad_id", id, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "propagation failed")
	}
}
