package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/star/norad/internal/httputil"
	"github.com/star/norad/internal/propagation"
)

// maxPositions bounds the samples of one propagate request.
const maxPositions = 10000

type positionJSON struct {
	Time        time.Time  `json:"time"`
	PositionECI [3]float64 `json:"eci_km"`
	VelocityECI [3]float64 `json:"eci_velocity_kms"`
	PositionECF [3]float64 `json:"ecef_m"`
	VelocityECF [3]float64 `json:"ecef_velocity_ms"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	AltitudeKm  float64    `json:"altitude_km"`
}

type propagateResponse struct {
	NORADID       int            `json:"norad_id"`
	Name          string         `json:"name"`
	Model         string         `json:"model"`
	Epoch         time.Time      `json:"epoch"`
	PeriodMinutes float64        `json:"period_minutes"`
	StepSeconds   int            `json:"step_seconds"`
	Positions     []positionJSON `json:"positions"`
}

// GET /api/v1/propagate/{norad_id}?start=RFC3339&horizon=600&step=10
func propagateSingleHandler(logger *slog.Logger, prop *propagation.Propagator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := noradID(r)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		start, err := queryTime(r, "start")
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		horizon, err := queryInt(r, "horizon", 600, 1, 7*86400)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		step, err := queryInt(r, "step", 10, 1, 3600)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		n := horizon/step + 1
		if n > maxPositions {
			httputil.WriteJSON(w, http.StatusBadRequest, map[string]any{
				"error":         fmt.Sprintf("horizon/step yields %d positions", n),
				"max_positions": maxPositions,
			})
			return
		}

		o, err := prop.Orbit(id)
		if err != nil {
			writePropagationError(w, logger, id, err)
			return
		}
		stepDur := time.Duration(step) * time.Second
		track, err := prop.Track(r.Context(), id, start, stepDur, n)
		if err != nil {
			writePropagationError(w, logger, id, err)
			return
		}

		resp := propagateResponse{
			NORADID:       id,
			Name:          o.SatName(false),
			Model:         o.Model().String(),
			Epoch:         o.Epoch().Time(),
			PeriodMinutes: o.Period() / 60,
			StepSeconds:   step,
			Positions:     make([]positionJSON, len(track)),
		}
		for i, s := range track {
			resp.Positions[i] = positionJSON{
				Time:        start.Add(time.Duration(i) * stepDur),
				PositionECI: s.PositionECI,
				VelocityECI: s.VelocityECI,
				PositionECF: s.PositionECEF,
				VelocityECF: s.VelocityECEF,
				Latitude:    s.LatDeg,
				Longitude:   s.LonDeg,
				AltitudeKm:  s.AltKm,
			}
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

type lookResponse struct {
	NORADID      int       `json:"norad_id"`
	Site         string    `json:"site"`
	Time         time.Time `json:"time"`
	AzimuthDeg   float64   `json:"azimuth"`
	ElevationDeg float64   `json:"elevation"`
	RangeKm      float64   `json:"range_km"`
	RangeRateKms float64   `json:"range_rate_kms"`
	AboveHorizon bool      `json:"above_horizon"`
}

// GET /api/v1/look/{norad_id}?lat=..&lon=..&alt_km=0&time=RFC3339&refraction=false
func lookHandler(logger *slog.Logger, prop *propagation.Propagator) http.HandlerFunc {
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
		t, err := queryTime(r, "time")
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		eci, err := prop.ECIAt(r.Context(), id, t)
		if err != nil {
			writePropagationError(w, logger, id, err)
			return
		}
		topo := s.LookAngle(eci)
		httputil.WriteJSON(w, http.StatusOK, lookResponse{
			NORADID:      id,
			Site:         s.String(),
			Time:         t,
			AzimuthDeg:   topo.AzDeg(),
			ElevationDeg: topo.ElDeg(),
			RangeKm:      topo.Range,
			RangeRateKms: topo.RangeRate,
			AboveHorizon: topo.El > 0,
		})
	}
}
