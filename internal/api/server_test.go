package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/star/norad/internal/auth"
	"github.com/star/norad/internal/norad"
	"github.com/star/norad/internal/propagation"
	"github.com/star/norad/internal/tle"
)

const issSet = `ISS (ZARYA)
1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9009
2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    01
`

// Element epoch of issSet.
const epochQuery = "start=2024-04-09T12:00:00Z"

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testStore(t *testing.T) *tle.Store {
	t.Helper()
	store := tle.NewStore(testLogger())
	if _, err := store.Ingest("test", []byte(issSet), time.Now().UTC()); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	return store
}

func testPropagator(store *tle.Store) *propagation.Propagator {
	return propagation.NewPropagator(store, propagation.PropConfig{
		Workers: 1,
		Step:    5 * time.Second,
		Horizon: time.Minute,
	}, testLogger())
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return resp
}

func route(pattern string, h http.HandlerFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	return mux
}

// TestPropagateCPUBudget verifies that requests exceeding the max positions
// budget are rejected with 400 instead of consuming unbounded CPU.
func TestPropagateCPUBudget(t *testing.T) {
	mux := route("GET /api/v1/propagate/{norad_id}", propagateSingleHandler(testLogger(), testPropagator(testStore(t))))

	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{"max budget exceeded: horizon=86400 step=1", "?horizon=86400&step=1", http.StatusBadRequest},
		{"max budget exceeded: horizon=60000 step=5", "?horizon=60000&step=5", http.StatusBadRequest},
		{"within budget: default params", "?" + epochQuery, http.StatusOK},
		{"within budget: horizon=3600 step=1", "?horizon=3600&step=1&" + epochQuery, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/propagate/25544"+tt.query, nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusBadRequest {
				resp := decode(t, w)
				if resp["error"] == nil {
					t.Error("expected error field in response")
				}
				if resp["max_positions"] == nil {
					t.Error("expected max_positions field in response")
				}
			}
		})
	}
}

func TestPropagateResponse(t *testing.T) {
	mux := route("GET /api/v1/propagate/{norad_id}", propagateSingleHandler(testLogger(), testPropagator(testStore(t))))

	req := httptest.NewRequest("GET", "/api/v1/propagate/25544?horizon=60&step=30&"+epochQuery, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp propagateResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.NORADID != 25544 || resp.Model != "sgp4" || resp.Name != "ISS (ZARYA)" {
		t.Errorf("header = %d %q %q", resp.NORADID, resp.Model, resp.Name)
	}
	if resp.PeriodMinutes < 90 || resp.PeriodMinutes > 95 {
		t.Errorf("period = %.2f min", resp.PeriodMinutes)
	}
	if len(resp.Positions) != 3 {
		t.Fatalf("positions = %d, want 3", len(resp.Positions))
	}
	want := time.Date(2024, 4, 9, 12, 1, 0, 0, time.UTC)
	if !resp.Positions[2].Time.Equal(want) {
		t.Errorf("last time = %v, want %v", resp.Positions[2].Time, want)
	}
	for i, p := range resp.Positions {
		if p.AltitudeKm < 300 || p.AltitudeKm > 500 {
			t.Errorf("position %d: altitude %.1f km", i, p.AltitudeKm)
		}
	}
}

func TestPropagateErrors(t *testing.T) {
	store := testStore(t)
	mux := route("GET /api/v1/propagate/{norad_id}", propagateSingleHandler(testLogger(), testPropagator(store)))
	empty := route("GET /api/v1/propagate/{norad_id}", propagateSingleHandler(testLogger(), testPropagator(tle.NewStore(testLogger()))))

	tests := []struct {
		name   string
		mux    *http.ServeMux
		target string
		want   int
	}{
		{"non-numeric id", mux, "/api/v1/propagate/iss", http.StatusBadRequest},
		{"id out of range", mux, "/api/v1/propagate/100000", http.StatusBadRequest},
		{"unknown satellite", mux, "/api/v1/propagate/11111?" + epochQuery, http.StatusNotFound},
		{"bad start", mux, "/api/v1/propagate/25544?start=yesterday", http.StatusBadRequest},
		{"bad step", mux, "/api/v1/propagate/25544?step=0", http.StatusBadRequest},
		{"no dataset", empty, "/api/v1/propagate/25544?" + epochQuery, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.mux.ServeHTTP(w, httptest.NewRequest("GET", tt.target, nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if decode(t, w)["error"] == nil {
				t.Error("expected error field in response")
			}
		})
	}
}

func TestWritePropagationError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{propagation.ErrNoDataset, http.StatusServiceUnavailable},
		{fmt.Errorf("NORAD 1: %w", propagation.ErrUnknownSatellite), http.StatusNotFound},
		{tle.ErrNotFound, http.StatusNotFound},
		{&norad.DecayError{Tsince: 1e6, RadiusKm: 6000}, http.StatusUnprocessableEntity},
		{fmt.Errorf("bad: %w", norad.ErrInvalidOrbit), http.StatusUnprocessableEntity},
		{context.Canceled, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		writePropagationError(w, testLogger(), 25544, tt.err)
		if w.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, w.Code, tt.want)
		}
	}
}

func TestLookHandler(t *testing.T) {
	mux := route("GET /api/v1/look/{norad_id}", lookHandler(testLogger(), testPropagator(testStore(t))))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/look/25544?lon=8.5", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing lat: status = %d, want 400", w.Code)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/look/25544?lat=47.37&lon=8.54&alt_km=0.4&time=2024-04-09T12:00:00Z", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp lookResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AzimuthDeg < 0 || resp.AzimuthDeg >= 360 {
		t.Errorf("azimuth = %.2f", resp.AzimuthDeg)
	}
	if resp.ElevationDeg < -90 || resp.ElevationDeg > 90 {
		t.Errorf("elevation = %.2f", resp.ElevationDeg)
	}
	if resp.RangeKm < 300 || resp.RangeKm > 13500 {
		t.Errorf("range = %.0f km", resp.RangeKm)
	}
	if resp.AboveHorizon != (resp.ElevationDeg > 0) {
		t.Errorf("above_horizon = %v with elevation %.2f", resp.AboveHorizon, resp.ElevationDeg)
	}
	if resp.Site != "47.370N, 008.540E, 400.0m" {
		t.Errorf("site = %q", resp.Site)
	}
}

func TestPassesHandler(t *testing.T) {
	mux := route("GET /api/v1/passes/{norad_id}", passesHandler(testLogger(), testStore(t)))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/passes/25544?lat=40.71&lon=-74.0&min_elevation=0&hours=24&"+epochQuery, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["norad_id"] != 25544.0 || resp["model"] != "sgp4" {
		t.Errorf("header = %v %v", resp["norad_id"], resp["model"])
	}
	if list, _ := resp["passes"].([]any); len(list) == 0 {
		t.Error("expected ISS passes over New York in 24h")
	}

	for _, q := range []string{"?lat=100&lon=0", "?lat=0&lon=0&hours=500", "?lat=0&lon=0&min_elevation=-5", "?lat=0&lon=0&max_passes=0"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/passes/25544"+q, nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/passes/11111?lat=0&lon=0", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown satellite: status = %d, want 404", w.Code)
	}
}

type stubSource struct {
	data  string
	err   error
	calls int
}

func (s *stubSource) Fetch(context.Context) ([]byte, error) {
	s.calls++
	return []byte(s.data), s.err
}

func (s *stubSource) SourceURL() string { return "https://example.test/tle" }

func TestFetchHandler(t *testing.T) {
	store := testStore(t)
	src := &stubSource{data: issSet}
	deps := Deps{
		Store:    store,
		Source:   src,
		TLECache: tle.NewCache(t.TempDir(), 2),
		TLE:      TLEConfig{EnableFetch: true, MaxAge: time.Hour},
	}
	fetch := func(d Deps, query string) (*httptest.ResponseRecorder, map[string]any) {
		w := httptest.NewRecorder()
		fetchHandler(testLogger(), d)(w, httptest.NewRequest("POST", "/api/v1/tle/fetch"+query, nil))
		return w, decode(t, w)
	}

	disabled := deps
	disabled.TLE.EnableFetch = false
	if w, _ := fetch(disabled, ""); w.Code != http.StatusForbidden {
		t.Errorf("disabled: status = %d, want 403", w.Code)
	}

	if w, resp := fetch(deps, ""); w.Code != http.StatusOK || resp["status"] != "fresh" {
		t.Errorf("fresh data: %d %v", w.Code, resp)
	}
	if src.calls != 0 {
		t.Errorf("fresh data fetched %d times", src.calls)
	}

	w, resp := fetch(deps, "?force=true")
	if w.Code != http.StatusOK || resp["status"] != "updated" {
		t.Fatalf("forced: %d %v", w.Code, resp)
	}
	if resp["source"] != "https://example.test/tle" || resp["satellites"] != 1.0 {
		t.Errorf("forced metadata = %v", resp)
	}
	if got := store.Get().Source; got != "https://example.test/tle" {
		t.Errorf("store source = %q", got)
	}
	if _, err := deps.TLECache.Latest(); err != nil {
		t.Errorf("fetch not archived: %v", err)
	}

	if w, _ := fetch(deps, "?force=maybe"); w.Code != http.StatusBadRequest {
		t.Errorf("bad force: status = %d, want 400", w.Code)
	}

	src.err = errors.New("connection refused")
	if w, resp := fetch(deps, "?force=1"); w.Code != http.StatusBadGateway || !strings.Contains(resp["error"].(string), "connection refused") {
		t.Errorf("failing source: %d %v", w.Code, resp)
	}
}

func TestMetadataHandler(t *testing.T) {
	w := httptest.NewRecorder()
	metadataHandler(tle.NewStore(testLogger()))(w, httptest.NewRequest("GET", "/api/v1/tle/metadata", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("empty store: status = %d, want 503", w.Code)
	}

	w = httptest.NewRecorder()
	metadataHandler(testStore(t))(w, httptest.NewRequest("GET", "/api/v1/tle/metadata", nil))
	resp := decode(t, w)
	if resp["source"] != "test" || resp["satellites"] != 1.0 {
		t.Errorf("metadata = %v", resp)
	}
	if resp["epoch_min"] != "2024-04-09T12:00:00Z" || resp["epoch_max"] != "2024-04-09T12:00:00Z" {
		t.Errorf("epoch range = %v .. %v", resp["epoch_min"], resp["epoch_max"])
	}
}

func TestServerRoutes(t *testing.T) {
	store := testStore(t)
	srv := NewServer(":0", testLogger(), auth.Config{Enabled: true, Token: "s3cret"}, Deps{
		Store:      store,
		Propagator: testPropagator(store),
		Static:     fstest.MapFS{"index.html": {Data: []byte("<h1>norad</h1>")}},
	})
	h := srv.HTTPServer().Handler

	tests := []struct {
		method, target string
		want           int
	}{
		{"GET", "/healthz", http.StatusOK},
		{"GET", "/readyz", http.StatusOK},
		{"GET", "/metrics", http.StatusOK},
		{"GET", "/", http.StatusOK},
		{"GET", "/api/v1/tle/metadata", http.StatusOK},
		{"GET", "/api/v1/propagate/25544?" + epochQuery, http.StatusOK},
		{"GET", "/api/v1/passes/25544?lat=0&lon=0", http.StatusUnauthorized},
		{"POST", "/api/v1/tle/fetch", http.StatusUnauthorized},
		{"GET", "/api/v1/cache/stats", http.StatusUnauthorized},
		{"GET", "/api/v1/unknown", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(tt.method, tt.target, nil))
		if w.Code != tt.want {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.target, w.Code, tt.want)
		}
	}

	// Authorized, but the cache route is not registered without a cache.
	req := httptest.NewRequest("GET", "/api/v1/cache/stats", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("cache stats without cache: status = %d, want 404", w.Code)
	}
}
