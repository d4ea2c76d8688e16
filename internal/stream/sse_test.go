package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/star/norad/internal/cache"
	"github.com/star/norad/internal/propagation"
	"github.com/star/norad/internal/tle"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

func testDataset() *tle.TLEDataset {
	return tle.NewDataset("test", time.Date(2024, 4, 9, 13, 30, 0, 0, time.UTC), []tle.TLEEntry{
		{NORADID: 25544, Name: "ISS", Epoch: time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)},
		{NORADID: 28626, Name: "GEO", Epoch: time.Date(2024, 4, 8, 6, 0, 0, 0, time.UTC)},
	})
}

func testStore() *tle.Store {
	store := tle.NewStore(testLogger())
	store.Set(testDataset())
	return store
}

func testCacheConfig() cache.Config {
	return cache.Config{
		Step:        time.Second,
		Horizon:     30 * time.Second,
		GracePeriod: 5 * time.Second,
		Buffer:      10 * time.Second,
	}
}

func testConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  30 * time.Second,
	}
}

// stubSource answers every instant with the same two satellites.
type stubSource struct{}

func (stubSource) PropagateToTime(_ context.Context, t time.Time) (*propagation.Keyframe, error) {
	return &propagation.Keyframe{
		Timestamp: t,
		Satellites: []propagation.SatellitePosition{
			{NORADID: 25544, Model: "sgp4", PositionECEF: [3]float64{6778137, 0, 0}, LatDeg: 1, LonDeg: 2, AltKm: 400},
			{NORADID: 28626, Model: "sdp4", PositionECEF: [3]float64{42164000, 0, 0}, AltKm: 35786},
		},
	}, nil
}

func testKeyframe() *propagation.Keyframe {
	return &propagation.Keyframe{
		Timestamp: time.Date(2024, 4, 9, 14, 0, 0, 0, time.UTC),
		Satellites: []propagation.SatellitePosition{
			{
				NORADID:      25544,
				Model:        "sgp4",
				PositionECI:  [3]float64{6778.0, 0, 0},
				PositionECEF: [3]float64{6378137.0, 0.0, 0.0},
				LatDeg:       10,
				LonDeg:       20,
				AltKm:        410,
			},
			{
				NORADID:      28626,
				Model:        "sdp4",
				PositionECEF: [3]float64{6378137.0, 100000.0, 0.0},
			},
		},
	}
}

func TestBuildBatchMessage(t *testing.T) {
	msg := buildBatchMessage(testKeyframe(), nil, batchOptions{})

	if msg.Type != "keyframe_batch" {
		t.Errorf("type = %q, want %q", msg.Type, "keyframe_batch")
	}
	if msg.Frame != FrameECEF {
		t.Errorf("frame = %q, want %q", msg.Frame, FrameECEF)
	}
	if msg.T != "2024-04-09T14:00:00Z" {
		t.Errorf("t = %q, want %q", msg.T, "2024-04-09T14:00:00Z")
	}
	if len(msg.Sat) != 2 {
		t.Fatalf("sat count = %d, want 2", len(msg.Sat))
	}
	if msg.Sat[0].ID != 25544 || msg.Sat[0].M != "sgp4" {
		t.Errorf("sat[0] = %+v", msg.Sat[0])
	}
	if msg.Sat[0].P != [3]float64{6378137.0, 0.0, 0.0} {
		t.Errorf("sat[0].p = %v", msg.Sat[0].P)
	}
	if msg.Sat[0].Tr != nil {
		t.Errorf("sat[0].tr = %v, want nil without trail", msg.Sat[0].Tr)
	}
}

func TestBuildBatchMessageFrames(t *testing.T) {
	kf := testKeyframe()
	tests := []struct {
		frame Frame
		want  [3]float64
	}{
		{FrameECEF, [3]float64{6378137.0, 0, 0}},
		{FrameECI, [3]float64{6778.0, 0, 0}},
		{FrameGeo, [3]float64{10, 20, 410}},
	}
	for _, tt := range tests {
		msg := buildBatchMessage(kf, nil, batchOptions{frame: tt.frame})
		if msg.Frame != tt.frame {
			t.Errorf("frame = %q, want %q", msg.Frame, tt.frame)
		}
		if msg.Sat[0].P != tt.want {
			t.Errorf("%s p = %v, want %v", tt.frame, msg.Sat[0].P, tt.want)
		}
	}
}

func TestBuildBatchMessageFilterAndTrail(t *testing.T) {
	kf := testKeyframe()
	older := testKeyframe()
	older.Satellites[0].PositionECEF = [3]float64{1, 2, 3}

	msg := buildBatchMessage(kf, []*propagation.Keyframe{older, kf}, batchOptions{
		ids: map[int]bool{25544: true},
	})
	if len(msg.Sat) != 1 || msg.Sat[0].ID != 25544 {
		t.Fatalf("sat = %+v, want only 25544", msg.Sat)
	}
	tr := msg.Sat[0].Tr
	if len(tr) != 2 {
		t.Fatalf("trail length = %d, want 2", len(tr))
	}
	if tr[0] != [3]float64{1, 2, 3} {
		t.Errorf("trail[0] = %v, want oldest first", tr[0])
	}
}

func TestParseFrame(t *testing.T) {
	tests := []struct {
		in      string
		want    Frame
		wantErr bool
	}{
		{"", FrameECEF, false},
		{"eci", FrameECI, false},
		{"Geo", FrameGeo, false},
		{"ECEF", FrameECEF, false},
		{"teme", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFrame(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFrame(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFrame(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMetadataMessageJSON(t *testing.T) {
	ds := testDataset()
	now := ds.FetchedAt.Add(30 * time.Minute)
	data, err := json.Marshal(newMetadataMessage(ds, FrameGeo, 5*time.Second, now))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{
		"type":            "metadata",
		"source":          "test",
		"fetched_at":      "2024-04-09T13:30:00Z",
		"tle_age_seconds": 1800.0,
		"epoch_min":       "2024-04-08T06:00:00Z",
		"epoch_max":       "2024-04-09T12:00:00Z",
		"satellites":      2.0,
		"frame":           "GEO",
		"step_seconds":    5.0,
	}
	for k, v := range want {
		if parsed[k] != v {
			t.Errorf("%s = %v, want %v", k, parsed[k], v)
		}
	}
}

// sseEvents splits an SSE body into its data payloads and checks that every
// line is a data, retry or comment line.
func sseEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(nil, 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "", line == ":", strings.HasPrefix(line, "retry: "):
		case strings.HasPrefix(line, "data: "):
			var msg map[string]any
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg); err != nil {
				t.Errorf("invalid JSON in SSE data line: %v", err)
				continue
			}
			events = append(events, msg)
		default:
			t.Errorf("unexpected SSE line: %q", line)
		}
	}
	return events
}

func TestSSEMessageFormat(t *testing.T) {
	store := testStore()
	kfCache := cache.NewKeyframeCache(testCacheConfig(), stubSource{}, store, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go kfCache.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for kfCache.Stats().Entries == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	handler := NewHandler(kfCache, store, testConfig(), testLogger())

	req := httptest.NewRequest("GET", "/api/v1/stream/keyframes?step=1&frame=geo&ids=25544", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	reqCtx, reqCancel := context.WithTimeout(req.Context(), 2500*time.Millisecond)
	defer reqCancel()
	req = req.WithContext(reqCtx)

	w := httptest.NewRecorder()
	handler.HandleKeyframes(w, req)

	resp := w.Result()
	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", resp.Header.Get("Cache-Control"))
	}
	if !strings.HasPrefix(w.Body.String(), "retry: ") {
		t.Error("stream does not start with a retry hint")
	}

	events := sseEvents(t, w.Body.String())
	if len(events) < 2 {
		t.Fatalf("got %d events, want metadata and at least one batch", len(events))
	}
	if events[0]["type"] != "metadata" || events[0]["source"] != "test" {
		t.Errorf("first event = %v, want metadata for test dataset", events[0])
	}
	batch := events[1]
	if batch["type"] != "keyframe_batch" || batch["frame"] != "GEO" {
		t.Errorf("second event = %v, want GEO keyframe_batch", batch)
	}
	sats, _ := batch["sat"].([]any)
	if len(sats) != 1 {
		t.Fatalf("batch carries %d satellites, want 1 after ids filter", len(sats))
	}
	p := sats[0].(map[string]any)["p"].([]any)
	if p[2] != 400.0 {
		t.Errorf("altitude = %v, want 400", p[2])
	}
}

func TestRateLimiting(t *testing.T) {
	limiter := newStreamLimiter(3, 0)

	for i := 0; i < 3; i++ {
		if !limiter.acquire("10.0.0.1") {
			t.Fatalf("acquire %d should succeed", i+1)
		}
	}
	if limiter.acquire("10.0.0.1") {
		t.Error("acquire beyond limit should fail")
	}
	if !limiter.acquire("10.0.0.2") {
		t.Error("different IP should not be rate limited")
	}

	limiter.release("10.0.0.1")
	if !limiter.acquire("10.0.0.1") {
		t.Error("acquire after release should succeed")
	}

	if c := limiter.count("10.0.0.1"); c != 3 {
		t.Errorf("count = %d, want 3", c)
	}
	if c := limiter.count("10.0.0.2"); c != 1 {
		t.Errorf("count = %d, want 1", c)
	}
}

func TestRateLimitingTotal(t *testing.T) {
	limiter := newStreamLimiter(10, 2)
	if !limiter.acquire("a") || !limiter.acquire("b") {
		t.Fatal("first two streams should be admitted")
	}
	if limiter.acquire("c") {
		t.Error("third stream should hit the total limit")
	}
	limiter.release("a")
	if !limiter.acquire("c") {
		t.Error("acquire after release should succeed")
	}
}

func TestRateLimitingConcurrent(t *testing.T) {
	limiter := newStreamLimiter(100, 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.acquire("10.0.0.1") {
				defer limiter.release("10.0.0.1")
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if c := limiter.count("10.0.0.1"); c != 0 {
		t.Errorf("count after all released = %d, want 0", c)
	}
}

func TestRateLimitHTTPResponse(t *testing.T) {
	store := testStore()
	kfCache := cache.NewKeyframeCache(testCacheConfig(), stubSource{}, store, testLogger())

	cfg := testConfig()
	cfg.MaxConcurrentPerIP = 1
	cfg.TrustProxy = true
	handler := NewHandler(kfCache, store, cfg, testLogger())

	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest("GET", "/api/v1/stream/keyframes", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		ctx, cancel := context.WithCancel(req.Context())
		req = req.WithContext(ctx)

		go func() {
			time.Sleep(50 * time.Millisecond)
			close(ready)
			time.Sleep(200 * time.Millisecond)
			cancel()
		}()
		handler.HandleKeyframes(httptest.NewRecorder(), req)
	}()
	<-ready

	// Same forwarded client behind a different proxy address.
	req := httptest.NewRequest("GET", "/api/v1/stream/keyframes", nil)
	req.RemoteAddr = "10.0.0.2:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	w := httptest.NewRecorder()
	handler.HandleKeyframes(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	<-done
}

func TestInvalidQueryParams(t *testing.T) {
	store := testStore()
	kfCache := cache.NewKeyframeCache(testCacheConfig(), stubSource{}, store, testLogger())
	handler := NewHandler(kfCache, store, testConfig(), testLogger())

	tests := []struct {
		name  string
		query string
	}{
		{"bad step", "?step=0"},
		{"step too large", "?step=100"},
		{"step non-numeric", "?step=abc"},
		{"bad horizon", "?horizon=5"},
		{"horizon too large", "?horizon=9999"},
		{"trail too long", "?trail=500"},
		{"unknown frame", "?frame=teme"},
		{"bad id", "?ids=25544,x"},
		{"negative id", "?ids=-4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/stream/keyframes"+tt.query, nil)
			req.RemoteAddr = "127.0.0.1:12345"
			w := httptest.NewRecorder()
			handler.HandleKeyframes(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			var body map[string]string
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body["error"] == "" {
				t.Errorf("error body = %v (%v)", body, err)
			}
		})
	}
}

func TestClientBandwidth(t *testing.T) {
	c := &client{bandwidth: 100}
	now := time.Date(2024, 4, 9, 14, 0, 0, 0, time.UTC)

	if !c.allow(150, now) {
		t.Error("oversized message in an empty window should pass")
	}
	if c.allow(10, now.Add(100*time.Millisecond)) {
		t.Error("window is full")
	}
	if !c.allow(60, now.Add(time.Second)) {
		t.Error("new window should admit the message")
	}
	if c.allow(50, now.Add(1500*time.Millisecond)) {
		t.Error("60+50 exceeds the cap")
	}

	unlimited := &client{}
	if !unlimited.allow(1<<30, now) {
		t.Error("zero bandwidth means no cap")
	}
}

func TestKeepaliveFormat(t *testing.T) {
	w := httptest.NewRecorder()
	c := &client{w: w, flusher: w, rc: http.NewResponseController(w), logger: testLogger()}
	if err := c.sendKeepalive(); err != nil {
		t.Fatalf("sendKeepalive: %v", err)
	}
	if got := w.Body.String(); got != ":\n\n" {
		t.Errorf("keepalive = %q, want %q", got, ":\n\n")
	}
	if c.messagesSent != 0 {
		t.Errorf("keepalive counted as message")
	}
}
