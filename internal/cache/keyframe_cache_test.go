package cache

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/star/norad/internal/propagation"
	"github.com/star/norad/internal/tle"
)

const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9009"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    01"
)

// Shortly after the ISS element epoch.
var clock = time.Date(2024, 4, 9, 14, 0, 2, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testDataset(t *testing.T, source string) *tle.TLEDataset {
	t.Helper()
	el, err := tle.NewElements("ISS", issLine1, issLine2)
	if err != nil {
		t.Fatal(err)
	}
	return tle.NewDataset(source, time.Now(), []tle.TLEEntry{
		{NORADID: 25544, Name: "ISS", Line1: issLine1, Line2: issLine2, Elements: el},
	})
}

func testStore(t *testing.T) *tle.Store {
	store := tle.NewStore(testLogger())
	store.Set(testDataset(t, "test"))
	return store
}

func testPropagator(store *tle.Store) *propagation.Propagator {
	cfg := propagation.PropConfig{Workers: 2, Step: 5 * time.Second, Horizon: 30 * time.Second}
	return propagation.NewPropagator(store, cfg, testLogger())
}

func testConfig() Config {
	return Config{
		Step:        5 * time.Second,
		Horizon:     30 * time.Second,
		GracePeriod: 5 * time.Second,
		Buffer:      10 * time.Second,
	}
}

func newTestCache(t *testing.T, cfg Config, store *tle.Store, source KeyframeSource) *KeyframeCache {
	c := NewKeyframeCache(cfg, source, store, testLogger())
	c.now = func() time.Time { return clock }
	return c
}

// fakeSource returns empty keyframes and counts calls.
type fakeSource struct {
	mu    sync.Mutex
	calls int
	fail  map[time.Time]bool
}

func (f *fakeSource) PropagateToTime(_ context.Context, t time.Time) (*propagation.Keyframe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail[t] {
		return nil, errors.New("boom")
	}
	return &propagation.Keyframe{Timestamp: t}, nil
}

func TestKeyframeCache(t *testing.T) {
	store := testStore(t)
	prop := testPropagator(store)
	c := newTestCache(t, testConfig(), store, prop)

	target := clock.Truncate(5 * time.Second)
	kf, err := prop.PropagateToTime(context.Background(), target)
	if err != nil {
		t.Fatalf("PropagateToTime failed: %v", err)
	}
	c.put(kf, store.Get())

	got := c.Get(target.Add(2 * time.Second))
	if got == nil {
		t.Fatal("expected cache hit, got nil")
	}
	if !got.Timestamp.Equal(target) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, target)
	}

	pos, ok := c.Satellite(target, 25544)
	if !ok {
		t.Fatal("Satellite(25544) missed")
	}
	if pos.AltKm < 300 || pos.AltKm > 500 {
		t.Errorf("altitude = %.1f km", pos.AltKm)
	}
	if _, ok := c.Satellite(target, 1); ok {
		t.Error("Satellite(1) hit for an unknown catalog number")
	}

	stats := c.Stats()
	if stats.Entries != 1 {
		t.Errorf("entries = %d, want 1", stats.Entries)
	}
	if stats.Hits < 1 {
		t.Errorf("hits = %d, want >= 1", stats.Hits)
	}
}

func TestRoundToStep(t *testing.T) {
	c := newTestCache(t, testConfig(), testStore(t), &fakeSource{})

	tests := []struct {
		input time.Time
		want  time.Time
	}{
		{time.Date(2026, 2, 6, 12, 0, 3, 0, time.UTC), time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)},
		{time.Date(2026, 2, 6, 12, 0, 7, 0, time.UTC), time.Date(2026, 2, 6, 12, 0, 5, 0, time.UTC)},
		{time.Date(2026, 2, 6, 12, 0, 10, 0, time.UTC), time.Date(2026, 2, 6, 12, 0, 10, 0, time.UTC)},
		// Non-UTC input lands on the same UTC boundary.
		{time.Date(2026, 2, 6, 14, 0, 7, 0, time.FixedZone("CEST", 2*3600)), time.Date(2026, 2, 6, 12, 0, 5, 0, time.UTC)},
	}

	for _, tt := range tests {
		if got := c.RoundToStep(tt.input); !got.Equal(tt.want) || got.Location() != time.UTC {
			t.Errorf("RoundToStep(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestCacheMiss(t *testing.T) {
	c := newTestCache(t, testConfig(), testStore(t), &fakeSource{})

	if c.Get(time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)) != nil {
		t.Fatal("expected nil for cache miss")
	}
	if got := c.Stats().Misses; got < 1 {
		t.Errorf("misses = %d, want >= 1", got)
	}
}

func TestEvictExpired(t *testing.T) {
	store := testStore(t)
	cfg := testConfig()
	cfg.Buffer = 0
	c := newTestCache(t, cfg, store, &fakeSource{})

	past := clock.Add(-2 * time.Minute).Truncate(5 * time.Second)
	future := clock.Add(time.Minute).Truncate(5 * time.Second)
	c.put(&propagation.Keyframe{Timestamp: past}, store.Get())
	c.put(&propagation.Keyframe{Timestamp: future}, store.Get())

	if n := c.Stats().Entries; n != 2 {
		t.Fatalf("entries = %d, want 2", n)
	}
	if removed := c.evictExpired(); removed != 1 {
		t.Errorf("evicted %d, want 1", removed)
	}
	if c.Get(past) != nil {
		t.Error("past entry survived eviction")
	}
	if c.Get(future) == nil {
		t.Error("future entry was evicted")
	}
}

func TestWarmupFillsWindow(t *testing.T) {
	store := testStore(t)
	cfg := testConfig()
	cfg.Horizon = 15 * time.Second
	c := newTestCache(t, cfg, store, testPropagator(store))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c.warmup(ctx)

	stats := c.Stats()
	if want := int(cfg.Horizon/cfg.Step) + 1; stats.Entries != want {
		t.Errorf("warmup generated %d entries, want %d", stats.Entries, want)
	}
	if stats.DatasetSource != "test" {
		t.Errorf("dataset source = %q, want test", stats.DatasetSource)
	}

	kf := c.GetLatest()
	if kf == nil {
		t.Fatal("GetLatest returned nil after warmup")
	}
	if len(kf.Satellites) != 1 {
		t.Errorf("latest keyframe has %d satellites, want 1", len(kf.Satellites))
	}
}

func TestWarmupSkipsFailedFrames(t *testing.T) {
	store := testStore(t)
	cfg := testConfig()
	cfg.Horizon = 10 * time.Second
	bad := clock.Truncate(cfg.Step).Add(cfg.Step)
	src := &fakeSource{fail: map[time.Time]bool{bad: true}}
	c := newTestCache(t, cfg, store, src)

	c.warmup(context.Background())

	if n := c.Stats().Entries; n != 2 {
		t.Errorf("entries = %d, want 2", n)
	}
	if c.Get(bad) != nil {
		t.Error("failed frame was cached")
	}
}

func TestLeadingEdge(t *testing.T) {
	store := testStore(t)
	src := &fakeSource{}
	c := newTestCache(t, testConfig(), store, src)
	c.warmup(context.Background())
	calls := src.calls

	// Nothing to do while the edge is cached.
	c.generateLeadingEdge(context.Background())
	if src.calls != calls {
		t.Errorf("regenerated a cached edge")
	}

	later := clock.Add(5 * time.Second)
	c.now = func() time.Time { return later }
	c.generateLeadingEdge(context.Background())
	if src.calls != calls+1 {
		t.Errorf("calls = %d, want %d", src.calls, calls+1)
	}
	edge := c.RoundToStep(later.Add(c.config.Horizon))
	if c.Get(edge) == nil {
		t.Error("leading edge not cached")
	}
}

func TestTLECutover(t *testing.T) {
	store := testStore(t)
	cfg := testConfig()
	cfg.Horizon = 10 * time.Second
	c := newTestCache(t, cfg, store, testPropagator(store))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c.warmup(ctx)

	if c.Stats().Entries == 0 {
		t.Fatal("no entries after warmup")
	}
	if c.tleChanged() {
		t.Fatal("tleChanged() true right after warmup")
	}

	store.Set(testDataset(t, "updated"))
	if !c.tleChanged() {
		t.Fatal("tleChanged() false after dataset update")
	}

	c.performCutover(ctx)

	if c.inGracePeriod.Load() {
		t.Error("grace period still set after cutover")
	}
	stats := c.Stats()
	if stats.Entries == 0 {
		t.Fatal("no entries after cutover")
	}
	if stats.DatasetSource != "updated" {
		t.Errorf("dataset source = %q, want updated", stats.DatasetSource)
	}
	if c.tleChanged() {
		t.Error("tleChanged() true after cutover")
	}
}

func TestCutoverCancelledKeepsOldWindow(t *testing.T) {
	store := testStore(t)
	c := newTestCache(t, testConfig(), store, &fakeSource{})
	c.warmup(context.Background())
	before := c.Stats().Entries

	store.Set(testDataset(t, "updated"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.performCutover(ctx)

	if c.inGracePeriod.Load() {
		t.Error("grace period still set after cancelled cutover")
	}
	if got := c.Stats(); got.Entries != before || got.DatasetSource != "test" {
		t.Errorf("stats = %+v, want old window of %d entries", got, before)
	}
}

func TestGetLatestEmpty(t *testing.T) {
	c := newTestCache(t, testConfig(), testStore(t), &fakeSource{})
	if c.GetLatest() != nil {
		t.Fatal("expected nil from empty cache")
	}
}

func TestGetRecent(t *testing.T) {
	store := testStore(t)
	c := newTestCache(t, testConfig(), store, &fakeSource{})
	base := clock.Truncate(5 * time.Second)
	for i := 0; i < 4; i++ {
		c.put(&propagation.Keyframe{Timestamp: base.Add(-time.Duration(i) * 5 * time.Second)}, store.Get())
	}

	got := c.GetRecent(base, 3)
	if len(got) != 3 {
		t.Fatalf("got %d keyframes, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Errorf("keyframes not oldest first: %v then %v", got[i-1].Timestamp, got[i].Timestamp)
		}
	}
	if c.GetRecent(base, 0) != nil {
		t.Error("GetRecent(0) should be nil")
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := testStore(t)
	c := newTestCache(t, testConfig(), store, testPropagator(store))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go c.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.GetLatest()
				c.Get(clock)
				c.Satellite(clock, 25544)
				c.Stats()
			}
		}()
	}
	wg.Wait()
}

func TestSizeEstimation(t *testing.T) {
	store := testStore(t)
	cfg := testConfig()
	cfg.Horizon = 10 * time.Second
	c := newTestCache(t, cfg, store, testPropagator(store))
	c.warmup(context.Background())

	stats := c.Stats()
	if stats.SizeBytes <= 0 {
		t.Errorf("expected positive size estimate, got %d", stats.SizeBytes)
	}
	// 1 satellite, 3 entries.
	if stats.SizeBytes > 10000 {
		t.Errorf("size estimate too large for 1 satellite: %d bytes", stats.SizeBytes)
	}
}
