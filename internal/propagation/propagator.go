package propagation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/star/norad/internal/coord"
	"github.com/star/norad/internal/metrics"
	"github.com/star/norad/internal/norad"
	"github.com/star/norad/internal/observability"
	"github.com/star/norad/internal/tle"
)

var (
	// ErrNoDataset is returned before any TLE data has been loaded.
	ErrNoDataset = errors.New("no TLE dataset loaded")

	// ErrUnknownSatellite is returned for a catalog number that is not in
	// the active dataset or whose orbit could not be built.
	ErrUnknownSatellite = errors.New("satellite not in dataset")
)

// Propagator orchestrates keyframe generation for TLE datasets.
type Propagator struct {
	store    *tle.Store
	pool     *WorkerPool
	config   PropConfig
	logger   *slog.Logger
	orbits   atomic.Pointer[orbitSet]
	orbitsMu sync.Mutex // serializes rebuilds
}

// NewPropagator creates a new propagation orchestrator.
func NewPropagator(store *tle.Store, config PropConfig, logger *slog.Logger) *Propagator {
	return &Propagator{
		store:  store,
		pool:   NewWorkerPool(config.Workers, logger),
		config: config,
		logger: logger,
	}
}

// Config returns the propagation configuration.
func (p *Propagator) Config() PropConfig { return p.config }

// cachedOrbits returns the orbit set for ds, rebuilding it when the
// dataset has been replaced.
func (p *Propagator) cachedOrbits(ds *tle.TLEDataset) *orbitSet {
	if s := p.orbits.Load(); s != nil && s.dataset == ds {
		return s
	}

	p.orbitsMu.Lock()
	defer p.orbitsMu.Unlock()

	if s := p.orbits.Load(); s != nil && s.dataset == ds {
		return s
	}

	set, skipped := newOrbitSet(ds, p.logger)

	var deep int
	for _, e := range set.orbits {
		if e.orbit.Model() == norad.DeepSpace {
			deep++
		}
	}
	p.logger.Info("orbit cache rebuilt",
		"cached", len(set.orbits),
		"deep_space", deep,
		"skipped", skipped,
		"dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
	)
	p.orbits.Store(set)
	return set
}

func (p *Propagator) current() (*orbitSet, error) {
	ds := p.store.Get()
	if ds == nil {
		return nil, ErrNoDataset
	}
	return p.cachedOrbits(ds), nil
}

// PropagateToTime generates a single keyframe at the given target time.
// Uses the current TLE dataset from the store.
func (p *Propagator) PropagateToTime(ctx context.Context, targetTime time.Time) (*Keyframe, error) {
	set, err := p.current()
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "propagation.keyframe", 0,
		attribute.Int("satellites", len(set.order)),
		attribute.String("target_time", targetTime.UTC().Format(time.RFC3339)),
	)
	defer span.End()

	p.logger.Debug("propagating",
		"satellite_count", len(set.order),
		"target_time", targetTime.UTC().Format(time.RFC3339),
		"workers", p.pool.workers,
	)

	start := time.Now()
	positions, successCount, errorCount := p.pool.PropagateBatch(ctx, set, targetTime)
	duration := time.Since(start)

	metrics.RecordPropagation(duration, successCount, errorCount)
	span.SetAttributes(attribute.Int("success", successCount), attribute.Int("errors", errorCount))

	p.logger.Debug("propagation complete",
		"success", successCount,
		"errors", errorCount,
		"duration_ms", duration.Milliseconds(),
	)

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &Keyframe{
		Timestamp:  targetTime,
		Satellites: positions,
	}, nil
}

// GenerateKeyframes generates keyframes from startTime over the configured horizon
// at the configured step interval.
func (p *Propagator) GenerateKeyframes(ctx context.Context, startTime time.Time) ([]*Keyframe, error) {
	if p.store.Get() == nil {
		return nil, ErrNoDataset
	}

	numFrames := int(p.config.Horizon/p.config.Step) + 1
	keyframes := make([]*Keyframe, 0, numFrames)

	for i := 0; i < numFrames; i++ {
		select {
		case <-ctx.Done():
			return keyframes, ctx.Err()
		default:
		}

		targetTime := startTime.Add(time.Duration(i) * p.config.Step)
		kf, err := p.PropagateToTime(ctx, targetTime)
		if err != nil {
			return keyframes, fmt.Errorf("keyframe %d at %s: %w", i, targetTime.Format(time.RFC3339), err)
		}
		keyframes = append(keyframes, kf)
	}

	return keyframes, nil
}

func (p *Propagator) entry(noradID int) (*orbitEntry, error) {
	set, err := p.current()
	if err != nil {
		return nil, err
	}
	e, ok := set.orbits[noradID]
	if !ok {
		return nil, fmt.Errorf("NORAD %d: %w", noradID, ErrUnknownSatellite)
	}
	return e, nil
}

// Orbit returns the cached orbit for a satellite. Callers must not
// propagate it directly; use Track or ECIAt.
func (p *Propagator) Orbit(noradID int) (*norad.Orbit, error) {
	e, err := p.entry(noradID)
	if err != nil {
		return nil, err
	}
	return e.orbit, nil
}

// ECIAt returns one satellite's inertial state at t.
func (p *Propagator) ECIAt(ctx context.Context, noradID int, t time.Time) (coord.ECI, error) {
	e, err := p.entry(noradID)
	if err != nil {
		return coord.ECI{}, err
	}
	_, span := observability.StartSpan(ctx, "propagation.eci", noradID)
	defer span.End()

	eci, err := e.eci(t)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return eci, err
}

// Track propagates one satellite to n instants spaced step apart from
// start. It stops at the first failure and returns what it has.
func (p *Propagator) Track(ctx context.Context, noradID int, start time.Time, step time.Duration, n int) ([]SatellitePosition, error) {
	e, err := p.entry(noradID)
	if err != nil {
		return nil, err
	}

	_, span := observability.StartSpan(ctx, "propagation.track", noradID, attribute.Int("samples", n))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]SatellitePosition, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		pos, err := StateAt(e.orbit, start.Add(time.Duration(i)*step))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return out, err
		}
		out = append(out, pos)
	}
	return out, nil
}
