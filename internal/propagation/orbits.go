package propagation

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/star/norad/internal/coord"
	"github.com/star/norad/internal/julian"
	"github.com/star/norad/internal/metrics"
	"github.com/star/norad/internal/norad"
	"github.com/star/norad/internal/tle"
	"github.com/star/norad/internal/transform"
)

// NewOrbit binds an orbit for entry with numerical warnings routed to
// logger and Kepler misses counted in metrics.
func NewOrbit(entry tle.TLEEntry, logger *slog.Logger) (*norad.Orbit, error) {
	el := entry.Elements
	if el == nil {
		var err error
		el, err = tle.NewElements(entry.Name, entry.Line1, entry.Line2)
		if err != nil {
			return nil, fmt.Errorf("elements for NORAD %d: %w", entry.NORADID, err)
		}
	}
	return norad.NewOrbit(el,
		norad.WithLogger(logger),
		norad.WithKeplerObserver(func(float64) { metrics.RecordKeplerMiss() }),
	)
}

// StateAt propagates o to t and expresses the result in every frame a
// keyframe carries.
func StateAt(o *norad.Orbit, t time.Time) (SatellitePosition, error) {
	return stateAt(o, t, julian.FromTime(t).GMST())
}

func stateAt(o *norad.Orbit, t time.Time, gmst float64) (SatellitePosition, error) {
	eci, err := o.PositionAt(t)
	if err != nil {
		var decay *norad.DecayError
		if errors.As(err, &decay) {
			metrics.RecordDecay(o.Model().String())
		}
		return SatellitePosition{}, err
	}
	return positionFromECI(o, eci, gmst), nil
}

func positionFromECI(o *norad.Orbit, eci coord.ECI, gmst float64) SatellitePosition {
	ecef := transform.ToECEFWithGMST(eci, gmst)
	geo := eci.ToGeo()
	return SatellitePosition{
		NORADID:      o.Elements().NORADID(),
		Model:        o.Model().String(),
		PositionECI:  eci.Pos.Array(),
		VelocityECI:  eci.Vel.Array(),
		PositionECEF: ecef.Pos.Array(),
		VelocityECEF: ecef.Vel.Array(),
		LatDeg:       geo.LatDeg(),
		LonDeg:       geo.LonDeg(),
		AltKm:        geo.Alt,
	}
}

// orbitEntry serializes access to one orbit; deep-space orbits carry
// integrator state between calls.
type orbitEntry struct {
	mu    sync.Mutex
	orbit *norad.Orbit
}

func (e *orbitEntry) state(t time.Time, gmst float64) (SatellitePosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return stateAt(e.orbit, t, gmst)
}

// eci returns the raw inertial state, for look-angle queries.
func (e *orbitEntry) eci(t time.Time) (coord.ECI, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orbit.PositionAt(t)
}

// orbitSet holds the orbits for one dataset. The map is immutable after
// construction.
type orbitSet struct {
	dataset *tle.TLEDataset
	orbits  map[int]*orbitEntry
	order   []int
}

func newOrbitSet(ds *tle.TLEDataset, logger *slog.Logger) (*orbitSet, int) {
	set := &orbitSet{
		dataset: ds,
		orbits:  make(map[int]*orbitEntry, len(ds.Satellites)),
		order:   make([]int, 0, len(ds.Satellites)),
	}
	var skipped int
	for _, entry := range ds.Satellites {
		if _, ok := set.orbits[entry.NORADID]; ok {
			continue
		}
		o, err := NewOrbit(entry, logger)
		if err != nil {
			logger.Warn("orbit init failed", "norad_id", entry.NORADID, "error", err)
			skipped++
			continue
		}
		set.orbits[entry.NORADID] = &orbitEntry{orbit: o}
		set.order = append(set.order, entry.NORADID)
	}
	return set, skipped
}
