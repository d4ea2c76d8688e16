// Package tracker follows one satellite through simulated time and answers
// position and pointing queries in degrees.
package tracker

import (
	"errors"
	"fmt"
	"time"

	"github.com/star/norad/internal/coord"
	"github.com/star/norad/internal/julian"
	"github.com/star/norad/internal/norad"
	"github.com/star/norad/internal/site"
	"github.com/star/norad/internal/tle"
)

// ErrDegenerateLookAngle is returned when a look angle comes out with an
// elevation of exactly zero, which only happens for corrupt element data.
var ErrDegenerateLookAngle = errors.New("degenerate look angle")

// Tracker holds a satellite orbit and its state at the last update.
type Tracker struct {
	orbit *norad.Orbit

	// gap is the offset in seconds from the element epoch to the start
	// time, so element sets with different epochs share one clock.
	gap float64

	eci coord.ECI
	geo coord.Geo
}

// New binds an orbit for el and positions it at start.
func New(el *tle.Elements, start time.Time, opts ...norad.Option) (*Tracker, error) {
	o, err := norad.NewOrbit(el, opts...)
	if err != nil {
		return nil, fmt.Errorf("orbit for %d: %w", el.NORADID(), err)
	}

	t := &Tracker{
		orbit: o,
		gap:   o.TPlusEpoch(julian.FromTime(start)),
	}
	if err := t.Update(0); err != nil {
		return nil, err
	}
	return t, nil
}

// Orbit returns the tracked orbit.
func (t *Tracker) Orbit() *norad.Orbit { return t.orbit }

// Name returns the satellite name.
func (t *Tracker) Name() string { return t.orbit.SatName(false) }

// Update propagates to offset past the start time.
func (t *Tracker) Update(offset time.Duration) error {
	eci, err := t.orbit.Position((t.gap + offset.Seconds()) / 60.0)
	if err != nil {
		return fmt.Errorf("propagate %s: %w", t.Name(), err)
	}
	t.eci = eci
	t.geo = eci.ToGeo()
	return nil
}

// ECI returns the state at the last update.
func (t *Tracker) ECI() coord.ECI { return t.eci }

// Latitude returns the sub-satellite latitude in degrees.
func (t *Tracker) Latitude() float64 { return t.geo.LatDeg() }

// Longitude returns the sub-satellite longitude in degrees.
func (t *Tracker) Longitude() float64 { return t.geo.LonDeg() }

// Altitude returns the altitude above the ellipsoid in km.
func (t *Tracker) Altitude() float64 { return t.geo.Alt }

// Elevation returns the elevation in degrees seen from a reference point
// given in degrees and km.
func (t *Tracker) Elevation(refLat, refLon, refAlt float64) (float64, error) {
	topo, err := t.look(refLat, refLon, refAlt)
	if err != nil {
		return 0, err
	}
	return topo.ElDeg(), nil
}

// Azimuth returns the azimuth in degrees seen from a reference point.
func (t *Tracker) Azimuth(refLat, refLon, refAlt float64) (float64, error) {
	topo, err := t.look(refLat, refLon, refAlt)
	if err != nil {
		return 0, err
	}
	return topo.AzDeg(), nil
}

// Distance returns the slant range in km from a reference point.
func (t *Tracker) Distance(refLat, refLon, refAlt float64) float64 {
	return site.New(refLat, refLon, refAlt).LookAngle(t.eci).Range
}

func (t *Tracker) look(refLat, refLon, refAlt float64) (coord.Topo, error) {
	topo := site.New(refLat, refLon, refAlt).LookAngle(t.eci)
	if topo.El == 0.0 {
		return coord.Topo{}, fmt.Errorf("%s from %.4f,%.4f: %w", t.Name(), refLat, refLon, ErrDegenerateLookAngle)
	}
	return topo, nil
}
