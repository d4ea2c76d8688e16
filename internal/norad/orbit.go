// Package norad implements the NORAD SGP4 and SDP4 analytic propagators
// described in Spacetrack Report No. 3.
//
// An Orbit recovers the Brouwer mean elements from a two-line set and binds
// the matching model once, at construction. Deep-space orbits carry
// resonance integrator state across calls, so an Orbit must not be used
// from several goroutines at once.
package norad

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/star/norad/internal/astro"
	"github.com/star/norad/internal/coord"
	"github.com/star/norad/internal/julian"
	"github.com/star/norad/internal/tle"
)

// Option configures an Orbit.
type Option func(*Orbit)

// WithLogger sets the logger used for numerical warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orbit) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithKeplerObserver registers fn to be called whenever Kepler's equation
// fails to converge within the iteration cap.
func WithKeplerObserver(fn func(tsince float64)) Option {
	return func(o *Orbit) { o.keplerObserver = fn }
}

// Orbit is a satellite orbit recovered from a two-line element set.
type Orbit struct {
	elements *tle.Elements
	epoch    julian.Date

	inclination  float64 // radians
	eccentricity float64
	raan         float64 // radians
	argPerigee   float64 // radians
	meanAnomaly  float64 // radians
	meanMotion   float64 // revolutions per day
	bstar        float64 // 1/AE
	drag         float64 // first derivative of mean motion

	// Recovered from the mean elements.
	recMeanMotion float64 // radians per minute
	semiMajor     float64 // AE
	semiMinor     float64 // AE
	perigeeKm     float64
	apogeeKm      float64

	periodOnce sync.Once
	period     float64 // seconds

	model Model
	prop  propagator

	logger         *slog.Logger
	keplerObserver func(tsince float64)
}

// NewOrbit recovers the orbit described by el and binds its propagator.
func NewOrbit(el *tle.Elements, opts ...Option) (*Orbit, error) {
	o := &Orbit{
		elements:     el,
		epoch:        el.Epoch(),
		inclination:  el.Field(tle.FieldInclination, tle.UnitRadians),
		eccentricity: el.Field(tle.FieldEccentricity, tle.UnitNative),
		raan:         el.Field(tle.FieldRAAN, tle.UnitRadians),
		argPerigee:   el.Field(tle.FieldArgPerigee, tle.UnitRadians),
		meanAnomaly:  el.Field(tle.FieldMeanAnomaly, tle.UnitRadians),
		meanMotion:   el.Field(tle.FieldMeanMotion, tle.UnitNative),
		bstar:        el.Field(tle.FieldBStar, tle.UnitNative) / astro.AE,
		drag:         el.Field(tle.FieldMeanMotionDt, tle.UnitNative),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.meanMotion <= 0 {
		return nil, fmt.Errorf("mean motion %g rev/day: %w", o.meanMotion, ErrInvalidOrbit)
	}

	o.recover()
	o.model = selectModel(o.Period() / 60.0)
	o.prop = o.newPropagator()

	return o, nil
}

// recover undoes the first-order J2 perturbation folded into the published
// mean motion to obtain the original semi-major axis and mean motion.
func (o *Orbit) recover() {
	rpmin := o.meanMotion * astro.TwoPi / astro.MinPerDay

	a1 := math.Pow(astro.XKE/rpmin, astro.TwoThirds)
	e := o.eccentricity
	temp := 1.5 * astro.CK2 * (3.0*astro.Sqr(math.Cos(o.inclination)) - 1.0) / math.Pow(1.0-e*e, 1.5)
	delta1 := temp / (a1 * a1)
	a0 := a1 * (1.0 - delta1*((1.0/3.0)+delta1*(1.0+134.0/81.0*delta1)))
	delta0 := temp / (a0 * a0)

	o.recMeanMotion = rpmin / (1.0 + delta0)
	o.semiMinor = a0 / (1.0 - delta0)
	o.semiMajor = o.semiMinor / math.Sqrt(1.0-e*e)
	o.perigeeKm = astro.XKMPER * (o.semiMajor*(1.0-e) - astro.AE)
	o.apogeeKm = astro.XKMPER * (o.semiMajor*(1.0+e) - astro.AE)
}

func (o *Orbit) newPropagator() propagator {
	if o.model == DeepSpace {
		return newDeepSpace(o)
	}
	return newNearEarth(o)
}

// Period returns the orbital period in seconds from the recovered mean
// motion. It is computed once.
func (o *Orbit) Period() float64 {
	o.periodOnce.Do(func() {
		if o.recMeanMotion == 0 {
			o.period = 0
			return
		}
		o.period = astro.TwoPi / o.recMeanMotion * 60.0
	})
	return o.period
}

// Model returns the propagation model bound at construction.
func (o *Orbit) Model() Model { return o.model }

// Elements returns the element set the orbit was built from.
func (o *Orbit) Elements() *tle.Elements { return o.elements }

// Epoch returns the element set epoch.
func (o *Orbit) Epoch() julian.Date { return o.epoch }

func (o *Orbit) Inclination() float64  { return o.inclination }
func (o *Orbit) Eccentricity() float64 { return o.eccentricity }
func (o *Orbit) RAAN() float64         { return o.raan }
func (o *Orbit) ArgPerigee() float64   { return o.argPerigee }
func (o *Orbit) BStar() float64        { return o.bstar }
func (o *Orbit) Drag() float64         { return o.drag }

// MeanMotion returns the published mean motion in revolutions per day.
func (o *Orbit) MeanMotion() float64 { return o.meanMotion }

// MeanAnomaly returns the mean anomaly at epoch in radians.
func (o *Orbit) MeanAnomaly() float64 { return o.meanAnomaly }

// RecoveredMeanMotion returns the recovered mean motion in radians per minute.
func (o *Orbit) RecoveredMeanMotion() float64 { return o.recMeanMotion }

// SemiMajor returns the recovered semi-major axis in Earth radii.
func (o *Orbit) SemiMajor() float64 { return o.semiMajor }

// SemiMinor returns the recovered semi-minor axis in Earth radii.
func (o *Orbit) SemiMinor() float64 { return o.semiMinor }

// Perigee returns the perigee altitude in km.
func (o *Orbit) Perigee() float64 { return o.perigeeKm }

// Apogee returns the apogee altitude in km.
func (o *Orbit) Apogee() float64 { return o.apogeeKm }

// TPlusEpoch returns the seconds elapsed from epoch to t. Predicted element
// sets may have epochs in the future, giving a negative span.
func (o *Orbit) TPlusEpoch(t julian.Date) float64 {
	return t.SpanSec(o.epoch)
}

// MeanAnomalyAt advances the epoch mean anomaly linearly to t, in [0, 2π).
func (o *Orbit) MeanAnomalyAt(t julian.Date) float64 {
	span := o.TPlusEpoch(t)
	p := o.Period()
	if p == 0 {
		return o.meanAnomaly
	}
	return astro.Fmod2p(o.meanAnomaly + astro.TwoPi*(span/p))
}

// Position returns the ECI state in km and km/s at tsince minutes from
// epoch.
func (o *Orbit) Position(tsince float64) (coord.ECI, error) {
	eci, err := o.prop.position(tsince)
	if err != nil {
		return coord.ECI{}, err
	}
	return eci.ToKm(), nil
}

// PositionAt returns the ECI state at wall-clock time t.
func (o *Orbit) PositionAt(t time.Time) (coord.ECI, error) {
	return o.Position(julian.FromTime(t).SpanMin(o.epoch))
}

// SatName returns the satellite name, optionally followed by " #<catalog>"
// to tell apart objects sharing a name.
func (o *Orbit) SatName(appendID bool) string {
	name := o.elements.Name()
	if appendID {
		name += " #" + o.elements.FieldString(tle.FieldNORADNum)
	}
	return name
}

func (o *Orbit) keplerMiss(tsince float64) {
	o.logger.Warn("kepler equation did not converge",
		"norad_id", o.elements.NORADID(),
		"tsince_min", tsince,
	)
	if o.keplerObserver != nil {
		o.keplerObserver(tsince)
	}
}
