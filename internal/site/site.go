// Package site computes look angles from a fixed ground location to a
// satellite.
package site

import (
	"fmt"
	"math"

	"github.com/star/norad/internal/astro"
	"github.com/star/norad/internal/coord"
	"github.com/star/norad/internal/julian"
)

// Option configures a Site.
type Option func(*Site)

// WithRefraction corrects elevations for atmospheric refraction
// (Meeus, Astronomical Algorithms, ch. 16).
func WithRefraction() Option {
	return func(s *Site) { s.refraction = true }
}

// Site is a ground location on the rotating Earth.
type Site struct {
	geo        coord.Geo
	refraction bool
}

// New returns a site at latitude and longitude in degrees (negative south
// and west) and altitude in km.
func New(degLat, degLon, kmAlt float64, opts ...Option) Site {
	return FromGeo(coord.GeoFromDegrees(degLat, degLon, kmAlt), opts...)
}

// FromGeo returns a site at a geodetic coordinate.
func FromGeo(g coord.Geo, opts ...Option) Site {
	s := Site{geo: g}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Geo returns the site coordinate.
func (s Site) Geo() coord.Geo { return s.geo }

func (s Site) Lat() float64 { return s.geo.Lat }
func (s Site) Lon() float64 { return s.geo.Lon }
func (s Site) Alt() float64 { return s.geo.Alt }

// Position returns the inertial state of the site at date in km and km/s.
func (s Site) Position(date julian.Date) coord.ECI {
	return coord.ECIFromGeo(s.geo, date)
}

// LookAngle returns azimuth, elevation, range and range rate from the site
// to target. The site state is taken at the target's date.
func (s Site) LookAngle(target coord.ECI) coord.Topo {
	target = target.ToKm()
	date := target.Date
	obs := s.Position(date)

	rng := target.Pos.Sub(obs.Pos)
	rngRate := target.Vel.Sub(obs.Vel)
	w := rng.Magnitude()

	theta := date.LMST(s.geo.Lon)
	sinLat, cosLat := math.Sincos(s.geo.Lat)
	sinTheta, cosTheta := math.Sincos(theta)

	// Rotate into south, east, zenith.
	topS := sinLat*cosTheta*rng.X + sinLat*sinTheta*rng.Y - cosLat*rng.Z
	topE := -sinTheta*rng.X + cosTheta*rng.Y
	topZ := cosLat*cosTheta*rng.X + cosLat*sinTheta*rng.Y + sinLat*rng.Z

	// North is -south.
	az := astro.Fmod2p(astro.AcTan(topE, -topS))
	el := math.Asin(topZ / w)

	topo := coord.Topo{
		Az:        az,
		El:        el,
		Range:     w,
		RangeRate: rng.Dot(rngRate) / w,
	}
	if s.refraction {
		topo.El = refract(el)
	}
	return topo
}

// refract applies the refraction correction to a true elevation. Below the
// horizon the true elevation is kept.
func refract(el float64) float64 {
	deg := astro.Rad2Deg(el)
	corr := astro.Deg2Rad((1.02 / math.Tan(astro.Deg2Rad(deg+10.3/(deg+5.11)))) / 60.0)

	apparent := el + corr
	switch {
	case apparent < 0.0:
		return el
	case apparent > math.Pi/2:
		return math.Pi / 2
	}
	return apparent
}

// String formats the site as "DD.DDDN, DDD.DDDW, A.Am".
func (s Site) String() string {
	ns, ew := 'N', 'E'
	if s.geo.Lat < 0 {
		ns = 'S'
	}
	if s.geo.Lon < 0 {
		ew = 'W'
	}
	return fmt.Sprintf("%06.3f%c, %07.3f%c, %.1fm",
		math.Abs(s.geo.LatDeg()), ns,
		math.Abs(s.geo.LonDeg()), ew,
		s.geo.Alt*1000.0)
}
