package coord

import (
	"math"

	"github.com/star/norad/internal/astro"
	"github.com/star/norad/internal/julian"
)

// Unit tags the length unit of an ECI state.
type Unit int

const (
	// UnitAE is Earth radii for position and Earth radii per minute for
	// velocity, the propagator's native output.
	UnitAE Unit = iota
	// UnitKm is km for position and km/s for velocity.
	UnitKm
)

func (u Unit) String() string {
	if u == UnitKm {
		return "km"
	}
	return "ae"
}

// ECI is a position/velocity pair in the Earth-centred inertial frame
// (true equator, mean equinox) at a given date.
type ECI struct {
	Pos  Vector
	Vel  Vector
	Date julian.Date
	Unit Unit
}

// ECIFromGeo returns the inertial state of a point fixed on the rotating
// Earth at date. The result is in km and km/s.
func ECIFromGeo(g Geo, date julian.Date) ECI {
	mfactor := astro.TwoPi * (astro.OmegaE / astro.SecPerDay)

	theta := date.LMST(g.Lon)
	sinLat := math.Sin(g.Lat)
	cosLat := math.Cos(g.Lat)

	c := 1.0 / math.Sqrt(1.0+astro.F*(astro.F-2.0)*sinLat*sinLat)
	s := astro.Sqr(1.0-astro.F) * c
	achcp := (astro.XKMPER*c + g.Alt) * cosLat

	pos := Vector{
		X: achcp * math.Cos(theta),
		Y: achcp * math.Sin(theta),
		Z: (astro.XKMPER*s + g.Alt) * sinLat,
	}
	vel := Vector{
		X: -mfactor * pos.Y,
		Y: mfactor * pos.X,
		Z: 0,
	}

	return ECI{Pos: pos, Vel: vel, Date: date, Unit: UnitKm}
}

// ToKm returns the state converted to km and km/s. A state already in km is
// returned unchanged.
func (e ECI) ToKm() ECI {
	if e.Unit == UnitKm {
		return e
	}
	e.Pos = e.Pos.Scale(astro.XKMPER / astro.AE)
	e.Vel = e.Vel.Scale((astro.XKMPER / astro.AE) * (astro.MinPerDay / astro.SecPerDay))
	e.Unit = UnitKm
	return e
}

const maxGeoIterations = 50

// ToGeo converts the position to geodetic latitude, longitude and altitude.
// Longitude is normalised to (-π, π].
func (e ECI) ToGeo() Geo {
	e = e.ToKm()

	theta := astro.AcTan(e.Pos.Y, e.Pos.X)
	lon := astro.WrapPi(theta - e.Date.GMST())

	r := math.Sqrt(e.Pos.X*e.Pos.X + e.Pos.Y*e.Pos.Y)
	e2 := astro.F * (2.0 - astro.F)
	lat := astro.AcTan(e.Pos.Z, r)

	var phi, c float64
	for i := 0; i < maxGeoIterations; i++ {
		phi = lat
		sinPhi := math.Sin(phi)
		c = 1.0 / math.Sqrt(1.0-e2*sinPhi*sinPhi)
		lat = astro.AcTan(e.Pos.Z+astro.XKMPER*c*e2*sinPhi, r)
		if math.Abs(lat-phi) <= 1e-07 {
			break
		}
	}

	alt := r/math.Cos(lat) - astro.XKMPER*c

	return Geo{Lat: lat, Lon: lon, Alt: alt}
}
