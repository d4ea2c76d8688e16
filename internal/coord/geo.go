package coord

import (
	"fmt"

	"github.com/star/norad/internal/astro"
)

// Geo is a geodetic coordinate on the WGS-72 ellipsoid.
// Lat and Lon are radians (negative south / west); Alt is km above the
// ellipsoid.
type Geo struct {
	Lat float64
	Lon float64
	Alt float64
}

// GeoFromDegrees builds a Geo from degree angles and km altitude.
func GeoFromDegrees(latDeg, lonDeg, altKm float64) Geo {
	return Geo{Lat: astro.Deg2Rad(latDeg), Lon: astro.Deg2Rad(lonDeg), Alt: altKm}
}

// LatDeg returns the latitude in degrees.
func (g Geo) LatDeg() float64 { return astro.Rad2Deg(g.Lat) }

// LonDeg returns the longitude in degrees.
func (g Geo) LonDeg() float64 { return astro.Rad2Deg(g.Lon) }

func (g Geo) String() string {
	return fmt.Sprintf("lat=%.6f lon=%.6f alt=%.3fkm", g.LatDeg(), g.LonDeg(), g.Alt)
}

// Topo is a ground-observer relative coordinate.
type Topo struct {
	Az        float64 // radians, clockwise from north
	El        float64 // radians above the horizon
	Range     float64 // km
	RangeRate float64 // km/s, negative when approaching
}

// AzDeg returns the azimuth in degrees.
func (t Topo) AzDeg() float64 { return astro.Rad2Deg(t.Az) }

// ElDeg returns the elevation in degrees.
func (t Topo) ElDeg() float64 { return astro.Rad2Deg(t.El) }
