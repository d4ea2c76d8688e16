package site

import (
	"math"
	"testing"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/norad/internal/astro"
	"github.com/star/norad/internal/coord"
	"github.com/star/norad/internal/julian"
	"github.com/star/norad/internal/norad"
	"github.com/star/norad/internal/tle"
)

func testDate(t *testing.T) julian.Date {
	t.Helper()
	d, err := julian.New(2024, 4, 9, 12, 0, 0)
	require.NoError(t, err)
	return d
}

func TestPositionRoundTrip(t *testing.T) {
	date := testDate(t)
	for _, s := range []Site{
		New(0, 0, 0),
		New(51.4779, -0.0015, 0.046),
		New(-33.86, 151.21, 0.058),
		New(78.22, 15.65, 0.5),
	} {
		g := s.Position(date).ToGeo()
		assert.InDelta(t, s.Lat(), g.Lat, 1e-7, "lat for %s", s)
		assert.InDelta(t, s.Lon(), g.Lon, 1e-7, "lon for %s", s)
		assert.InDelta(t, s.Alt(), g.Alt, 1e-3, "alt for %s", s)
	}
}

func TestLookAngleOverhead(t *testing.T) {
	date := testDate(t)
	s := New(40, -105, 1.6)

	target := coord.ECIFromGeo(coord.GeoFromDegrees(40, -105, 501.6), date)
	topo := s.LookAngle(target)

	assert.InDelta(t, math.Pi/2, topo.El, 1e-6)
	assert.InDelta(t, 500.0, topo.Range, 1e-6)
	assert.InDelta(t, 0.0, topo.RangeRate, 1e-9)
}

func TestLookAngleCardinalDirections(t *testing.T) {
	date := testDate(t)
	s := New(0, 0, 0)

	north := s.LookAngle(coord.ECIFromGeo(coord.GeoFromDegrees(10, 0, 1000), date))
	assert.Less(t, math.Min(north.Az, astro.TwoPi-north.Az), 1e-6)
	assert.Greater(t, north.El, 0.0)

	east := s.LookAngle(coord.ECIFromGeo(coord.GeoFromDegrees(0, 10, 1000), date))
	assert.InDelta(t, math.Pi/2, east.Az, 1e-9)

	west := s.LookAngle(coord.ECIFromGeo(coord.GeoFromDegrees(0, -10, 1000), date))
	assert.InDelta(t, 3*math.Pi/2, west.Az, 1e-9)

	south := s.LookAngle(coord.ECIFromGeo(coord.GeoFromDegrees(-10, 0, 1000), date))
	assert.InDelta(t, math.Pi, south.Az, 1e-6)

	// The antipode is below the horizon.
	below := s.LookAngle(coord.ECIFromGeo(coord.GeoFromDegrees(0, 180, 1000), date))
	assert.Less(t, below.El, 0.0)
}

func TestLookAngleRangeMatchesDistance(t *testing.T) {
	el, err := tle.NewElements("ISS (ZARYA)",
		"1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9009",
		"2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    01")
	require.NoError(t, err)
	o, err := norad.NewOrbit(el)
	require.NoError(t, err)

	s := New(47.37, 8.54, 0.4)
	for _, ts := range []float64{0, 17, 45, 90, 600} {
		eci, err := o.Position(ts)
		require.NoError(t, err)

		topo := s.LookAngle(eci)
		want := eci.Pos.Sub(s.Position(eci.Date).Pos).Magnitude()
		assert.InDelta(t, want, topo.Range, 1e-9, "t=%.0f", ts)
		assert.GreaterOrEqual(t, topo.Az, 0.0)
		assert.Less(t, topo.Az, astro.TwoPi)
		assert.LessOrEqual(t, math.Abs(topo.El), math.Pi/2)
	}
}

func TestLookAngleConvertsUnits(t *testing.T) {
	date := testDate(t)
	s := New(10, 20, 0)

	km := coord.ECIFromGeo(coord.GeoFromDegrees(12, 22, 800), date)
	ae := km
	ae.Pos = km.Pos.Scale(1 / astro.XKMPER)
	ae.Vel = km.Vel.Scale(astro.SecPerDay / astro.MinPerDay / astro.XKMPER)
	ae.Unit = coord.UnitAE

	want := s.LookAngle(km)
	got := s.LookAngle(ae)
	assert.InDelta(t, want.Range, got.Range, 1e-6)
	assert.InDelta(t, want.Az, got.Az, 1e-9)
	assert.InDelta(t, want.El, got.El, 1e-9)
}

func TestRefraction(t *testing.T) {
	ten := astro.Deg2Rad(10)
	corrArcmin := astro.Rad2Deg(refract(ten)-ten) * 60
	assert.InDelta(t, 5.408, corrArcmin, 0.01)

	below := astro.Deg2Rad(-5)
	assert.Equal(t, below, refract(below))

	assert.LessOrEqual(t, refract(math.Pi/2), math.Pi/2)

	date := testDate(t)
	target := coord.ECIFromGeo(coord.GeoFromDegrees(5, 0, 1000), date)
	plain := New(0, 0, 0).LookAngle(target)
	refracted := New(0, 0, 0, WithRefraction()).LookAngle(target)
	assert.Greater(t, refracted.El, plain.El)
	assert.Equal(t, plain.Range, refracted.Range)
}

func TestString(t *testing.T) {
	tests := []struct {
		site Site
		want string
	}{
		{New(51.5, -0.125, 0.05), "51.500N, 000.125W, 50.0m"},
		{New(-33.865, 151.209, 0), "33.865S, 151.209E, 0.0m"},
		{New(5.25, 10.5, 1.2), "05.250N, 010.500E, 1200.0m"},
	}
	for _, tt := range tests {
		if got := tt.site.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

// go-satellite places observers on a sphere, so the cross-check stays on
// the equator where both Earth models agree to metres.
func TestLookAngleMatchesGoSatellite(t *testing.T) {
	date := testDate(t)
	s := New(0, 30, 0)

	for _, g := range []coord.Geo{
		coord.GeoFromDegrees(10, 20, 800),
		coord.GeoFromDegrees(-5, 45, 400),
		coord.GeoFromDegrees(0, 30.5, 35786),
	} {
		target := coord.ECIFromGeo(g, date).ToKm()
		got := s.LookAngle(target)

		ref := satellite.ECIToLookAngles(
			satellite.Vector3{X: target.Pos.X, Y: target.Pos.Y, Z: target.Pos.Z},
			satellite.LatLong{Latitude: s.Lat(), Longitude: s.Lon()},
			s.Alt(), date.JD(),
		)
		assert.InDelta(t, ref.Az, got.Az, 1e-4, "az for %v", g)
		assert.InDelta(t, ref.El, got.El, 1e-4, "el for %v", g)
		assert.InDelta(t, ref.Rg, got.Range, 0.05, "range for %v", g)
	}
}
