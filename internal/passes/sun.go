package passes

import (
	"github.com/soniakeys/meeus/v3/solar"

	"github.com/star/norad/internal/astro"
	"github.com/star/norad/internal/coord"
	"github.com/star/norad/internal/julian"
)

const (
	auKm = 149597870.7

	// Sun elevation below which the sky is dark enough to see a lit
	// satellite.
	civilTwilightDeg = -6.0
)

// sunPosition returns the apparent solar position at date in inertial km.
func sunPosition(date julian.Date) coord.ECI {
	α, δ := solar.ApparentEquatorial(date.JD())
	cosδ := δ.Cos()
	dir := coord.Vector{X: cosδ * α.Cos(), Y: cosδ * α.Sin(), Z: δ.Sin()}
	return coord.ECI{Pos: dir.Scale(auKm), Date: date, Unit: coord.UnitKm}
}

// sunlit reports whether sat lies outside the cylindrical shadow of the
// Earth cast away from sun.
func sunlit(sat, sun coord.ECI) bool {
	r := sat.ToKm().Pos
	u := sun.Pos.Scale(1 / sun.Pos.Magnitude())

	along := r.Dot(u)
	if along >= 0 {
		return true
	}
	return r.Sub(u.Scale(along)).Magnitude() > astro.XKMPER
}
