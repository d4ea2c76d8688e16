// Package transform rotates inertial propagator output into the
// Earth-fixed frame used by clients.
//
// The rotation is about the pole by GMST only (TEME to PEF), ignoring polar
// motion and the equation of the equinoxes. The error is tens of metres,
// well inside SGP4's own accuracy.
package transform

import (
	"math"

	"github.com/star/norad/internal/astro"
	"github.com/star/norad/internal/coord"
)

// OmegaEarth is the Earth rotation rate in rad/s.
const OmegaEarth = astro.TwoPi * astro.OmegaE / astro.SecPerDay

// ECEF is an Earth-fixed position and velocity in metres and m/s.
type ECEF struct {
	Pos coord.Vector
	Vel coord.Vector
}

// ToECEF rotates an inertial state into the Earth-fixed frame at its own
// date.
func ToECEF(eci coord.ECI) ECEF {
	return ToECEFWithGMST(eci, eci.Date.GMST())
}

// ToECEFWithGMST rotates eci by a precomputed GMST angle in radians, for
// batches that share one instant.
//
//	r_ecef = R3(θ) r
//	v_ecef = R3(θ) v - ω × r_ecef
func ToECEFWithGMST(eci coord.ECI, gmst float64) ECEF {
	eci = eci.ToKm()
	sinG, cosG := math.Sincos(gmst)

	pos := coord.Vector{
		X: eci.Pos.X*cosG + eci.Pos.Y*sinG,
		Y: -eci.Pos.X*sinG + eci.Pos.Y*cosG,
		Z: eci.Pos.Z,
	}
	vel := coord.Vector{
		X: eci.Vel.X*cosG + eci.Vel.Y*sinG + OmegaEarth*pos.Y,
		Y: -eci.Vel.X*sinG + eci.Vel.Y*cosG - OmegaEarth*pos.X,
		Z: eci.Vel.Z,
	}

	return ECEF{Pos: pos.Scale(1000.0), Vel: vel.Scale(1000.0)}
}

// Earth-orbit radius bounds in metres.
const (
	minRadius = 6200.0 * 1000.0
	maxRadius = 50000.0 * 1000.0
)

// ValidateECEF reports whether pos is finite and at a radius an Earth
// satellite can occupy, from just below the surface to beyond GEO.
func ValidateECEF(pos ECEF) bool {
	for _, c := range pos.Pos.Array() {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	mag := pos.Pos.Magnitude()
	return mag >= minRadius && mag <= maxRadius
}
