// Package astro holds the WGS-72 Earth model and the angle helpers shared by
// the propagation, time and coordinate packages.
package astro

import "math"

const (
	TwoPi      = 2 * math.Pi
	RadPerDeg  = math.Pi / 180.0
	TwoThirds  = 2.0 / 3.0
	HrPerDay   = 24.0
	MinPerDay  = 1440.0
	SecPerDay  = 86400.0
	GeosyncAlt = 42241.892 // km
)

// WGS-72 Earth model, as used by SGP4/SDP4.
const (
	AE     = 1.0                // distance unit, Earth radii
	XKMPER = 6378.135           // equatorial radius, km
	F      = 1.0 / 298.26       // flattening
	GE     = 398600.8           // gravitational constant, km^3/s^2
	J2     = 1.0826158e-3       // second zonal harmonic
	J3     = -2.53881e-6        // third zonal harmonic
	J4     = -1.65597e-6        // fourth zonal harmonic
	CK2    = J2 / 2.0           // 0.5 * J2 * AE^2
	CK4    = -3.0 * J4 / 8.0    // -0.375 * J4 * AE^4
	XJ3    = J3                 // J3
	E6A    = 1.0e-6             // Kepler convergence tolerance
	QO     = AE + 120.0/XKMPER  // drag reference altitude, Earth radii
	S      = AE + 78.0/XKMPER   // drag density parameter, Earth radii
	OmegaE = 1.00273790934      // Earth rotations per sidereal day
)

var (
	// XKE is sqrt(GE) in Earth radii^1.5 per minute.
	XKE = math.Sqrt(3600.0 * GE / (XKMPER * XKMPER * XKMPER))
	// QOMS2T is (QO - S)^4 in Earth radii^4.
	QOMS2T = math.Pow(QO-S, 4)
)
