package astro

import "math"

// Sqr returns x*x.
func Sqr(x float64) float64 { return x * x }

// Deg2Rad converts degrees to radians.
func Deg2Rad(deg float64) float64 { return deg * RadPerDeg }

// Rad2Deg converts radians to degrees.
func Rad2Deg(rad float64) float64 { return rad / RadPerDeg }

// Fmod2p reduces an angle to [0, 2π).
func Fmod2p(arg float64) float64 {
	modu := math.Mod(arg, TwoPi)
	if modu < 0.0 {
		modu += TwoPi
	}
	return modu
}

// AcTan is the arctangent of sinx/cosx resolved to the correct quadrant.
// The result lies in (-π/2, 3π/2); a zero cosine maps to π/2 or 3π/2.
func AcTan(sinx, cosx float64) float64 {
	switch {
	case cosx == 0.0:
		if sinx > 0.0 {
			return math.Pi / 2.0
		}
		return 3.0 * math.Pi / 2.0
	case cosx > 0.0:
		return math.Atan(sinx / cosx)
	default:
		return math.Pi + math.Atan(sinx/cosx)
	}
}

// WrapPi maps an angle to (-π, π].
func WrapPi(rad float64) float64 {
	rad = Fmod2p(rad)
	if rad > math.Pi {
		rad -= TwoPi
	}
	return rad
}
