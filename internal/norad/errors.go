package norad

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOrbit reports elements that cannot describe a closed orbit,
	// e.g. an eccentricity whose square exceeds one.
	ErrInvalidOrbit = errors.New("invalid orbital elements")

	// ErrDecayed reports a propagated radius below the Earth's surface or
	// beyond twice geosynchronous altitude. Match with errors.Is against a
	// *DecayError.
	ErrDecayed = errors.New("implausible orbital radius")
)

// DecayError carries the offset and radius of an implausible propagation
// result. Later offsets of the same orbit are not expected to recover.
type DecayError struct {
	Tsince   float64 // minutes since epoch
	RadiusKm float64
}

func (e *DecayError) Error() string {
	return fmt.Sprintf("radius %.3f km at %.3f min since epoch: %v", e.RadiusKm, e.Tsince, ErrDecayed)
}

// Is lets errors.Is(err, ErrDecayed) match.
func (e *DecayError) Is(target error) bool {
	return target == ErrDecayed
}
