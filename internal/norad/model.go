package norad

import "github.com/star/norad/internal/coord"

// Model is the perturbation theory bound to an orbit.
type Model int

const (
	// NearEarth is SGP4, for periods below 225 minutes.
	NearEarth Model = iota
	// DeepSpace is SDP4, adding lunar-solar and resonance terms.
	DeepSpace
)

// DeepSpacePeriod is the orbital period in minutes from which SDP4 applies.
const DeepSpacePeriod = 225.0

func (m Model) String() string {
	switch m {
	case NearEarth:
		return "sgp4"
	case DeepSpace:
		return "sdp4"
	}
	return "unknown"
}

func selectModel(periodMin float64) Model {
	if periodMin >= DeepSpacePeriod {
		return DeepSpace
	}
	return NearEarth
}

// propagator returns the state at tsince minutes from epoch in AE units.
type propagator interface {
	position(tsince float64) (coord.ECI, error)
}
